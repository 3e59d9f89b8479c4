package reranker

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// Objectives the runtime knows how to score. binary:logistic gets a
// sigmoid over the margin; the others return the raw margin.
const (
	ObjectiveBinaryLogistic  = "binary:logistic"
	ObjectiveRegSquaredError = "reg:squarederror"
	ObjectiveRankPairwise    = "rank:pairwise"
)

// maxTreeSteps bounds a single tree walk so a malformed model with a
// node cycle cannot hang a request.
const maxTreeSteps = 2048

// Model is the serialized gradient-boosted tree artifact produced by
// the training script. Feature values are looked up by name through
// FeatureOrder; node feature fields index into that vector.
type Model struct {
	Version      string                 `json:"version"`
	ModelType    string                 `json:"modelType"`
	Objective    string                 `json:"objective"`
	BaseScore    float64                `json:"baseScore"`
	FeatureOrder []string               `json:"featureOrder"`
	Trees        []Tree                 `json:"trees"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is one tree node. Leaves carry left = right = -1 and the leaf
// weight; internal nodes carry a feature index, threshold, and child
// positions.
type Node struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
	DefaultLeft bool    `json:"defaultLeft"`
	Leaf        float64 `json:"leaf"`
}

func (n *Node) isLeaf() bool { return n.Left < 0 && n.Right < 0 }

const modelSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["version", "modelType", "objective", "baseScore", "featureOrder", "trees"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"modelType": {"type": "string", "enum": ["xgboost_tree"]},
		"objective": {"type": "string", "enum": ["binary:logistic", "reg:squarederror", "rank:pairwise"]},
		"baseScore": {"type": "number"},
		"featureOrder": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		},
		"trees": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["nodes"],
				"properties": {
					"nodes": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"feature": {"type": "integer"},
								"threshold": {"type": "number"},
								"left": {"type": "integer"},
								"right": {"type": "integer"},
								"defaultLeft": {"type": "boolean"},
								"leaf": {"type": "number"}
							}
						}
					}
				}
			}
		},
		"metadata": {"type": "object"}
	}
}`

var modelSchemaLoader = gojsonschema.NewStringLoader(modelSchema)

// LoadModel reads, schema-validates, and decodes a model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}

	result, err := gojsonschema.Validate(modelSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate model file: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return nil, fmt.Errorf("model file invalid: %s", errs[0].String())
		}
		return nil, fmt.Errorf("model file invalid")
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("decode model file: %w", err)
	}

	return &model, nil
}

// Vector maps a feature set into the model's input ordering; features
// the caller does not have contribute 0.
func (m *Model) Vector(features map[string]float64) []float64 {
	vec := make([]float64, len(m.FeatureOrder))
	for i, name := range m.FeatureOrder {
		if v, ok := features[name]; ok {
			vec[i] = v
		}
	}
	return vec
}

// Score evaluates the ensemble over a feature map: margin plus leaf
// weights, through a sigmoid when the objective is binary:logistic.
func (m *Model) Score(features map[string]float64) float64 {
	vec := m.Vector(features)

	margin := m.BaseScore
	for i := range m.Trees {
		margin += m.Trees[i].eval(vec)
	}

	if m.Objective == ObjectiveBinaryLogistic {
		return 1 / (1 + math.Exp(-margin))
	}
	return margin
}

// eval walks a single tree from the root. Out-of-range child indexes
// and walks longer than maxTreeSteps return 0 rather than trusting the
// artifact.
func (t *Tree) eval(vec []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}

	idx := 0
	for step := 0; step < maxTreeSteps; step++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0
		}
		node := &t.Nodes[idx]
		if node.isLeaf() {
			return node.Leaf
		}

		var value float64
		if node.Feature >= 0 && node.Feature < len(vec) {
			value = vec[node.Feature]
		}

		switch {
		case math.IsNaN(value):
			if node.DefaultLeft {
				idx = node.Left
			} else {
				idx = node.Right
			}
		case value < node.Threshold:
			idx = node.Left
		default:
			idx = node.Right
		}
	}

	return 0
}
