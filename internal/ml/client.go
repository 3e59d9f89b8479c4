package ml

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/pkg/models"
)

const (
	embedCachePrefix = "embed:text"
	embedCacheTTL    = 24 * time.Hour
	maxResponseBytes = 4 << 20
)

// Client talks to an OpenAI-compatible model API for embeddings and
// categorization. Both operations degrade rather than fail: a broken
// upstream yields a nil embedding and the fallback category, never an
// ingestion error.
type Client struct {
	cfg        config.AIConfig
	httpClient *http.Client
	redis      *redis.Client
	logger     *logrus.Logger
}

// NewClient builds a model API client. redisClient may be nil, which
// disables the embedding cache.
func NewClient(cfg config.AIConfig, redisClient *redis.Client, logger *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		redis:      redisClient,
		logger:     logger,
	}
}

// Enabled reports whether a model API is configured at all.
func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != ""
}

// Embed returns a dense vector for the text, or nil when the API is
// unconfigured, unreachable, or returns garbage. Results are cached in
// Redis for a day keyed by model and content hash.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if !c.Enabled() || text == "" {
		return nil
	}

	cacheKey := c.embedCacheKey(text)
	if cached := c.cachedEmbedding(ctx, cacheKey); cached != nil {
		return cached
	}

	body := map[string]interface{}{
		"model": c.cfg.EmbeddingModel,
		"input": text,
	}

	var payload struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", body, &payload); err != nil {
		c.logger.WithError(err).Warn("Embedding request failed, storing entry without embedding")
		return nil
	}
	if len(payload.Data) == 0 || len(payload.Data[0].Embedding) == 0 {
		c.logger.Warn("Embedding response empty, storing entry without embedding")
		return nil
	}

	embedding := payload.Data[0].Embedding
	c.storeEmbedding(ctx, cacheKey, embedding)
	return embedding
}

const categorizePrompt = `You label saved content for a personal library.
Pick 1 or 2 categories for the item below, strictly from this list:
%s

Respond with a JSON array of category names only, e.g. ["Tech","Design"].

Title: %s
Content: %s`

// Categorize assigns 1-2 categories from the fixed vocabulary. Any
// failure falls back to the default category so ingestion never blocks
// on the model API.
func (c *Client) Categorize(ctx context.Context, title, content string) []string {
	fallback := []string{models.CategoryFallback}
	if !c.Enabled() {
		return fallback
	}

	if len(content) > 2000 {
		content = content[:2000]
	}
	prompt := fmt.Sprintf(categorizePrompt, strings.Join(models.Categories, ", "), title, content)

	body := map[string]interface{}{
		"model":       c.cfg.CategorizeModel,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", body, &payload); err != nil {
		c.logger.WithError(err).Warn("Categorize request failed, using fallback category")
		return fallback
	}
	if len(payload.Choices) == 0 {
		return fallback
	}

	categories := parseCategories(payload.Choices[0].Message.Content)
	if len(categories) == 0 {
		return fallback
	}
	return categories
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model api status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	return json.Unmarshal(raw, out)
}

// parseCategories pulls a JSON array out of a model response (which may
// wrap it in prose or a code fence) and keeps only known categories,
// capped at two.
func parseCategories(content string) []string {
	start := strings.IndexByte(content, '[')
	end := strings.LastIndexByte(content, ']')
	if start < 0 || end <= start {
		return nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil
	}

	categories := models.FilterCategories(raw)
	if len(categories) > 2 {
		categories = categories[:2]
	}
	return categories
}

func (c *Client) embedCacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.cfg.EmbeddingModel + "\x00" + text))
	return fmt.Sprintf("%s:%x", embedCachePrefix, sum)
}

func (c *Client) cachedEmbedding(ctx context.Context, key string) []float32 {
	if c.redis == nil {
		return nil
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil
	}
	return embedding
}

func (c *Client) storeEmbedding(ctx context.Context, key string, embedding []float32) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, embedCacheTTL).Err(); err != nil {
		c.logger.WithError(err).Debug("Embedding cache write failed")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
