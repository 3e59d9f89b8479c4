package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanefeed/lanefeed/internal/config"
)

func testClient(t *testing.T, baseURL string, withCache bool) *Client {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	var redisClient *redis.Client
	if withCache {
		mr := miniredis.RunT(t)
		redisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}

	cfg := config.AIConfig{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		EmbeddingModel:  "text-embedding-3-small",
		CategorizeModel: "gpt-4o-mini",
		Timeout:         5 * time.Second,
	}
	return NewClient(cfg, redisClient, logger)
}

func TestClient_Embed(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"embedding":[0.25,-0.5,0.125]}]}`)
	}))
	defer server.Close()

	c := testClient(t, server.URL, true)

	embedding := c.Embed(context.Background(), "hello world")
	require.Len(t, embedding, 3)
	assert.InDelta(t, 0.25, float64(embedding[0]), 1e-6)
	assert.InDelta(t, -0.5, float64(embedding[1]), 1e-6)

	// Second identical request is served from the cache.
	again := c.Embed(context.Background(), "hello world")
	assert.Equal(t, embedding, again)
	assert.Equal(t, 1, hits)

	// Different text misses the cache.
	c.Embed(context.Background(), "other text")
	assert.Equal(t, 2, hits)
}

func TestClient_EmbedDegradesToNil(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		c := testClient(t, "", false)
		assert.Nil(t, c.Embed(context.Background(), "text"))
	})

	t.Run("blank text", func(t *testing.T) {
		c := testClient(t, "http://unused.example.com", false)
		assert.Nil(t, c.Embed(context.Background(), "   "))
	})

	t.Run("upstream error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusInternalServerError)
		}))
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Nil(t, c.Embed(context.Background(), "text"))
	})

	t.Run("empty data", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":[]}`)
		}))
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Nil(t, c.Embed(context.Background(), "text"))
	})
}

func TestClient_Categorize(t *testing.T) {
	respond := func(content string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			payload := map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"content": content}},
				},
			}
			json.NewEncoder(w).Encode(payload)
		}))
	}

	t.Run("plain array", func(t *testing.T) {
		server := respond(`["Tech","AI"]`)
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Equal(t, []string{"Tech", "AI"}, c.Categorize(context.Background(), "title", "content"))
	})

	t.Run("array wrapped in prose and fences", func(t *testing.T) {
		server := respond("Sure! Here you go:\n```json\n[\"Music\"]\n```")
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Equal(t, []string{"Music"}, c.Categorize(context.Background(), "title", "content"))
	})

	t.Run("unknown categories are dropped", func(t *testing.T) {
		server := respond(`["Techno","Tech","Crypto"]`)
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Equal(t, []string{"Tech"}, c.Categorize(context.Background(), "title", "content"))
	})

	t.Run("capped at two", func(t *testing.T) {
		server := respond(`["Tech","AI","Science"]`)
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Equal(t, []string{"Tech", "AI"}, c.Categorize(context.Background(), "title", "content"))
	})

	t.Run("no array in response", func(t *testing.T) {
		server := respond("I cannot categorize this.")
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Equal(t, []string{"Fun"}, c.Categorize(context.Background(), "title", "content"))
	})

	t.Run("upstream failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer server.Close()

		c := testClient(t, server.URL, false)
		assert.Equal(t, []string{"Fun"}, c.Categorize(context.Background(), "title", "content"))
	})

	t.Run("unconfigured", func(t *testing.T) {
		c := testClient(t, "", false)
		assert.Equal(t, []string{"Fun"}, c.Categorize(context.Background(), "title", "content"))
	})
}
