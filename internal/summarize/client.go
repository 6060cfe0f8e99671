package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"horse.fit/pulse/internal/digest"
	"horse.fit/pulse/internal/feed"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8844"
	DefaultRequestTimeout = 45 * time.Second
)

// Client talks to the external text-intelligence service for the two
// jobs the engine never does itself: producing embeddings and writing
// digest narratives.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(apiKey)
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}

	client := &Client{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var parsed embedResponse
	if err := c.post(ctx, "/v1/embed", embedRequest{Texts: texts}, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: requested=%d returned=%d", len(texts), len(parsed.Embeddings))
	}
	return parsed.Embeddings, nil
}

type summarizeCluster struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Sources     []string `json:"sources"`
}

type summarizeRequest struct {
	Clusters []summarizeCluster `json:"clusters"`
}

type summarizeResponse struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Summarize asks the service for digest prose over the selected
// clusters. Implements digest.Summarizer.
func (c *Client) Summarize(ctx context.Context, clusters []feed.Cluster) (digest.Narrative, error) {
	if len(clusters) == 0 {
		return digest.Narrative{}, fmt.Errorf("no clusters to summarize")
	}

	payload := summarizeRequest{Clusters: make([]summarizeCluster, 0, len(clusters))}
	for _, cluster := range clusters {
		sources := make([]string, 0, len(cluster.Sources))
		for _, source := range cluster.Sources {
			sources = append(sources, string(source))
		}
		payload.Clusters = append(payload.Clusters, summarizeCluster{
			Title:       cluster.Main.Title,
			Summary:     cluster.Main.Summary,
			Description: cluster.Main.Description,
			URL:         cluster.BestLink,
			Sources:     sources,
		})
	}

	var parsed summarizeResponse
	if err := c.post(ctx, "/v1/summarize", payload, &parsed); err != nil {
		return digest.Narrative{}, err
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return digest.Narrative{}, fmt.Errorf("summarizer returned empty narrative")
	}

	return digest.Narrative{
		Text:             parsed.Text,
		PromptTokens:     parsed.PromptTokens,
		CompletionTokens: parsed.CompletionTokens,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("text service status %d on %s: %s", resp.StatusCode, path, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
