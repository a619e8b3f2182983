// Package llm is a small client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000

	completionsPath = "chat/completions"
	doneSentinel    = "[DONE]"
	maxErrorBody    = 4 << 10
)

// ErrTruncatedStream is returned when a stream ends without the done sentinel
var ErrTruncatedStream = errors.New("stream ended before [DONE]")

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completions: status %d: %s", e.StatusCode, e.Body)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion call. Zero Temperature and MaxTokens fall
// back to the client's configured values.
type Request struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	// JSON asks the backend for a bare JSON object
	JSON bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Completion struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

type Client struct {
	http        *http.Client
	baseURL     *url.URL
	model       string
	temperature float64
	maxTokens   int
	log         zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil && raw != "" {
			c.baseURL = u
		}
	}
}
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client that authenticates every request with apiKey as a
// bearer token.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey required")
	}
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:        http.DefaultClient,
		baseURL:     u,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}

	base := c.http
	c.http = &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
	return c, nil
}

// Model is the model identifier sent with every request
func (c *Client) Model() string { return c.model }

type wireRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage      `json:"usage"`
	Error *wireError `json:"error,omitempty"`
}

type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *wireError `json:"error,omitempty"`
}

func (c *Client) post(ctx context.Context, r Request, stream bool) (*http.Response, error) {
	body := wireRequest{
		Model:       c.model,
		Messages:    r.Messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
	if r.Temperature != nil {
		body.Temperature = *r.Temperature
	}
	if r.MaxTokens > 0 {
		body.MaxTokens = r.MaxTokens
	}
	if r.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	u := *c.baseURL
	u.Path = path.Join(u.Path, completionsPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completions: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// Complete sends one blocking chat completion
func (c *Client) Complete(ctx context.Context, r Request) (Completion, error) {
	resp, err := c.post(ctx, r, false)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return Completion{}, fmt.Errorf("chat completions: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return Completion{}, errors.New("chat completions: empty choices")
	}
	return Completion{
		Content:      out.Choices[0].Message.Content,
		Model:        out.Model,
		FinishReason: out.Choices[0].FinishReason,
		Usage:        out.Usage,
	}, nil
}

// Stream sends a streaming chat completion and yields content deltas in
// arrival order. Frames that are not valid JSON are skipped. The response
// body is closed when the stream ends or the caller stops ranging.
func (c *Client) Stream(ctx context.Context, r Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.post(ctx, r, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for sc.Scan() {
			data, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == doneSentinel {
				return
			}

			var chunk wireChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				c.log.Debug().Err(err).Str("frame", data).Msg("skipping malformed stream frame")
				continue
			}
			if chunk.Error != nil {
				yield("", fmt.Errorf("chat completions: %s", chunk.Error.Message))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("read stream: %w", err))
			return
		}
		yield("", ErrTruncatedStream)
	}
}
