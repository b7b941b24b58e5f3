// Package gemini provides a core.AgentClient for the Google Gemini
// generateContent API. The persona is folded into the single user part and
// the transcript is trimmed to a token budget before the call.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/core"
)

const (
	vendor = "gemini"

	// DefaultBaseURL is the public Gemini endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel is used when neither the agent nor Options name one.
	DefaultModel = "gemini-1.5-flash"
)

// Options configures the Gemini client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	// MaxContextTokens bounds the transcript sent with each call.
	// Zero disables truncation.
	MaxContextTokens int
	// FallbackLines is how many trailing transcript lines are kept when the
	// token counter is unavailable.
	FallbackLines int
	// Counter measures text in tokens. Defaults to a tiktoken counter.
	Counter TokenCounter
	// CountTimeout bounds loading the counter and measuring the transcript.
	// On expiry the last FallbackLines lines are sent.
	CountTimeout time.Duration
}

// loader is implemented by counters that must be prepared before use.
type loader interface {
	Load(ctx context.Context) error
}

// Client implements core.AgentClient over generateContent.
type Client struct {
	opts Options
}

var _ core.AgentClient = (*Client)(nil)

// New creates a Gemini client.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:          DefaultBaseURL,
		Model:            DefaultModel,
		MaxContextTokens: 8000,
		FallbackLines:    4,
		CountTimeout:     5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = client.NewHTTPClient()
	}
	if opts.Counter == nil {
		opts.Counter = NewTiktokenCounter("cl100k_base")
	}

	return &Client{opts: opts}
}

// Vendor returns "gemini".
func (c *Client) Vendor() string { return vendor }

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Complete implements core.AgentClient.
func (c *Client) Complete(ctx context.Context, agent core.Agent, contextText string) (string, error) {
	if strings.TrimSpace(c.opts.APIKey) == "" {
		return "", client.MissingCredential(vendor)
	}

	model := c.opts.Model
	if agent.Model != "" {
		model = agent.Model
	}

	trimmed := c.trim(ctx, contextText)
	full := agent.Persona + "\n\nConversation so far:\n" + trimmed

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: full}}}},
	})
	if err != nil {
		return "", core.NewAgentError(core.KindTransport, vendor, "encode request: %v", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(c.opts.BaseURL, "/"), model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", core.NewAgentError(core.KindTransport, vendor, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.opts.APIKey)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", client.Classify(vendor, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", client.Classify(vendor, err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", core.NewAgentError(core.KindUpstream, vendor, "status %d: %s", resp.StatusCode, msg)
	}

	if decodeErr != nil {
		return "", core.NewAgentError(core.KindMalformedResponse, vendor, "decode response: %v", decodeErr)
	}

	if out.Error != nil && out.Error.Message != "" {
		return "", core.NewAgentError(core.KindUpstream, vendor, "%s", out.Error.Message)
	}

	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", core.NewAgentError(core.KindUpstream, vendor, "request blocked due to %s", out.PromptFeedback.BlockReason)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", core.NewAgentError(core.KindMalformedResponse, vendor, "no candidates in response")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", core.NewAgentError(core.KindMalformedResponse, vendor, "empty candidate text")
	}

	return text, nil
}

// trim fits text into MaxContextTokens within CountTimeout.
func (c *Client) trim(ctx context.Context, text string) string {
	if c.opts.MaxContextTokens <= 0 || text == "" {
		return text
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.CountTimeout)
	defer cancel()

	if l, ok := c.opts.Counter.(loader); ok {
		// A failed load surfaces again from CountTokens.
		_ = l.Load(ctx)
		if ctx.Err() != nil {
			return Truncate(text, c.opts.MaxContextTokens, c.opts.FallbackLines, nil)
		}
	}

	done := make(chan string, 1)
	go func() {
		done <- Truncate(text, c.opts.MaxContextTokens, c.opts.FallbackLines, c.opts.Counter)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		return Truncate(text, c.opts.MaxContextTokens, c.opts.FallbackLines, nil)
	}
}
