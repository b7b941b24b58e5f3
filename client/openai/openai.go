// Package openai provides a core.AgentClient backed by the OpenAI Chat
// Completions API. The same client serves every OpenAI-compatible vendor
// (Groq, xAI) through a custom base URL.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/core"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
	GroqBaseURL = "https://api.groq.com/openai/v1"
	// XAIBaseURL is the OpenAI-compatible endpoint of xAI (Grok).
	XAIBaseURL = "https://api.x.ai/v1"
)

// Options configure the OpenAI client.
type Options struct {
	// Vendor is the name reported in errors and metrics.
	Vendor              string
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	HTTPClient          *http.Client
}

// Client implements core.AgentClient over Chat Completions.
type Client struct {
	client  *openai.Client
	opts    Options
	hasCred bool
}

var _ core.AgentClient = (*Client)(nil)

func defaultOptions() Options {
	return Options{
		Vendor:              "openai",
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 1000,
	}
}

// New creates a client using the official SDK. SDK retries are disabled;
// one Complete is one request.
func New(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = client.NewHTTPClient()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(opts.HTTPClient),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	c := openai.NewClient(reqOpts...)

	return &Client{client: &c, opts: opts, hasCred: strings.TrimSpace(opts.APIKey) != ""}
}

// NewFromClient creates a client from an existing SDK client. Credentials
// are assumed to be configured on it.
func NewFromClient(c *openai.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{client: c, opts: opts, hasCred: true}
}

// Vendor returns the configured vendor name.
func (c *Client) Vendor() string { return c.opts.Vendor }

// Complete implements core.AgentClient.
func (c *Client) Complete(ctx context.Context, agent core.Agent, contextText string) (string, error) {
	if !c.hasCred {
		return "", client.MissingCredential(c.opts.Vendor)
	}

	model := c.opts.Model
	if agent.Model != "" {
		model = agent.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(agent.Persona),
			openai.UserMessage(contextText),
		},
		Model:               model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxCompletionTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.mapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", core.NewAgentError(core.KindMalformedResponse, c.opts.Vendor, "no choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", core.NewAgentError(core.KindMalformedResponse, c.opts.Vendor, "empty message content")
	}

	return text, nil
}

func (c *Client) mapError(err error) *core.AgentError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &core.AgentError{
			Kind:    core.KindUpstream,
			Vendor:  c.opts.Vendor,
			Message: apiErr.Error(),
			Err:     err,
		}
	}

	return client.Classify(c.opts.Vendor, err)
}
