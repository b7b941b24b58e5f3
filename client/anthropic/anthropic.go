// Package anthropic provides a core.AgentClient for the Anthropic Messages
// API. The persona travels in the dedicated system field.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/core"
)

const vendor = "anthropic"

// openingPrompt stands in for an empty transcript; the Messages API rejects
// empty text blocks.
const openingPrompt = "The conversation has not started yet. Open it."

// Options configures the Anthropic client (model id, temperature, max
// tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	HTTPClient  *http.Client
}

// Client implements core.AgentClient over the Messages API.
type Client struct {
	client  *anthropic.Client
	opts    Options
	hasCred bool
}

var _ core.AgentClient = (*Client)(nil)

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// New creates a client using the official SDK with retries disabled.
func New(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = client.NewHTTPClient()
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(opts.HTTPClient),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	c := anthropic.NewClient(clientOpts...)

	return &Client{client: &c, opts: opts, hasCred: strings.TrimSpace(opts.APIKey) != ""}
}

// NewFromClient creates a client from an existing SDK client.
func NewFromClient(c *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{client: c, opts: opts, hasCred: true}
}

// Vendor returns "anthropic".
func (c *Client) Vendor() string { return vendor }

// Complete implements core.AgentClient.
func (c *Client) Complete(ctx context.Context, agent core.Agent, contextText string) (string, error) {
	if !c.hasCred {
		return "", client.MissingCredential(vendor)
	}

	model := c.opts.Model
	if agent.Model != "" {
		model = anthropic.Model(agent.Model)
	}

	if strings.TrimSpace(contextText) == "" {
		contextText = openingPrompt
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(contextText)),
		},
	}
	if agent.Persona != "" {
		params.System = []anthropic.TextBlockParam{{Text: agent.Persona}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &core.AgentError{Kind: core.KindUpstream, Vendor: vendor, Message: apiErr.Error(), Err: err}
		}
		return "", client.Classify(vendor, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", core.NewAgentError(core.KindMalformedResponse, vendor, "no text content in response")
	}

	return text, nil
}
