package roster

import (
	"fmt"
	"net/http"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/client/anthropic"
	"github.com/lalomorales22/roundtable/client/gemini"
	"github.com/lalomorales22/roundtable/client/openai"
	"github.com/lalomorales22/roundtable/config"
	"github.com/lalomorales22/roundtable/core"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// HTTPClient is shared by every vendor client. Defaults to
	// client.NewHTTPClient with the configured connect and call timeouts.
	HTTPClient *http.Client
	// Overrides replaces the client of the named API entries.
	Overrides map[string]core.AgentClient
}

// Build creates one client per API entry referenced by the configuration
// and binds every agent to its client. Vendor selection happens here once;
// nothing downstream branches on the vendor.
func Build(cfg *config.Config, optFns ...func(o *BuildOptions)) (*Roster, error) {
	opts := BuildOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = client.NewHTTPClient(func(o *client.HTTPOptions) {
			if cfg.Round.ConnectTimeout > 0 {
				o.ConnectTimeout = cfg.Round.ConnectTimeout
			}
			if cfg.Round.CallTimeout > 0 {
				o.TotalTimeout = cfg.Round.CallTimeout
			}
		})
	}

	clients := make(map[string]core.AgentClient, len(cfg.APIs))
	clientFor := func(name string) (core.AgentClient, error) {
		if c, ok := clients[name]; ok {
			return c, nil
		}
		if c, ok := opts.Overrides[name]; ok {
			clients[name] = c
			return c, nil
		}

		api, ok := cfg.APIs[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown api %q", ErrInvalidMember, name)
		}

		c, err := newClient(name, api, opts.HTTPClient)
		if err != nil {
			return nil, err
		}
		clients[name] = c

		return c, nil
	}

	members := make([]Member, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		c, err := clientFor(a.API)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{Agent: a, Client: c, Vendor: a.API})
	}

	var summarizer *Member
	if cfg.Summarizer != nil {
		c, err := clientFor(cfg.Summarizer.API)
		if err != nil {
			return nil, err
		}
		summarizer = &Member{Agent: *cfg.Summarizer, Client: c, Vendor: cfg.Summarizer.API}
	}

	return New(members, func(o *Options) {
		o.Summarizer = summarizer
		o.HumanName = cfg.Round.HumanName
	})
}

func newClient(name string, api config.APIConfig, hc *http.Client) (core.AgentClient, error) {
	switch api.Kind {
	case config.KindOpenAI:
		return openai.New(func(o *openai.Options) {
			o.Vendor = name
			o.APIKey = api.Key
			o.BaseURL = api.BaseURL
			o.HTTPClient = hc
			if api.Model != "" {
				o.Model = api.Model
			}
		}), nil
	case config.KindAnthropic:
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = api.Key
			o.BaseURL = api.BaseURL
			o.HTTPClient = hc
		}), nil
	case config.KindGemini:
		return gemini.New(func(o *gemini.Options) {
			o.APIKey = api.Key
			o.HTTPClient = hc
			if api.BaseURL != "" {
				o.BaseURL = api.BaseURL
			}
			if api.Model != "" {
				o.Model = api.Model
			}
			if api.MaxContextTokens > 0 {
				o.MaxContextTokens = api.MaxContextTokens
			}
		}), nil
	case config.KindMock:
		return client.NewMock(), nil
	default:
		return nil, fmt.Errorf("%w: api %q has unknown kind %q", ErrInvalidMember, name, api.Kind)
	}
}
