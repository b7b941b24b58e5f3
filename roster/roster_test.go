package roster

import (
	"testing"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/client/anthropic"
	"github.com/lalomorales22/roundtable/client/gemini"
	"github.com/lalomorales22/roundtable/client/openai"
	"github.com/lalomorales22/roundtable/config"
	"github.com/lalomorales22/roundtable/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(name string) Member {
	return Member{Agent: core.Agent{Name: name, Persona: "p"}, Client: client.NewMock(), Vendor: "mock"}
}

func TestNew(t *testing.T) {
	s := member("S")
	r, err := New([]Member{member("A"), member("B"), member("C")}, func(o *Options) { o.Summarizer = &s })
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, r.Names())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, core.DefaultHumanSpeaker, r.HumanName())

	got, ok := r.Summarizer()
	require.True(t, ok)
	assert.Equal(t, "S", got.Agent.Name)

	_, ok = r.Lookup("S")
	assert.True(t, ok)
	_, ok = r.Lookup("Z")
	assert.False(t, ok)

	members := r.Members()
	members[0].Agent.Name = "mutated"
	assert.Equal(t, "A", r.Names()[0])
}

func TestNew_Errors(t *testing.T) {
	_, err := New([]Member{member("A"), member("A")})
	assert.ErrorIs(t, err, ErrDuplicateAgent)

	_, err = New([]Member{{Agent: core.Agent{Name: "A"}}})
	assert.ErrorIs(t, err, ErrInvalidMember)

	_, err = New([]Member{member("")})
	assert.ErrorIs(t, err, ErrInvalidMember)

	_, err = New([]Member{member(core.DefaultHumanSpeaker)})
	assert.ErrorIs(t, err, ErrInvalidMember)

	s := member("A")
	_, err = New([]Member{member("A")}, func(o *Options) { o.Summarizer = &s })
	assert.ErrorIs(t, err, ErrDuplicateAgent)
}

func TestBuild_Defaults(t *testing.T) {
	r, err := Build(config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 8, r.Len())

	claude, ok := r.Lookup("Claude")
	require.True(t, ok)
	assert.IsType(t, &anthropic.Client{}, claude.Client)

	gem, _ := r.Lookup("Gemini")
	assert.IsType(t, &gemini.Client{}, gem.Client)

	llama, _ := r.Lookup("Llama")
	qwen, _ := r.Lookup("Qwen")
	assert.IsType(t, &openai.Client{}, llama.Client)
	assert.Same(t, llama.Client, qwen.Client)
	assert.Equal(t, "groq", llama.Client.(*openai.Client).Vendor())

	s, ok := r.Summarizer()
	require.True(t, ok)
	assert.Equal(t, "openai", s.Vendor)
}

func TestBuild_Overrides(t *testing.T) {
	mock := client.NewMock()
	cfg := config.Defaults()

	r, err := Build(cfg, func(o *BuildOptions) {
		o.Overrides = map[string]core.AgentClient{"claude": mock}
	})
	require.NoError(t, err)

	claude, _ := r.Lookup("Claude")
	assert.Same(t, mock, claude.Client)
}

func TestBuild_UnknownKind(t *testing.T) {
	cfg := config.Defaults()
	cfg.APIs["claude"] = config.APIConfig{Kind: "carrier-pigeon"}

	_, err := Build(cfg)
	assert.ErrorIs(t, err, ErrInvalidMember)
}
