package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("openai", nil))

	ae := Classify("openai", context.DeadlineExceeded)
	assert.Equal(t, core.KindTimeout, ae.Kind)
	assert.Equal(t, "openai", ae.Vendor)

	ae = Classify("gemini", &net.OpError{Op: "dial", Err: timeoutErr{}})
	assert.Equal(t, core.KindTimeout, ae.Kind)

	ae = Classify("groq", errors.New("connection reset by peer"))
	assert.Equal(t, core.KindTransport, ae.Kind)

	orig := core.NewAgentError(core.KindUpstream, "", "status 500")
	ae = Classify("xai", orig)
	assert.Same(t, orig, ae)
	assert.Equal(t, "xai", ae.Vendor)
}

func TestMissingCredential(t *testing.T) {
	err := MissingCredential("anthropic")
	assert.Equal(t, core.KindMissingCredential, err.Kind)
	assert.Equal(t, "anthropic: missing credential: anthropic API key is not configured", err.Error())
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient()
	assert.Equal(t, DefaultTotalTimeout, c.Timeout)

	c = NewHTTPClient(func(o *HTTPOptions) { o.TotalTimeout = time.Second })
	assert.Equal(t, time.Second, c.Timeout)
}

func TestMock_ScriptedReplies(t *testing.T) {
	m := NewMock().
		Reply("A", "first", "second").
		Fail("B", core.NewAgentError(core.KindUpstream, "mock", "rate limited"))

	ctx := context.Background()

	out, err := m.Complete(ctx, core.Agent{Name: "A"}, "ctx-1")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = m.Complete(ctx, core.Agent{Name: "A"}, "ctx-2")
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	out, err = m.Complete(ctx, core.Agent{Name: "A"}, "ctx-3")
	require.NoError(t, err)
	assert.Equal(t, "Mock response from A", out)

	_, err = m.Complete(ctx, core.Agent{Name: "B"}, "")
	require.Error(t, err)
	assert.Equal(t, core.KindUpstream, core.AsAgentError(err).Kind)

	calls := m.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "ctx-2", calls[1].ContextText)
	assert.Equal(t, 3, m.CallCount("A"))
}

func TestMock_DelayHonoursContext(t *testing.T) {
	m := NewMock().Script("slow", MockReply{Text: "late", Delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Complete(ctx, core.Agent{Name: "slow"}, "")
	require.Error(t, err)
	assert.Equal(t, core.KindTimeout, core.AsAgentError(err).Kind)
}

func TestMock_Default(t *testing.T) {
	m := NewMock()
	m.Default = func(a core.Agent, text string) (string, error) { return a.Name + " saw " + text, nil }

	out, err := m.Complete(context.Background(), core.Agent{Name: "X"}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "X saw hello", out)
}
