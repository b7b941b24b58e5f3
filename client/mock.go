package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lalomorales22/roundtable/core"
)

// MockReply is one scripted outcome of a Mock call.
type MockReply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// MockCall records one Complete invocation.
type MockCall struct {
	Agent       string
	Persona     string
	ContextText string
}

// Mock is a scripted core.AgentClient. Replies are queued per agent name
// and consumed in order; an agent without queued replies answers with
// Default, or "Mock response from <name>" when Default is nil.
type Mock struct {
	// Default produces the reply when nothing is queued for the agent.
	Default func(agent core.Agent, contextText string) (string, error)

	mu      sync.Mutex
	scripts map[string][]MockReply
	calls   []MockCall
}

var _ core.AgentClient = (*Mock)(nil)

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{scripts: make(map[string][]MockReply)}
}

// Script queues replies for agent.
func (m *Mock) Script(agent string, replies ...MockReply) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scripts[agent] = append(m.scripts[agent], replies...)

	return m
}

// Reply queues successful texts for agent.
func (m *Mock) Reply(agent string, texts ...string) *Mock {
	replies := make([]MockReply, len(texts))
	for i, t := range texts {
		replies[i] = MockReply{Text: t}
	}

	return m.Script(agent, replies...)
}

// Fail queues one failure for agent.
func (m *Mock) Fail(agent string, err error) *Mock {
	return m.Script(agent, MockReply{Err: err})
}

// Complete implements core.AgentClient.
func (m *Mock) Complete(ctx context.Context, agent core.Agent, contextText string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Agent: agent.Name, Persona: agent.Persona, ContextText: contextText})
	var (
		next   MockReply
		queued bool
	)
	if q := m.scripts[agent.Name]; len(q) > 0 {
		next, queued = q[0], true
		m.scripts[agent.Name] = q[1:]
	}
	m.mu.Unlock()

	if next.Delay > 0 {
		t := time.NewTimer(next.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", Classify("mock", ctx.Err())
		case <-t.C:
		}
	}

	if !queued {
		if m.Default != nil {
			return m.Default(agent, contextText)
		}
		return fmt.Sprintf("Mock response from %s", agent.Name), nil
	}

	if next.Err != nil {
		return "", Classify("mock", next.Err)
	}

	if next.Text == "" {
		return "", core.NewAgentError(core.KindMalformedResponse, "mock", "empty reply")
	}

	return next.Text, nil
}

// Calls returns a copy of every recorded invocation in call order.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)

	return out
}

// CallCount returns how many times agent was called.
func (m *Mock) CallCount(agent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if c.Agent == agent {
			n++
		}
	}

	return n
}
