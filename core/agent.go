package core

import "context"

// DefaultHumanSpeaker is the speaker name recorded for the human participant.
const DefaultHumanSpeaker = "User"

// Agent is the static, immutable definition of one roster member.
type Agent struct {
	Name    string `json:"name" yaml:"name"`
	Role    string `json:"role,omitempty" yaml:"role"`
	Persona string `json:"persona" yaml:"persona"`
	// API names the vendor entry in the API configuration backing this agent.
	API   string `json:"api" yaml:"api"`
	Model string `json:"model" yaml:"model"`
}

// WithPersona returns a copy of the agent using persona as its system prompt.
func (a Agent) WithPersona(persona string) Agent {
	a.Persona = persona
	return a
}

// AgentClient is the uniform capability wrapper around one vendor's chat
// completion API.
//
// Complete turns the agent persona (system prompt) plus one rendered
// transcript into reply text. Implementations issue exactly one outbound
// call and never retry. A failure is always returned as an *AgentError so
// callers can record it as conversation content.
type AgentClient interface {
	Complete(ctx context.Context, agent Agent, contextText string) (string, error)
}

// AgentClientFunc adapts a plain function to the AgentClient interface.
type AgentClientFunc func(ctx context.Context, agent Agent, contextText string) (string, error)

// Complete implements AgentClient.
func (f AgentClientFunc) Complete(ctx context.Context, agent Agent, contextText string) (string, error) {
	return f(ctx, agent, contextText)
}
