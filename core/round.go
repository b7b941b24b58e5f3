package core

// Reply is one agent turn produced during a round.
type Reply struct {
	Agent     string `json:"agent"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
	// Failed marks replies whose Text describes an AgentClient failure.
	Failed bool `json:"failed,omitempty"`
	// Artifact is the artifact extracted from this reply, if any.
	Artifact *Artifact `json:"artifact,omitempty"`
}

// RoundResult is the outcome of one dynamic round.
type RoundResult struct {
	Round          int      `json:"round"`
	Speakers       []string `json:"speakers"`
	Responses      []Reply  `json:"responses"`
	ShouldContinue bool     `json:"should_continue"`
	NextRound      int      `json:"next_round"`
}

// BuildResult is the outcome of one fixed-roster build round.
type BuildResult struct {
	// NewMessages holds the agent and summarizer messages of the round in
	// persistence order. The human message that started the round is not
	// included.
	NewMessages []Message `json:"new_messages"`
	// Artifacts holds every artifact of the conversation, oldest first.
	Artifacts []Artifact `json:"artifacts"`
	Summary   string     `json:"summary,omitempty"`
}
