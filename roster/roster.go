// Package roster holds the immutable team of agents a conversation runs
// with, each bound to the core.AgentClient chosen for its vendor.
package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lalomorales22/roundtable/core"
)

var (
	// ErrDuplicateAgent is returned when two members share a name.
	ErrDuplicateAgent = errors.New("duplicate agent")
	// ErrInvalidMember is returned for members without a name or client.
	ErrInvalidMember = errors.New("invalid roster member")
)

// Member binds an agent definition to the client that serves it.
type Member struct {
	Agent  core.Agent
	Client core.AgentClient
	// Vendor names the API entry, used for logs and metrics.
	Vendor string
}

// Options configures New.
type Options struct {
	// Summarizer is the optional member run once at the end of build rounds.
	Summarizer *Member
	// HumanName is the speaker name of the human participant.
	HumanName string
}

// Roster is the fixed, ordered agent team. It is never mutated after New
// and is safe for concurrent use.
type Roster struct {
	members    []Member
	index      map[string]int
	summarizer *Member
	human      string
}

// New validates members and builds a Roster preserving their order.
func New(members []Member, optFns ...func(o *Options)) (*Roster, error) {
	opts := Options{HumanName: core.DefaultHumanSpeaker}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Roster{
		members: make([]Member, 0, len(members)),
		index:   make(map[string]int, len(members)),
		human:   opts.HumanName,
	}

	validate := func(m Member) error {
		name := strings.TrimSpace(m.Agent.Name)
		if name == "" {
			return fmt.Errorf("%w: empty agent name", ErrInvalidMember)
		}
		if m.Client == nil {
			return fmt.Errorf("%w: agent %q has no client", ErrInvalidMember, name)
		}
		if name == r.human {
			return fmt.Errorf("%w: agent %q collides with the human speaker", ErrInvalidMember, name)
		}
		return nil
	}

	for _, m := range members {
		if err := validate(m); err != nil {
			return nil, err
		}
		if _, dup := r.index[m.Agent.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAgent, m.Agent.Name)
		}
		r.index[m.Agent.Name] = len(r.members)
		r.members = append(r.members, m)
	}

	if opts.Summarizer != nil {
		s := *opts.Summarizer
		if err := validate(s); err != nil {
			return nil, err
		}
		if _, dup := r.index[s.Agent.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAgent, s.Agent.Name)
		}
		r.summarizer = &s
	}

	return r, nil
}

// Len returns the number of non-summarizer members.
func (r *Roster) Len() int { return len(r.members) }

// Names returns member names in registration order, summarizer excluded.
func (r *Roster) Names() []string {
	out := make([]string, len(r.members))
	for i, m := range r.members {
		out[i] = m.Agent.Name
	}
	return out
}

// Members returns a copy of the members in registration order.
func (r *Roster) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// Lookup finds a member (summarizer included) by name.
func (r *Roster) Lookup(name string) (Member, bool) {
	if i, ok := r.index[name]; ok {
		return r.members[i], true
	}
	if r.summarizer != nil && r.summarizer.Agent.Name == name {
		return *r.summarizer, true
	}
	return Member{}, false
}

// Summarizer returns the summarizer member, if configured.
func (r *Roster) Summarizer() (Member, bool) {
	if r.summarizer == nil {
		return Member{}, false
	}
	return *r.summarizer, true
}

// HumanName returns the speaker name used for human messages.
func (r *Roster) HumanName() string { return r.human }
