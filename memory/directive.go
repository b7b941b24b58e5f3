package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lalomorales22/roundtable/core"
)

const (
	// DefaultImportance is assigned to memories stored through directives.
	DefaultImportance = 5
	// DefaultRecallLimit is the number of memories injected into a persona.
	DefaultRecallLimit = 10
)

var directive = regexp.MustCompile(`(?m)MEMORY_STORE:([^:\n]+):([^\n]+)`)

// Directive is one MEMORY_STORE instruction found in a reply.
type Directive struct {
	Key   string
	Value string
}

// ExtractDirectives returns text with every MEMORY_STORE directive replaced
// by a short marker, plus the directives in order of appearance.
func ExtractDirectives(text string) (string, []Directive) {
	var found []Directive

	cleaned := directive.ReplaceAllStringFunc(text, func(match string) string {
		sub := directive.FindStringSubmatch(match)
		key := strings.TrimSpace(sub[1])
		value := strings.TrimSpace(sub[2])
		if key == "" || value == "" {
			return match
		}
		found = append(found, Directive{Key: key, Value: value})
		return fmt.Sprintf("[Stored memory: %s]", key)
	})

	return cleaned, found
}

// Remember stores directives for agent with DefaultImportance, stopping at
// the first failure. It returns how many were stored.
func Remember(ctx context.Context, store core.MemoryStore, agent string, directives []Directive) (int, error) {
	for i, d := range directives {
		err := store.Remember(ctx, core.Memory{
			Agent:      agent,
			Key:        d.Key,
			Value:      d.Value,
			Importance: DefaultImportance,
		})
		if err != nil {
			return i, fmt.Errorf("remember %q: %w", d.Key, err)
		}
	}

	return len(directives), nil
}

// PersonaWithMemories appends memories to persona under a
// "Your stored memories:" heading. The persona is returned unchanged when
// there is nothing to add.
func PersonaWithMemories(persona string, memories []core.Memory) string {
	if len(memories) == 0 {
		return persona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nYour stored memories:")
	for _, m := range memories {
		b.WriteString("\n- ")
		b.WriteString(m.Key)
		b.WriteString(": ")
		b.WriteString(m.Value)
	}

	return b.String()
}
