// Package engine runs conversation rounds.
//
// An Engine owns a fixed roster.Roster and a core.Store and offers two
// synchronous operations:
//
//   - RunRound runs one dynamic round. A flow.Selector picks a random
//     subset of agents (never the previous non-human speaker), each agent
//     replies in turn and the result tells the caller whether to run the
//     next round. The engine never recurses; runner.RunCascade is the
//     caller-side loop.
//   - RunBuildRound records an optional human message, lets every agent
//     speak once in registration order and, when a summarizer is
//     configured, stores its reply as the new conversation summary.
//
// # Per-speaker pipeline
//
// For every speaker the engine checks for cancellation, renders the most
// recent Window messages as context, calls the agent (retrying timeouts and
// transport errors up to RetryAttempts), extracts the first fenced code
// block as an artifact, strips MEMORY_STORE directives and persists the
// reply before moving on. The directives are stored as memories once the
// reply is persisted. Agent failures never abort a round: the failure
// is rendered by core.Describe and stored as the agent's reply. Store
// failures and cancellation abort the round and are returned.
//
// Issued agent calls and the writes that follow them run on contexts
// detached from the caller, bounded by CallTimeout and PersistTimeout, so a
// cancelled caller never leaves a half-written turn behind.
//
// # Concurrency
//
// Calls within a round are strictly sequential. Rounds of one conversation
// are serialized by a per-conversation lock whose wait honours the caller's
// context; rounds of different conversations run in parallel.
//
// # Callbacks
//
// A CallbackManager receives before/after round, before/after agent and
// artifact events. The metrics package registers its collectors this way.
//
// Example:
//
//	eng, err := engine.New(r, func(o *engine.Options) {
//	    o.Store = store
//	    o.Logger = logger
//	})
//	if err != nil {
//	    return err
//	}
//	res, err := eng.RunRound(ctx, conversationID, 1, 8)
package engine
