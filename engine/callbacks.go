package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lalomorales22/roundtable/core"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks hook into the round pipeline without modifying it. Before*
// callbacks may abort the operation by returning an error; errors from the
// remaining types are logged and otherwise ignored.
type CallbackType string

const (
	// CallbackBeforeRound is triggered after speakers are selected and before
	// the first agent call.
	CallbackBeforeRound CallbackType = "before_round"

	// CallbackAfterRound is triggered when a round ends, successfully or not.
	CallbackAfterRound CallbackType = "after_round"

	// CallbackBeforeAgent is triggered before an agent is called.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent is triggered once the reply (or its failure text)
	// has been persisted.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackOnArtifact is triggered after an extracted artifact is stored.
	CallbackOnArtifact CallbackType = "on_artifact"
)

// Round modes reported in CallbackContext.Mode.
const (
	ModeDynamic = "dynamic"
	ModeBuild   = "build"
)

// CallbackContext carries the information available at a callback point.
// Fields that do not apply to a callback type are left zero.
type CallbackContext struct {
	CallbackType   CallbackType
	ConversationID string
	// Mode is ModeDynamic or ModeBuild.
	Mode string
	// Round is the dynamic round number; zero for build rounds.
	Round    int
	Speakers []string

	// Agent and Vendor identify the speaker for agent callbacks.
	Agent  string
	Vendor string
	Reply  *core.Reply
	// AgentErr is the classified failure of the agent call, if any.
	AgentErr *core.AgentError

	Artifact *core.Artifact

	// Duration is the elapsed time of the agent call or round.
	Duration time.Duration
	// Err is the error that aborted the round, if any.
	Err error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for round lifecycle hooks.
//
// Callbacks run synchronously on the round's goroutine and should be fast.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackAfterAgent, func(ctx context.Context, c *CallbackContext) error {
//	    log.Printf("%s replied in %s", c.Agent, c.Duration)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is the registry of callbacks consulted by the Engine.
//
// Callbacks are executed in registration order; the first error stops the
// remaining callbacks of that type. Registration and execution are safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
//
// Callbacks are executed sequentially in registration order. If any callback
// returns an error, execution stops immediately and the error is returned.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback forwards a one-line description of each event it handles
// to a logging function.
//
// Example:
//
//	cb := NewLoggingCallback(CallbackAfterAgent, func(msg string) { log.Print(msg) })
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event. A nil logger function makes it a no-op.
func (c *LoggingCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	message := fmt.Sprintf("[%s] conversation=%s mode=%s", c.callbackType, callbackCtx.ConversationID, callbackCtx.Mode)
	if callbackCtx.Round > 0 {
		message += fmt.Sprintf(" round=%d", callbackCtx.Round)
	}
	if callbackCtx.Agent != "" {
		message += " agent=" + callbackCtx.Agent
	}
	if callbackCtx.AgentErr != nil {
		message += " agent_error=" + string(callbackCtx.AgentErr.Kind)
	}
	if callbackCtx.Artifact != nil {
		message += " artifact=" + callbackCtx.Artifact.Filename
	}
	if callbackCtx.Err != nil {
		message += " error=" + callbackCtx.Err.Error()
	}
	c.logger(message)

	return nil
}
