package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/lalomorales22/roundtable/artifact"
	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/flow"
	"github.com/lalomorales22/roundtable/logging"
	"github.com/lalomorales22/roundtable/memory"
	"github.com/lalomorales22/roundtable/roster"
	"github.com/lalomorales22/roundtable/session"
	"github.com/lalomorales22/roundtable/transcript"
)

var (
	// ErrInvalidRound is returned when a round number or round limit is < 1.
	ErrInvalidRound = errors.New("invalid round")

	// ErrEmptyRoster is returned by New when the roster has no speaking agents.
	ErrEmptyRoster = errors.New("roster has no agents")
)

// Config defines tuning parameters for round execution.
type Config struct {
	// Window is the number of most recent messages rendered as context for
	// every agent call.
	Window int

	// CallTimeout bounds a single agent call. The call runs detached from
	// the caller's cancellation so an issued call either completes or times
	// out.
	CallTimeout time.Duration

	// PersistTimeout bounds the store writes that follow an agent call.
	PersistTimeout time.Duration

	// RetryAttempts is the total number of calls made per speaker when the
	// failure is a timeout or transport error. 1 disables retries.
	RetryAttempts int

	// RetryInterval is the pause between retries.
	RetryInterval time.Duration

	// SpeakerPause is the minimum spacing between the starts of consecutive
	// speakers of a dynamic round. Zero disables pacing.
	SpeakerPause time.Duration

	// ContinueThreshold is the percentage chance that a dynamic round below
	// the round limit asks for another one.
	ContinueThreshold int

	// MaxCallsPerRound caps agent calls, retries included, in one round.
	// 0 means unlimited.
	MaxCallsPerRound int

	// Memories enables MEMORY_STORE directives and memory injection into
	// personas.
	Memories bool

	// MemoryLimit is the number of memories injected per agent.
	MemoryLimit int
}

// DefaultConfig provides the production defaults.
var DefaultConfig = Config{
	Window:            transcript.DefaultWindow,
	CallTimeout:       120 * time.Second,
	PersistTimeout:    30 * time.Second,
	RetryAttempts:     1,
	RetryInterval:     time.Second,
	ContinueThreshold: flow.DefaultContinueThreshold,
	Memories:          true,
	MemoryLimit:       memory.DefaultRecallLimit,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains the round tuning parameters. Defaults to DefaultConfig.
	Config Config

	// Store persists conversations, artifacts and memories.
	// Defaults to the in-memory session.Store.
	Store core.Store

	// Selector picks speakers and decides continuation.
	// Defaults to a randomly seeded flow.Selector.
	Selector *flow.Selector

	// Callbacks receives lifecycle events. May be nil.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Engine runs conversation rounds over a fixed roster.
//
// Agent calls within a round are strictly sequential. Rounds of different
// conversations run concurrently while rounds of one conversation never
// overlap. Agent failures are recorded as conversation content and never
// abort a round; store failures and cancellation do.
type Engine struct {
	roster    *roster.Roster
	store     core.Store
	selector  *flow.Selector
	callbacks *CallbackManager
	logger    logging.Logger
	config    Config
	render    transcript.Builder

	mu    sync.Mutex
	locks map[string]*roundLock
}

type roundLock struct {
	ch   chan struct{}
	refs int
}

// New creates an Engine for r.
//
// Example:
//
//	eng, err := engine.New(r, func(o *engine.Options) {
//	    o.Store = sqliteStore
//	    o.Logger = logger
//	})
func New(r *roster.Roster, optFns ...func(o *Options)) (*Engine, error) {
	if r == nil || r.Len() == 0 {
		return nil, ErrEmptyRoster
	}

	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Store == nil {
		opts.Store = session.NewStore()
	}
	if opts.Selector == nil {
		opts.Selector = flow.NewSelector()
	}
	if opts.Config.Window <= 0 {
		opts.Config.Window = transcript.DefaultWindow
	}
	if opts.Config.RetryAttempts < 1 {
		opts.Config.RetryAttempts = 1
	}
	if opts.Config.CallTimeout <= 0 {
		opts.Config.CallTimeout = DefaultConfig.CallTimeout
	}
	if opts.Config.PersistTimeout <= 0 {
		opts.Config.PersistTimeout = DefaultConfig.PersistTimeout
	}

	return &Engine{
		roster:    r,
		store:     opts.Store,
		selector:  opts.Selector,
		callbacks: opts.Callbacks,
		logger:    logging.OrNoOp(opts.Logger),
		config:    opts.Config,
		render:    transcript.Builder{Store: opts.Store},
		locks:     make(map[string]*roundLock),
	}, nil
}

// Roster returns the roster the engine runs.
func (e *Engine) Roster() *roster.Roster { return e.roster }

// Store returns the backing store.
func (e *Engine) Store() core.Store { return e.store }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// lock acquires the round lock of a conversation, waiting while another
// round of it is in progress.
func (e *Engine) lock(ctx context.Context, conversationID string) (func(), error) {
	e.mu.Lock()
	l, ok := e.locks[conversationID]
	if !ok {
		l = &roundLock{ch: make(chan struct{}, 1)}
		e.locks[conversationID] = l
	}
	l.refs++
	e.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			e.release(conversationID, l)
		}, nil
	case <-ctx.Done():
		e.release(conversationID, l)
		return nil, ctx.Err()
	}
}

func (e *Engine) release(conversationID string, l *roundLock) {
	e.mu.Lock()
	defer e.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(e.locks, conversationID)
	}
}

func (e *Engine) roundLogger(conversationID string, round int) logging.Logger {
	if rl, ok := e.logger.(*logging.RoomLogger); ok {
		return rl.WithComponent("engine").WithConversation(conversationID, round)
	}
	return e.logger
}

// RunRound runs one dynamic round: a random subset of agents, excluding the
// previous speaker, each reply to the conversation in turn.
//
// The result reports whether the caller should run round+1; the engine never
// starts it on its own. ShouldContinue is always false once round reaches
// maxRounds.
func (e *Engine) RunRound(ctx context.Context, conversationID string, round, maxRounds int) (*core.RoundResult, error) {
	if round < 1 || maxRounds < 1 {
		return nil, fmt.Errorf("%w: round=%d max_rounds=%d", ErrInvalidRound, round, maxRounds)
	}

	unlock, err := e.lock(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := e.roundLogger(conversationID, round)
	start := time.Now()

	result, speakers, err := e.runRound(ctx, log, conversationID, round, maxRounds)

	e.afterRound(ctx, log, &CallbackContext{
		ConversationID: conversationID,
		Mode:           ModeDynamic,
		Round:          round,
		Speakers:       speakers,
		Duration:       time.Since(start),
		Err:            err,
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (e *Engine) runRound(ctx context.Context, log logging.Logger, conversationID string, round, maxRounds int) (*core.RoundResult, []string, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}

	last, _, err := e.store.LastSpeaker(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load last speaker: %w", err)
	}

	speakers := e.selector.Random(e.roster.Names(), last, e.roster.HumanName(), round)
	log.Debug("Speakers selected", "speakers", speakers, "last_speaker", last)

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeRound, &CallbackContext{
		ConversationID: conversationID,
		Mode:           ModeDynamic,
		Round:          round,
		Speakers:       speakers,
	}); err != nil {
		return nil, speakers, fmt.Errorf("before round callback: %w", err)
	}

	result := &core.RoundResult{
		Round:     round,
		Speakers:  speakers,
		Responses: make([]core.Reply, 0, len(speakers)),
		NextRound: round + 1,
	}

	budget := core.NewCallLimiter(e.config.MaxCallsPerRound)
	pacer := e.newPacer()

	for _, name := range speakers {
		if err := e.pause(ctx, log, pacer); err != nil {
			return nil, speakers, err
		}

		if err := ctx.Err(); err != nil {
			return nil, speakers, err
		}

		member, ok := e.roster.Lookup(name)
		if !ok {
			return nil, speakers, fmt.Errorf("speaker %q is not on the roster", name)
		}

		contextText, err := e.render.Render(ctx, conversationID, e.config.Window)
		if err != nil {
			return nil, speakers, err
		}

		reply, _, err := e.speak(ctx, log, turn{
			conversationID: conversationID,
			mode:           ModeDynamic,
			round:          round,
			member:         member,
			contextText:    contextText,
			budget:         budget,
		})
		if err != nil {
			return nil, speakers, err
		}

		result.Responses = append(result.Responses, *reply)
	}

	log.Debug("Round calls", "calls", budget.Count(), "remaining", budget.Remaining())

	result.ShouldContinue = len(speakers) > 0 && e.selector.Continue(round, maxRounds, e.config.ContinueThreshold)

	if err := e.touch(ctx, conversationID, conv.Summary); err != nil {
		return nil, speakers, err
	}

	return result, speakers, nil
}

// RunBuildRound runs one fixed-roster round: the optional user message is
// recorded, every agent speaks once in registration order and the
// summarizer, when configured, condenses the round into the conversation
// summary.
func (e *Engine) RunBuildRound(ctx context.Context, conversationID, userMessage string) (*core.BuildResult, error) {
	unlock, err := e.lock(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := e.roundLogger(conversationID, 0)
	start := time.Now()
	speakers := e.selector.FixedOrder(e.roster)

	result, err := e.runBuildRound(ctx, log, conversationID, userMessage, speakers)

	e.afterRound(ctx, log, &CallbackContext{
		ConversationID: conversationID,
		Mode:           ModeBuild,
		Speakers:       speakers,
		Duration:       time.Since(start),
		Err:            err,
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (e *Engine) runBuildRound(ctx context.Context, log logging.Logger, conversationID, userMessage string, speakers []string) (*core.BuildResult, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	if strings.TrimSpace(userMessage) != "" {
		if _, err := e.store.AppendMessage(ctx, conversationID, e.roster.HumanName(), userMessage); err != nil {
			return nil, fmt.Errorf("append user message: %w", err)
		}
	}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeRound, &CallbackContext{
		ConversationID: conversationID,
		Mode:           ModeBuild,
		Speakers:       speakers,
	}); err != nil {
		return nil, fmt.Errorf("before round callback: %w", err)
	}

	window, err := e.render.Render(ctx, conversationID, e.config.Window)
	if err != nil {
		return nil, err
	}

	result := &core.BuildResult{NewMessages: make([]core.Message, 0, len(speakers)+1)}
	budget := core.NewCallLimiter(e.config.MaxCallsPerRound)
	roundText := window

	for i, name := range speakers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		member, _ := e.roster.Lookup(name)

		contextText := window
		if i > 0 {
			if contextText, err = e.render.Render(ctx, conversationID, e.config.Window); err != nil {
				return nil, err
			}
		}

		reply, msg, err := e.speak(ctx, log, turn{
			conversationID: conversationID,
			mode:           ModeBuild,
			member:         member,
			contextText:    contextText,
			budget:         budget,
		})
		if err != nil {
			return nil, err
		}

		result.NewMessages = append(result.NewMessages, *msg)
		roundText = transcript.Append(roundText, name, reply.Text)
	}

	result.Summary = conv.Summary

	if summarizer, ok := e.roster.Summarizer(); ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reply, msg, err := e.speak(ctx, log, turn{
			conversationID: conversationID,
			mode:           ModeBuild,
			member:         summarizer,
			contextText:    roundText,
			budget:         budget,
			summarizer:     true,
		})
		if err != nil {
			return nil, err
		}

		result.NewMessages = append(result.NewMessages, *msg)
		if !reply.Failed {
			result.Summary = reply.Text
		}
	}

	log.Debug("Round calls", "calls", budget.Count(), "remaining", budget.Remaining())

	if err := e.touch(ctx, conversationID, result.Summary); err != nil {
		return nil, err
	}

	arts, err := e.store.ListArtifacts(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	result.Artifacts = arts

	return result, nil
}

// turn describes one agent call within a round.
type turn struct {
	conversationID string
	mode           string
	round          int
	member         roster.Member
	contextText    string
	budget         *core.CallLimiter
	// summarizer turns skip artifact extraction and memories.
	summarizer bool
}

// speak calls one agent and persists its reply. Agent failures are
// persisted as descriptive text; only store failures, an exhausted call
// budget and cancellation are returned as errors.
func (e *Engine) speak(ctx context.Context, log logging.Logger, t turn) (*core.Reply, *core.Message, error) {
	agent := t.member.Agent
	cbCtx := &CallbackContext{
		ConversationID: t.conversationID,
		Mode:           t.mode,
		Round:          t.round,
		Agent:          agent.Name,
		Vendor:         t.member.Vendor,
	}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeAgent, cbCtx); err != nil {
		return nil, nil, fmt.Errorf("before agent callback: %w", err)
	}

	useMemories := e.config.Memories && !t.summarizer
	if useMemories {
		mems, err := e.store.Recall(ctx, agent.Name, e.config.MemoryLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("recall memories for %s: %w", agent.Name, err)
		}
		agent = agent.WithPersona(memory.PersonaWithMemories(agent.Persona, mems))
	}

	start := time.Now()
	text, agentErr, err := e.call(ctx, t.member.Vendor, t.member.Client, agent, t.contextText, t.budget)
	cbCtx.Duration = time.Since(start)
	if err != nil {
		return nil, nil, err
	}

	if rl, ok := log.(*logging.RoomLogger); ok {
		var logErr error
		if agentErr != nil {
			logErr = agentErr
		}
		rl.LogAgentCall(agent.Name, t.member.Vendor, cbCtx.Duration, logErr)
	} else if agentErr != nil {
		log.Warn("Agent call failed", "agent", agent.Name, "vendor", t.member.Vendor, "error", agentErr.Error())
	}

	// Everything below runs detached so a reply that was produced is always
	// persisted in full.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.PersistTimeout)
	defer cancel()

	reply := &core.Reply{Agent: agent.Name}
	var (
		art        *core.Artifact
		directives []memory.Directive
	)

	if agentErr != nil {
		reply.Text = core.Describe(agent.Name, agentErr)
		reply.Failed = true
	} else {
		reply.Text = text
		if !t.summarizer {
			reply.Text, art = artifact.Extract(agent.Name, reply.Text)
		}
		if useMemories {
			reply.Text, directives = memory.ExtractDirectives(reply.Text)
		}
	}

	msg, err := e.store.AppendMessage(persistCtx, t.conversationID, agent.Name, reply.Text)
	if err != nil {
		return nil, nil, fmt.Errorf("append message for %s: %w", agent.Name, err)
	}
	reply.MessageID = msg.ID

	// Memories are stored only once the reply that carries them is persisted.
	if len(directives) > 0 {
		n, err := memory.Remember(persistCtx, e.store, agent.Name, directives)
		if err != nil {
			return nil, nil, fmt.Errorf("store memories for %s: %w", agent.Name, err)
		}
		log.Debug("Memories stored", "agent", agent.Name, "count", n)
	}

	if art != nil {
		art.ConversationID = t.conversationID
		art.MessageID = msg.ID

		stored, err := e.store.AppendArtifact(persistCtx, *art)
		if err != nil {
			return nil, nil, fmt.Errorf("append artifact %s: %w", art.Filename, err)
		}
		reply.Artifact = stored

		e.notify(persistCtx, log, CallbackOnArtifact, &CallbackContext{
			ConversationID: t.conversationID,
			Mode:           t.mode,
			Round:          t.round,
			Agent:          agent.Name,
			Vendor:         t.member.Vendor,
			Artifact:       stored,
		})
	}

	cbCtx.Reply = reply
	cbCtx.AgentErr = agentErr
	e.notify(persistCtx, log, CallbackAfterAgent, cbCtx)

	return reply, msg, nil
}

// call issues the agent call with the retry policy. Agent failures come back
// as agentErr; err is reserved for conditions that abort the round.
func (e *Engine) call(
	ctx context.Context,
	vendor string,
	client core.AgentClient,
	agent core.Agent,
	contextText string,
	budget *core.CallLimiter,
) (string, *core.AgentError, error) {
	op := func() (string, error) {
		if err := budget.Acquire(); err != nil {
			return "", backoff.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.CallTimeout)
		defer cancel()

		text, err := client.Complete(callCtx, agent, contextText)
		if err == nil && strings.TrimSpace(text) == "" {
			err = core.NewAgentError(core.KindMalformedResponse, vendor, "empty reply")
		}
		if err != nil {
			ae := core.AsAgentError(err)
			if ae.Vendor == "" {
				ae.Vendor = vendor
			}
			if !ae.Retryable() {
				return "", backoff.Permanent(ae)
			}
			return "", ae
		}

		return text, nil
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(e.config.RetryInterval)),
		backoff.WithMaxTries(uint(e.config.RetryAttempts)),
	)
	if err == nil {
		return text, nil, nil
	}

	var ae *core.AgentError
	if errors.As(err, &ae) {
		return "", ae, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", nil, ctxErr
	}

	return "", nil, fmt.Errorf("call %s: %w", agent.Name, err)
}

func (e *Engine) newPacer() *rate.Limiter {
	if e.config.SpeakerPause <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(e.config.SpeakerPause), 1)
}

// pause spaces the starts of consecutive speakers by at least
// SpeakerPause. The first speaker of a round never waits.
func (e *Engine) pause(ctx context.Context, log logging.Logger, pacer *rate.Limiter) error {
	if pacer == nil {
		return nil
	}

	if err := pacer.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Debug("Skipping speaker pause", "error", err.Error())
	}

	return nil
}

// touch bumps UpdatedAt, writing summary as the current summary.
func (e *Engine) touch(ctx context.Context, conversationID, summary string) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.PersistTimeout)
	defer cancel()

	if err := e.store.UpdateSummary(persistCtx, conversationID, summary); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	return nil
}

func (e *Engine) notify(ctx context.Context, log logging.Logger, t CallbackType, cbCtx *CallbackContext) {
	if err := e.callbacks.ExecuteCallbacks(ctx, t, cbCtx); err != nil {
		log.Warn("Callback failed", "callback", string(t), "error", err.Error())
	}
}

func (e *Engine) afterRound(ctx context.Context, log logging.Logger, cbCtx *CallbackContext) {
	if rl, ok := log.(*logging.RoomLogger); ok {
		rl.LogRound(cbCtx.Mode, cbCtx.Speakers, cbCtx.Duration, cbCtx.Err)
	} else if cbCtx.Err != nil {
		log.Error("Round failed", "mode", cbCtx.Mode, "error", cbCtx.Err.Error())
	}

	e.notify(context.WithoutCancel(ctx), log, CallbackAfterRound, cbCtx)
}
