package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/logging"
)

// DefaultMaxRounds is the round limit used when a cascade is started with
// maxRounds <= 0.
const DefaultMaxRounds = 8

// ErrCascadeActive is returned when a cascade is already running for the
// conversation.
var ErrCascadeActive = errors.New("cascade already running")

// RoundRunner runs single dynamic rounds. *engine.Engine implements it.
type RoundRunner interface {
	RunRound(ctx context.Context, conversationID string, round, maxRounds int) (*core.RoundResult, error)
}

// Options holds configuration overrides passed to New().
type Options struct {
	// MaxRounds is the default round limit.
	MaxRounds int
	// RoundPause is the pause between consecutive rounds of a cascade.
	RoundPause time.Duration
	// ResultBufferSize sets channel buffering for streamed round results.
	ResultBufferSize int
	// Logging services.
	Logger logging.Logger
}

// Runner drives cascades: it keeps calling RunRound while the previous
// round asks to continue. Public methods are safe for concurrent use.
type Runner struct {
	rounds RoundRunner

	maxRounds        int
	roundPause       time.Duration
	resultBufferSize int
	logger           logging.Logger

	activeRuns map[string]activeRun
	mu         sync.Mutex
}

type activeRun struct {
	conversationID string
	cancel         context.CancelFunc
}

// New constructs a Runner with optional overrides.
func New(rounds RoundRunner, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxRounds:        DefaultMaxRounds,
		ResultBufferSize: 8,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}

	return &Runner{
		rounds:           rounds,
		maxRounds:        opts.MaxRounds,
		roundPause:       opts.RoundPause,
		resultBufferSize: opts.ResultBufferSize,
		logger:           logging.OrNoOp(opts.Logger),
		activeRuns:       make(map[string]activeRun),
	}
}

// Start launches a cascade asynchronously. Round results are streamed in
// order; the error channel receives at most one terminal error. Both
// channels are closed when the cascade ends.
func (r *Runner) Start(
	ctx context.Context,
	conversationID string,
	maxRounds int,
) (string, <-chan core.RoundResult, <-chan error, error) {
	runID := core.NewID()

	ctx, cancel := context.WithCancel(ctx)
	if err := r.register(runID, conversationID, cancel); err != nil {
		cancel()
		return "", nil, nil, err
	}

	resultsCh := make(chan core.RoundResult, r.resultBufferSize)
	errorsCh := make(chan error, 1)

	go func() {
		defer func() {
			r.unregister(runID)
			cancel()
			close(resultsCh)
			close(errorsCh)
		}()

		err := r.cascade(ctx, conversationID, maxRounds, func(res core.RoundResult) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case resultsCh <- res:
				return nil
			}
		})
		if err != nil {
			errorsCh <- err
		}
	}()

	return runID, resultsCh, errorsCh, nil
}

// RunCascade runs rounds 1, 2, ... until a round does not ask to continue,
// maxRounds is reached or an error occurs. It returns every completed round;
// on error the rounds completed before the failure are returned with it.
func (r *Runner) RunCascade(ctx context.Context, conversationID string, maxRounds int) ([]core.RoundResult, error) {
	runID := core.NewID()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.register(runID, conversationID, cancel); err != nil {
		return nil, err
	}
	defer r.unregister(runID)

	var results []core.RoundResult
	err := r.cascade(ctx, conversationID, maxRounds, func(res core.RoundResult) error {
		results = append(results, res)
		return nil
	})

	return results, err
}

// Cancel cancels a running cascade by run ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	run, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	run.cancel()

	return nil
}

// Active reports whether a cascade is running for the conversation.
func (r *Runner) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, run := range r.activeRuns {
		if run.conversationID == conversationID {
			return true
		}
	}

	return false
}

func (r *Runner) register(runID, conversationID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, run := range r.activeRuns {
		if run.conversationID == conversationID {
			return fmt.Errorf("conversation %s: %w", conversationID, ErrCascadeActive)
		}
	}
	r.activeRuns[runID] = activeRun{conversationID: conversationID, cancel: cancel}

	return nil
}

func (r *Runner) unregister(runID string) {
	r.mu.Lock()
	delete(r.activeRuns, runID)
	r.mu.Unlock()
}

func (r *Runner) cascade(ctx context.Context, conversationID string, maxRounds int, emit func(core.RoundResult) error) error {
	if maxRounds <= 0 {
		maxRounds = r.maxRounds
	}

	for round := 1; ; {
		res, err := r.rounds.RunRound(ctx, conversationID, round, maxRounds)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}

		if err := emit(*res); err != nil {
			return err
		}

		r.logger.Debug("cascade round finished", "conversation_id", conversationID, "round", round,
			"speakers", res.Speakers, "continue", res.ShouldContinue)

		if !res.ShouldContinue || res.NextRound > maxRounds {
			return nil
		}
		round = res.NextRound

		if err := r.pause(ctx); err != nil {
			return err
		}
	}
}

func (r *Runner) pause(ctx context.Context) error {
	if r.roundPause <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(r.roundPause)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
