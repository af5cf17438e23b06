// Package generation drives a submitted exercise snapshot through the remote
// generation service and saves the result.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/logbook"
)

// DefaultTimeout bounds one remote generation call.
const DefaultTimeout = 3 * time.Minute

const cancelledMessage = "generation cancelled"

var (
	// ErrBusy is returned when a sequence is already in flight.
	ErrBusy = errors.New("generation: a generation is already in progress")
	// ErrNotSubmittable is returned when a mascal day still lacks an etiology.
	ErrNotSubmittable = errors.New("generation: configuration cannot be submitted")
	// ErrNothingToRetry is returned by Retry when the last sequence did not fail.
	ErrNothingToRetry = errors.New("generation: nothing to retry")

	errCancelled = errors.New(cancelledMessage)
)

// Remote is the subset of the generation service the orchestrator calls.
type Remote interface {
	GenerateName(ctx context.Context, req genclient.NameRequest) (string, error)
	GenerateWarno(ctx context.Context, req genclient.WarnoRequest) (string, error)
	GenerateMSEL(ctx context.Context, req genclient.MSELRequest) ([]byte, error)
	GenerateExercise(ctx context.Context, cfg exercise.Config) ([]byte, error)
}

// Saver persists a generated blob under a file name.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

type request struct {
	job    Job
	config exercise.Config
}

// Orchestrator runs at most one generation sequence at a time. Submit returns
// immediately; progress is delivered to observers.
type Orchestrator struct {
	remote  Remote
	saver   Saver
	journal *logbook.Logbook
	timeout time.Duration
	newSeed func() string

	mu        sync.Mutex
	progress  Progress
	observers []func(Progress)
	last      *request
	cancel    context.CancelCauseFunc
	done      chan struct{}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogbook records transitions in the journey log.
func WithLogbook(book *logbook.Logbook) Option {
	return func(o *Orchestrator) { o.journal = book }
}

// WithSeed overrides the name suggestion seed source.
func WithSeed(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newSeed = fn
		}
	}
}

// New creates an idle orchestrator.
func New(remote Remote, saver Saver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:   remote,
		saver:    saver,
		timeout:  DefaultTimeout,
		newSeed:  newSeed,
		progress: Progress{State: StateIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Observe registers fn for every progress change. fn runs on the goroutine
// that made the change and must not block.
func (o *Orchestrator) Observe(fn func(Progress)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// Progress returns the current status.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Submit starts a sequence for a snapshot of cfg.
func (o *Orchestrator) Submit(ctx context.Context, job Job, cfg exercise.Config) error {
	if cfg.SubmitBlocked() {
		return fmt.Errorf("%w: mascal days %v need an etiology", ErrNotSubmittable, exercise.BlockingDays(cfg.Days))
	}
	return o.start(ctx, request{job: job, config: cfg.Clone()})
}

// Retry resubmits the snapshot of the last failed sequence.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	last := o.last
	state := o.progress.State
	o.mu.Unlock()
	if last == nil || state != StateFailed {
		return ErrNothingToRetry
	}
	return o.start(ctx, *last)
}

// Cancel aborts the in-flight sequence. It is a no-op when nothing runs.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil && o.progress.State.Active() {
		o.cancel(errCancelled)
	}
}

// Reset returns a finished orchestrator to Idle. The retained snapshot is
// dropped.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.progress.State.Active() {
		o.mu.Unlock()
		return ErrBusy
	}
	o.last = nil
	o.mu.Unlock()
	o.set(Progress{State: StateIdle})
	return nil
}

// Wait blocks until the current sequence ends or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) (Progress, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return o.Progress(), ctx.Err()
		}
	}
	return o.Progress(), nil
}

func (o *Orchestrator) start(ctx context.Context, req request) error {
	o.mu.Lock()
	if o.progress.State.Active() {
		o.mu.Unlock()
		return ErrBusy
	}
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	done := make(chan struct{})
	snapshot := req
	o.last = &snapshot
	o.cancel = cancel
	o.done = done
	o.progress = Progress{State: StatePreparing, Job: req.job, Message: "Preparing " + req.job.Label()}
	observers := append([]func(Progress){}, o.observers...)
	current := o.progress
	o.mu.Unlock()

	o.journal.Info("generation %s: %s", req.job, current.Message)
	for _, fn := range observers {
		fn(current)
	}
	go o.run(runCtx, cancel, req, done)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelCauseFunc, req request, done chan struct{}) {
	defer close(done)
	defer cancel(nil)

	if err := req.config.CheckSubmittable(); err != nil {
		o.fail(req.job, err, err.Error())
		return
	}

	callCtx, stop := context.WithTimeout(ctx, o.timeout)
	defer stop()
	o.set(Progress{State: StateAwaitingRemote, Job: req.job, Message: awaitingMessage(req.job)})
	data, err := o.call(callCtx, req)
	if err != nil {
		o.fail(req.job, err, o.failureMessage(ctx, callCtx, err))
		return
	}

	name := req.job.FileName(req.config.Name)
	o.set(Progress{State: StateDownloading, Job: req.job, Message: "Saving " + name})
	path, err := o.saver.Save(ctx, name, data)
	if err != nil {
		msg := "Could not save " + name + ": " + err.Error()
		if errors.Is(context.Cause(ctx), errCancelled) {
			msg = cancelledMessage
		}
		o.fail(req.job, err, msg)
		return
	}
	o.set(Progress{State: StateComplete, Job: req.job, Message: "Saved " + path, Path: path})
}

func (o *Orchestrator) call(ctx context.Context, req request) ([]byte, error) {
	cfg := req.config
	switch req.job {
	case JobWarno:
		doc, err := o.remote.GenerateWarno(ctx, genclient.WarnoRequest{
			ExerciseName: cfg.Name,
			Duration:     cfg.Duration,
			AOR:          cfg.Environment,
			MissionTasks: cfg.MissionTasks,
			Footprint:    cfg.Footprint,
		})
		if err != nil {
			return nil, err
		}
		return []byte(doc), nil
	case JobMSEL:
		return o.remote.GenerateMSEL(ctx, genclient.MSELRequest{ExerciseName: cfg.Name})
	default:
		return o.remote.GenerateExercise(ctx, cfg)
	}
}

func (o *Orchestrator) failureMessage(runCtx, callCtx context.Context, err error) string {
	switch {
	case errors.Is(context.Cause(runCtx), errCancelled):
		return cancelledMessage
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("The generation service did not answer within %s. Try again.", o.timeout)
	default:
		return genclient.ErrorMessage(err)
	}
}

func (o *Orchestrator) fail(job Job, err error, message string) {
	o.journal.Error("generation %s failed: %v", job, err)
	o.set(Progress{State: StateFailed, Job: job, Message: message, Err: err})
}

func (o *Orchestrator) set(p Progress) {
	o.mu.Lock()
	o.progress = p
	observers := append([]func(Progress){}, o.observers...)
	o.mu.Unlock()

	if p.State != StateFailed {
		o.journal.Info("generation %s: %s", p.Job, p.Message)
	}
	for _, fn := range observers {
		fn(p)
	}
}

func awaitingMessage(job Job) string {
	if job == JobPackage {
		return "Generating exercise package. This usually takes one to two minutes."
	}
	return "Generating " + job.Label()
}
