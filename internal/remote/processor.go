package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dayflow/dayflow/internal/config"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

const maxBackoff = 30 * time.Second

// AnalyzeRequest describes one analysis of an uploaded file.
type AnalyzeRequest struct {
	Name   string
	Prompt string
	Model  string
	FPS    float64
	Start  time.Duration
	End    time.Duration
	// Wait blocks until the file is ready instead of returning Pending.
	Wait bool
}

// Result is either Completed or Pending.
type Result interface {
	isResult()
}

// Completed carries the model's text for a finished analysis.
type Completed struct {
	Handle *Handle
	Text   string
}

// Pending is returned without Wait while the file is still processing.
// The caller checks again later with Get.
type Pending struct {
	Handle *Handle
}

func (Completed) isResult() {}
func (Pending) isResult()   {}

// StateFunc observes every state transition of an asset.
type StateFunc func(name string, state State)

// Processor drives upload, poll-until-ready and analysis against a Service.
type Processor struct {
	svc          Service
	model        string
	pollInterval time.Duration
	waitTimeout  time.Duration
	maxRetries   int
	retryBackoff time.Duration
	clock        Clock
	onState      StateFunc
}

func NewProcessor(svc Service, cfg *config.Config) *Processor {
	return &Processor{
		svc:          svc,
		model:        cfg.Remote.Model,
		pollInterval: cfg.Remote.PollInterval,
		waitTimeout:  cfg.Remote.WaitTimeout,
		maxRetries:   cfg.Remote.MaxRetries,
		retryBackoff: cfg.Remote.RetryBackoff,
		clock:        realClock{},
	}
}

// SetClock replaces the time source used for polling and backoff.
func (p *Processor) SetClock(c Clock) {
	p.clock = c
}

// OnStateChange registers the transition observer.
func (p *Processor) OnStateChange(fn StateFunc) {
	p.onState = fn
}

func (p *Processor) notify(name string, state State) {
	log.Info().Str("name", name).Str("state", string(state)).Msg("Remote asset state")
	if p.onState != nil {
		p.onState(name, state)
	}
}

// Upload sends a local file. Any failure, including a missing file, is an UploadError.
func (p *Processor) Upload(ctx context.Context, path, displayName string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &UploadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &UploadError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	if info.Size() == 0 {
		return nil, &UploadError{Path: path, Err: fmt.Errorf("file is empty")}
	}

	p.notify(path, StateUploading)

	var h *Handle
	err = p.retry(ctx, "upload", path, time.Time{}, func() error {
		var err error
		h, err = p.svc.Upload(ctx, path, displayName)
		return err
	})
	if err != nil {
		p.notify(path, StateFailed)
		return nil, &UploadError{Path: path, Err: err}
	}

	log.Info().
		Str("name", h.Name).
		Str("uri", h.URI).
		Int64("size_bytes", info.Size()).
		Msg("Upload complete")
	p.notify(h.Name, h.State())

	return h, nil
}

// Get fetches the current handle, retrying transient failures.
func (p *Processor) Get(ctx context.Context, name string) (*Handle, error) {
	return p.get(ctx, name, time.Time{})
}

func (p *Processor) get(ctx context.Context, name string, deadline time.Time) (*Handle, error) {
	var h *Handle
	err := p.retry(ctx, "get", name, deadline, func() error {
		var err error
		h, err = p.svc.Get(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// List returns every file known to the service.
func (p *Processor) List(ctx context.Context) ([]*Handle, error) {
	var handles []*Handle
	err := p.retry(ctx, "list", "", time.Time{}, func() error {
		var err error
		handles, err = p.svc.List(ctx)
		return err
	})
	return handles, err
}

// WaitReady polls until the file is ready. N processing responses followed by
// a ready one take exactly N+1 checks. A failed, deleting or deleted file stops
// polling at once with a ServiceError; running out of the wait budget, retry
// backoff included, gives a TimeoutError. Every error return reports FAILED.
func (p *Processor) WaitReady(ctx context.Context, name string) (*Handle, error) {
	h, err := p.waitReady(ctx, name)
	if err != nil {
		p.notify(name, StateFailed)
		return nil, err
	}
	p.notify(name, StateReady)
	return h, nil
}

func (p *Processor) waitReady(ctx context.Context, name string) (*Handle, error) {
	start := p.clock.Now()
	deadline := start.Add(p.waitTimeout)
	checks := 0
	lastState := "unknown"

	timeout := func(err error) *TimeoutError {
		return &TimeoutError{
			Name:      name,
			Waited:    p.clock.Now().Sub(start),
			Checks:    checks,
			LastState: lastState,
			Err:       err,
		}
	}

	for {
		h, err := p.get(ctx, name, deadline)
		checks++
		if err != nil {
			var budget *budgetError
			if errors.As(err, &budget) {
				return nil, timeout(budget.last)
			}
			return nil, err
		}
		lastState = h.ServiceState

		switch h.State() {
		case StateReady:
			log.Debug().Str("name", name).Int("checks", checks).Dur("waited", p.clock.Now().Sub(start)).Msg("Asset ready")
			return h, nil

		case StateFailed:
			return nil, &ServiceError{Op: "process", Name: name, Message: failureMessage(h)}
		}

		if p.clock.Now().Add(p.pollInterval).After(deadline) {
			return nil, timeout(nil)
		}

		log.Debug().Str("name", name).Str("state", h.ServiceState).Int("check", checks).Msg("Asset still processing")
		if err := p.clock.Sleep(ctx, p.pollInterval); err != nil {
			return nil, err
		}
	}
}

// Analyze runs the model over a file. Without Wait a file that is not ready yet
// yields Pending.
func (p *Processor) Analyze(ctx context.Context, req AnalyzeRequest) (Result, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("analyze: file name is required")
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("analyze: prompt is required")
	}
	if req.End > 0 && req.Start >= req.End {
		return nil, fmt.Errorf("analyze: start offset %v must be before end offset %v", req.Start, req.End)
	}
	if req.Model == "" {
		req.Model = p.model
	}

	h, err := p.Get(ctx, req.Name)
	if err != nil {
		p.notify(req.Name, StateFailed)
		return nil, err
	}

	switch h.State() {
	case StateFailed:
		p.notify(req.Name, StateFailed)
		return nil, &ServiceError{Op: "process", Name: req.Name, Message: failureMessage(h)}
	case StateProcessing:
		if !req.Wait {
			return Pending{Handle: h}, nil
		}
		if h, err = p.WaitReady(ctx, req.Name); err != nil {
			return nil, err
		}
	}

	p.notify(req.Name, StateAnalyzing)

	var text string
	err = p.retry(ctx, "generate", req.Name, time.Time{}, func() error {
		var err error
		text, err = p.svc.Generate(ctx, GenerateRequest{
			Model:    req.Model,
			Prompt:   req.Prompt,
			FileURI:  h.URI,
			MIMEType: h.MIMEType,
			FPS:      req.FPS,
			Start:    req.Start,
			End:      req.End,
		})
		return err
	})
	if err != nil {
		p.notify(req.Name, StateFailed)
		return nil, err
	}

	p.notify(req.Name, StateDone)
	return Completed{Handle: h, Text: text}, nil
}

// Process uploads path, waits for it to become ready and analyzes it.
func (p *Processor) Process(ctx context.Context, path string, req AnalyzeRequest) (*Completed, error) {
	h, err := p.Upload(ctx, path, "")
	if err != nil {
		return nil, err
	}

	if h.State() != StateReady {
		if _, err := p.WaitReady(ctx, h.Name); err != nil {
			return nil, err
		}
	}

	req.Name = h.Name
	req.Wait = true
	res, err := p.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	completed, ok := res.(Completed)
	if !ok {
		return nil, fmt.Errorf("analysis of %s did not complete", h.Name)
	}
	return &completed, nil
}

// budgetError stops a retry loop that would sleep past its deadline.
type budgetError struct {
	last error
}

func (e *budgetError) Error() string {
	return fmt.Sprintf("wait budget exhausted: %v", e.last)
}

func (e *budgetError) Unwrap() error {
	return e.last
}

func (p *Processor) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: p.retryBackoff,
		Multiplier:      2,
		MaxInterval:     maxBackoff,
	}
	b.Reset()
	return b
}

// retry runs fn until it succeeds, fails permanently, or fails transiently more
// than maxRetries times in a row. Backoff doubles from retryBackoff. With a
// non-zero deadline no sleep extends past it, and reaching it yields a
// budgetError.
func (p *Processor) retry(ctx context.Context, op, name string, deadline time.Time, fn func() error) error {
	b := p.newBackOff()
	for failures := 0; ; {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		transient, _ := classify(err)
		if !transient {
			return serviceError(op, name, err, false)
		}

		failures++
		if failures > p.maxRetries {
			return serviceError(op, name, err, true)
		}

		next := b.NextBackOff()
		if !deadline.IsZero() {
			remaining := deadline.Sub(p.clock.Now())
			if remaining <= 0 {
				return &budgetError{last: serviceError(op, name, err, true)}
			}
			next = min(next, remaining)
		}

		log.Warn().
			Err(err).
			Str("op", op).
			Str("name", name).
			Int("attempt", failures).
			Dur("backoff", next).
			Msg("Transient remote error, retrying")

		if err := p.clock.Sleep(ctx, next); err != nil {
			return err
		}
	}
}

func failureMessage(h *Handle) string {
	if h.ErrorMessage != "" {
		return fmt.Sprintf("file is %s: %s", h.ServiceState, h.ErrorMessage)
	}
	return "file is " + h.ServiceState
}

// IsTransient reports whether err is a ServiceError raised after exhausting retries.
func IsTransient(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Transient
}
