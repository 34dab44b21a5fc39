// Package search runs Splunk search jobs to completion.
//
// A job is submitted once, then polled at a fixed interval until its results are
// available, the backend reports a failure, or the maximum wait elapses.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mazrean/splunkmcp/internal/pkg/json"
	"github.com/mazrean/splunkmcp/internal/pkg/metrics"
	"github.com/mazrean/splunkmcp/internal/splunk"
	"github.com/mazrean/splunkmcp/log"
)

var (
	ErrSearchFailed  = errors.New("search failed")
	ErrSearchTimeout = errors.New("search timed out")
)

var (
	pollCountGauge   = metrics.NewGauge("search_poll_count")
	jobDurationGauge = metrics.NewGauge("search_job_duration")
)

const (
	defaultPollInterval  = time.Second
	defaultMaxWait       = 2 * time.Minute
	defaultResultCount   = 20
	defaultSubmitRetries = 2
	cancelTimeout        = 10 * time.Second
)

// Backend is the part of the Splunk API the engine drives
type Backend interface {
	CreateJob(ctx context.Context, req splunk.JobRequest) (string, error)
	JobStatus(ctx context.Context, sid string) (*splunk.JobStatus, error)
	Results(ctx context.Context, sid string, count int) ([]json.RawMessage, bool, error)
	CancelJob(ctx context.Context, sid string) error
}

type State uint8

const (
	StateNew State = iota
	StateSubmitted
	StatePolling
	StateCompleted
	StateFailed
	StateTimeout
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimeout:
		return "timeout"
	}

	return fmt.Sprintf("state(%d)", uint8(s))
}

// Job is one search from submission to a terminal state
type Job struct {
	Query    string
	Earliest string
	Latest   string
	SID      string
	State    State
	Polls    int
	Records  []json.RawMessage
}

type Engine struct {
	logger        log.Logger
	backend       Backend
	clock         clock.Clock
	pollInterval  time.Duration
	maxWait       time.Duration
	resultCount   int
	submitRetries uint64
	newBackOff    func() backoff.BackOff
	newID         func() string

	cancelWG sync.WaitGroup
}

type engineOption struct {
	clock         clock.Clock
	pollInterval  time.Duration
	maxWait       time.Duration
	resultCount   int
	submitRetries uint64
	newBackOff    func() backoff.BackOff
	newID         func() string
}

type EngineOption func(*engineOption)

func WithClock(c clock.Clock) EngineOption {
	return func(o *engineOption) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPollInterval sets the delay between two polls. Non-positive values are ignored.
func WithPollInterval(d time.Duration) EngineOption {
	return func(o *engineOption) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxWait bounds the time spent polling one job. Non-positive values are ignored.
func WithMaxWait(d time.Duration) EngineOption {
	return func(o *engineOption) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

// WithResultCount sets the maximum number of records fetched. Non-positive values are ignored.
func WithResultCount(n int) EngineOption {
	return func(o *engineOption) {
		if n > 0 {
			o.resultCount = n
		}
	}
}

// WithSubmitRetries sets how many times a submission failing in transport is retried
func WithSubmitRetries(n uint64) EngineOption {
	return func(o *engineOption) {
		o.submitRetries = n
	}
}

func WithSubmitBackOff(newBackOff func() backoff.BackOff) EngineOption {
	return func(o *engineOption) {
		if newBackOff != nil {
			o.newBackOff = newBackOff
		}
	}
}

// WithIDGenerator sets the generator of search ids
func WithIDGenerator(newID func() string) EngineOption {
	return func(o *engineOption) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func newSearchID() string {
	return "splunkmcp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewEngine(logger log.Logger, backend Backend, options ...EngineOption) *Engine {
	o := &engineOption{
		clock:         clock.New(),
		pollInterval:  defaultPollInterval,
		maxWait:       defaultMaxWait,
		resultCount:   defaultResultCount,
		submitRetries: defaultSubmitRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return b
		},
		newID: newSearchID,
	}
	for _, option := range options {
		option(o)
	}

	return &Engine{
		logger:        logger,
		backend:       backend,
		clock:         o.clock,
		pollInterval:  o.pollInterval,
		maxWait:       o.maxWait,
		resultCount:   o.resultCount,
		submitRetries: o.submitRetries,
		newBackOff:    o.newBackOff,
		newID:         o.newID,
	}
}

// Run submits query over [earliest, latest] and waits for its results.
// The returned job is non-nil and holds the terminal state, also on error.
// Errors wrap ErrSearchFailed or ErrSearchTimeout, or are the context error.
func (e *Engine) Run(ctx context.Context, query, earliest, latest string) (*Job, error) {
	job := &Job{
		Query:    query,
		Earliest: earliest,
		Latest:   latest,
		State:    StateNew,
	}

	start := time.Now()
	err := e.run(ctx, job)
	jobDurationGauge.Set(float64(time.Since(start).Nanoseconds()), job.State.String())
	pollCountGauge.Set(float64(job.Polls), job.State.String())

	return job, err
}

func (e *Engine) run(ctx context.Context, job *Job) error {
	sid, err := e.submit(ctx, job)
	if err != nil {
		job.State = StateFailed
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: submit: %w", ErrSearchFailed, err)
	}
	job.SID = sid
	job.State = StateSubmitted
	e.logger.Debugf("search job %s submitted: %s", sid, job.Query)

	return e.poll(ctx, job)
}

// submit creates the job with a search id chosen here, so that a retried
// request can never create a second job.
func (e *Engine) submit(ctx context.Context, job *Job) (string, error) {
	req := splunk.JobRequest{
		ID:       e.newID(),
		Search:   job.Query,
		Earliest: job.Earliest,
		Latest:   job.Latest,
	}

	var (
		sid      string
		attempts int
	)
	b := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), e.submitRetries), ctx)
	err := backoff.RetryNotify(func() error {
		attempts++

		var err error
		sid, err = e.backend.CreateJob(ctx, req)
		if err == nil {
			return nil
		}

		// an earlier attempt reached the backend before its response was lost
		if attempts > 1 && splunk.IsStatus(err, http.StatusConflict) {
			sid = req.ID
			return nil
		}

		var apiErr *splunk.APIError
		if errors.As(err, &apiErr) || errors.Is(err, splunk.ErrMissingCredential) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, d time.Duration) {
		e.logger.Warnf("submit search job %s: %v. retry in %s", req.ID, err, d)
	})
	if err != nil {
		return "", err
	}

	return sid, nil
}

func (e *Engine) poll(ctx context.Context, job *Job) error {
	deadline := e.clock.Now().Add(e.maxWait)
	job.State = StatePolling

	for {
		job.Polls++

		status, err := e.backend.JobStatus(ctx, job.SID)
		if err != nil {
			return e.fail(ctx, job, err)
		}

		if status.Failed() {
			job.State = StateFailed
			return fmt.Errorf("%w: job %s: %s", ErrSearchFailed, job.SID, describeMessages(status.Messages()))
		}

		if status.Done() {
			records, ready, err := e.backend.Results(ctx, job.SID, e.resultCount)
			if err != nil {
				return e.fail(ctx, job, err)
			}
			if ready {
				job.Records = records
				job.State = StateCompleted
				e.logger.Debugf("search job %s completed after %d polls: %d records", job.SID, job.Polls, len(records))
				return nil
			}
		}

		if !e.clock.Now().Before(deadline) {
			job.State = StateTimeout
			e.cancel(job.SID)
			return fmt.Errorf("%w: job %s not finished after %s", ErrSearchTimeout, job.SID, e.maxWait)
		}

		e.logger.Debugf("search job %s: %s", job.SID, status.DispatchState)

		select {
		case <-ctx.Done():
			job.State = StateFailed
			e.cancel(job.SID)
			return ctx.Err()
		case <-e.clock.After(e.pollInterval):
		}
	}
}

func (e *Engine) fail(ctx context.Context, job *Job, err error) error {
	job.State = StateFailed
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.cancel(job.SID)
		return ctxErr
	}

	return fmt.Errorf("%w: job %s: %w", ErrSearchFailed, job.SID, err)
}

func describeMessages(messages []splunk.Message) string {
	if len(messages) == 0 {
		return "backend reported a failure"
	}

	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		texts = append(texts, m.Text)
	}

	return strings.Join(texts, "; ")
}

// cancel asks the backend to stop the job sid without blocking the caller
func (e *Engine) cancel(sid string) {
	e.cancelWG.Add(1)
	go func() {
		defer e.cancelWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()

		if err := e.backend.CancelJob(ctx, sid); err != nil {
			e.logger.Warnf("cancel search job %s: %v", sid, err)
			return
		}
		e.logger.Debugf("search job %s cancelled", sid)
	}()
}

// Close waits for pending cancellations
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.cancelWG.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
