package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/mazrean/splunkmcp/internal/pkg/json"
	"github.com/mazrean/splunkmcp/internal/splunk"
	"github.com/mazrean/splunkmcp/log"
	"golang.org/x/sync/errgroup"
)

// ErrBackendUnavailable is returned when the inventory could not be loaded
var ErrBackendUnavailable = errors.New("backend unavailable")

const defaultRetries = 3

// Source is the backend the inventory is read from
type Source interface {
	Indexes(ctx context.Context) ([]string, error)
	DataModels(ctx context.Context) ([]splunk.DataModel, error)
	Apps(ctx context.Context) ([]string, error)
}

// Store owns the current snapshot. Loads are serialized; readers never block.
type Store struct {
	logger     log.Logger
	source     Source
	clock      clock.Clock
	retries    uint64
	newBackOff func() backoff.BackOff

	loadLocker sync.Mutex
	current    atomic.Pointer[Snapshot]
}

type storeOption struct {
	clock      clock.Clock
	retries    uint64
	newBackOff func() backoff.BackOff
}

type StoreOption func(*storeOption)

// WithRetries sets how many times a failed load is retried
func WithRetries(retries uint64) StoreOption {
	return func(o *storeOption) {
		o.retries = retries
	}
}

// WithBackOff sets the delay policy between load attempts
func WithBackOff(newBackOff func() backoff.BackOff) StoreOption {
	return func(o *storeOption) {
		if newBackOff != nil {
			o.newBackOff = newBackOff
		}
	}
}

// WithClock sets the clock driving Watch
func WithClock(c clock.Clock) StoreOption {
	return func(o *storeOption) {
		if c != nil {
			o.clock = c
		}
	}
}

func NewStore(logger log.Logger, source Source, options ...StoreOption) *Store {
	o := &storeOption{
		clock:   clock.New(),
		retries: defaultRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, option := range options {
		option(o)
	}

	store := &Store{
		logger:     logger,
		source:     source,
		clock:      o.clock,
		retries:    o.retries,
		newBackOff: o.newBackOff,
	}
	store.current.Store(Empty())

	return store
}

// Snapshot returns the latest published snapshot
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Load fetches the whole inventory and publishes it.
// Nothing is published unless every part was fetched.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.loadLocker.Lock()
	defer s.loadLocker.Unlock()

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.retries), ctx)

	var snapshot *Snapshot
	err := backoff.RetryNotify(func() error {
		snap, err := s.fetch(ctx)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		snapshot = snap
		return nil
	}, b, func(err error, d time.Duration) {
		s.logger.Warnf("load metadata: %v. retry in %s", err, d)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load metadata: %w", ErrBackendUnavailable, err)
	}

	s.current.Store(snapshot)
	s.logSummary(snapshot)

	return snapshot, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, splunk.ErrMissingCredential) ||
		splunk.IsStatus(err, http.StatusUnauthorized, http.StatusForbidden)
}

func (s *Store) fetch(ctx context.Context) (*Snapshot, error) {
	var (
		indexes []string
		models  []splunk.DataModel
		apps    []string
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		indexes, err = s.source.Indexes(ctx)
		return err
	})
	eg.Go(func() (err error) {
		models, err = s.source.DataModels(ctx)
		return err
	})
	eg.Go(func() (err error) {
		apps, err = s.source.Apps(ctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	snapshot := Empty()
	snapshot.Indexes = append(snapshot.Indexes, indexes...)
	snapshot.Apps = append(snapshot.Apps, apps...)
	for _, m := range models {
		objects := m.Objects
		if objects == nil {
			objects = []json.RawMessage{}
		}
		snapshot.DataModels[m.Name] = objects
	}

	return snapshot, nil
}

func (s *Store) logSummary(snapshot *Snapshot) {
	s.logger.Infof("loaded indexes: %v", snapshot.Indexes)
	s.logger.Infof("loaded datamodels: %v", snapshot.DataModelNames())
	s.logger.Infof("loaded apps: %v", snapshot.Apps)
}

// Watch reloads the inventory every interval until ctx is done.
// A failed reload keeps the previous snapshot.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := s.Load(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warnf("refresh metadata: %v. keep previous snapshot", err)
		}
	}
}
