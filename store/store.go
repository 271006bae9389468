package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/internal/retry"
)

// DefaultFetchBatchSize is the id batch size for existence checks.
const DefaultFetchBatchSize = 1000

// Store is the vector index facade. It validates requests, splits existence
// checks into batches and runs every driver call through the retry policy
// and a circuit breaker.
type Store struct {
	profile *profile.Profile
	driver  Driver

	spec           IndexSpec
	specErr        error
	fetchBatchSize int
	retry          retry.Policy
	breaker        *gobreaker.CircuitBreaker[any]
	logger         *slog.Logger
	onBreaker      func(name, state string)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for breaker transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRetryPolicy overrides the retry policy derived from the profile.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.retry = p }
}

// WithBreakerObserver registers a callback for circuit breaker state changes.
func WithBreakerObserver(fn func(name, state string)) Option {
	return func(s *Store) { s.onBreaker = fn }
}

// New creates a new instance of Store. An unknown index metric is reported
// by Init.
func New(driver Driver, profile *profile.Profile, opts ...Option) *Store {
	metric, metricErr := ParseMetric(profile.IndexMetric)
	policy := retry.DefaultPolicy()
	if profile.RetryMaxAttempts > 0 {
		policy.MaxAttempts = profile.RetryMaxAttempts
	}
	fetchBatchSize := profile.FetchBatchSize
	if fetchBatchSize < 1 {
		fetchBatchSize = DefaultFetchBatchSize
	}

	s := &Store{
		profile: profile,
		driver:  driver,
		spec: IndexSpec{
			Name:      profile.IndexName,
			Dimension: profile.IndexDimension,
			Metric:    metric,
		},
		specErr:        metricErr,
		fetchBatchSize: fetchBatchSize,
		retry:          policy,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "vector-store-" + s.spec.Name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsExcluded: func(err error) bool {
			return IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("vector store circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if s.onBreaker != nil {
				s.onBreaker(name, to.String())
			}
		},
	})
	return s
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Index returns the configuration of the index this store serves.
func (s *Store) Index() IndexSpec {
	return s.spec
}

// Init creates the index if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if s.specErr != nil {
		return s.specErr
	}
	if err := s.spec.Validate(); err != nil {
		return err
	}
	spec := s.spec
	return s.call(ctx, func() error {
		return s.driver.EnsureIndex(ctx, &spec)
	})
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// UpsertVectors writes vectors, replacing existing entries by id.
func (s *Store) UpsertVectors(ctx context.Context, vectors []*IndexedVector) error {
	if len(vectors) == 0 {
		return nil
	}
	for _, v := range vectors {
		if v == nil || v.ID == "" {
			return errors.Wrap(ErrInvalidArgument, "vector without id")
		}
		if len(v.Embedding) != s.spec.Dimension {
			return errors.Wrapf(ErrDimensionMismatch, "movie %s: got %d, index %s expects %d",
				v.ID, len(v.Embedding), s.spec.Name, s.spec.Dimension)
		}
	}
	return s.call(ctx, func() error {
		return s.driver.UpsertVectors(ctx, s.spec.Name, vectors)
	})
}

// FetchExistingIDs returns the ids already present in the index, querying
// the driver in batches of the configured fetch size.
func (s *Store) FetchExistingIDs(ctx context.Context, ids []MovieID) ([]MovieID, error) {
	existing := make([]MovieID, 0)
	for start := 0; start < len(ids); start += s.fetchBatchSize {
		end := min(start+s.fetchBatchSize, len(ids))
		batch := ids[start:end]

		var found []MovieID
		err := s.call(ctx, func() error {
			var err error
			found, err = s.driver.FetchExistingIDs(ctx, s.spec.Name, batch)
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "fetch existing ids [%d:%d]", start, end)
		}
		existing = append(existing, found...)
	}
	return existing, nil
}

// QueryVectors runs a nearest-neighbour query against the index.
func (s *Store) QueryVectors(ctx context.Context, query *VectorQuery) ([]*VectorMatch, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if len(query.Vector) != s.spec.Dimension {
		return nil, errors.Wrapf(ErrDimensionMismatch, "query vector has %d dimensions, index %s expects %d",
			len(query.Vector), s.spec.Name, s.spec.Dimension)
	}

	var matches []*VectorMatch
	err := s.call(ctx, func() error {
		var err error
		matches, err = s.driver.QueryVectors(ctx, s.spec.Name, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// DescribeIndex returns the index configuration and vector count.
func (s *Store) DescribeIndex(ctx context.Context) (*IndexStats, error) {
	var stats *IndexStats
	err := s.call(ctx, func() error {
		var err error
		stats, err = s.driver.DescribeIndex(ctx, s.spec.Name)
		return err
	})
	return stats, err
}

func (s *Store) call(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, s.retry, func() error {
		_, err := s.breaker.Execute(func() (any, error) {
			return nil, fn()
		})
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil ||
			errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return retry.Permanent(err)
		}
		return err
	})
}
