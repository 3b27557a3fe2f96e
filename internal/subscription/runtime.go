package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/jobwatch/jobwatch/internal/filter"
	"github.com/jobwatch/jobwatch/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// Source loads the stored subscription set.
type Source interface {
	Subscriptions(ctx context.Context) ([]*Subscription, error)
}

// Active pairs a subscription with its parsed filter, ready for matching.
type Active struct {
	*Subscription

	// ParsedFilter is the fail-soft parse of Subscription.Filter. Invalid
	// expressions degrade to matching the raw string as a literal tag.
	ParsedFilter filter.Result
}

// Matches reports whether the subscription wants a posting with these tags.
func (a *Active) Matches(tags []string) bool {
	return a.ParsedFilter.Matches(tags)
}

// Runtime is the in-memory view of all subscriptions, refreshed periodically
// from its Source. All methods are safe for concurrent use.
type Runtime struct {
	source Source
	logger *logging.Logger

	mu   sync.RWMutex
	byID map[int64]*Active
}

func NewRuntime(source Source, logger *logging.Logger) *Runtime {
	return &Runtime{
		source: source,
		logger: logger,
		byID:   make(map[int64]*Active),
	}
}

// Load replaces the runtime view with the current stored subscriptions.
func (r *Runtime) Load(ctx context.Context) error {
	subs, err := r.source.Subscriptions(ctx)
	if err != nil {
		return err
	}

	byID := make(map[int64]*Active, len(subs))
	for _, sub := range subs {
		result := filter.Parse(sub.Filter)
		if !result.Valid {
			r.logger.Warnw("Subscription filter does not parse, matching it as a literal tag",
				zap.Int64("id", sub.ID), zap.String("name", sub.Name),
				zap.String("filter", sub.Filter), zap.String("error", result.ErrorMessage))
		}

		byID[sub.ID] = &Active{Subscription: sub, ParsedFilter: result}
	}

	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()

	r.logger.Debugw("Loaded subscriptions", zap.Int("count", len(byID)))

	return nil
}

// PeriodicUpdates reloads the subscriptions every interval until ctx is done.
func (r *Runtime) PeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Load(ctx); err != nil {
				r.logger.Errorw("Periodic subscription update failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Get returns the subscription with the given ID, or nil.
func (r *Runtime) Get(id int64) *Active {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID[id]
}

// All returns a snapshot of the active subscriptions ordered by ID.
func (r *Runtime) All() []*Active {
	r.mu.RLock()
	subs := make([]*Active, 0, len(r.byID))
	for _, sub := range r.byID {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	slices.SortFunc(subs, func(a, b *Active) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return subs
}
