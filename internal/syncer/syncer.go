// Package syncer drives the fetch-match-notify cycle of the daemon.
package syncer

import (
	"context"
	"errors"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jobwatch/jobwatch/internal/hnclient"
	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/jobwatch/jobwatch/internal/metrics"
	"github.com/jobwatch/jobwatch/internal/posting"
	"github.com/jobwatch/jobwatch/internal/schedule"
	"github.com/jobwatch/jobwatch/internal/store"
	"github.com/jobwatch/jobwatch/internal/subscription"
	"github.com/jobwatch/jobwatch/internal/types"
	"go.uber.org/zap"
)

// Notifier delivers a notification for one matched posting.
//
// *channel.Channel implements this interface.
type Notifier interface {
	Notify(sub *subscription.Active, thread *posting.Thread, p *posting.Posting) error
}

// Options adjust what and how much a Syncer fetches.
type Options struct {
	// Thread pins the hiring thread by ID or URL. When empty, the newest
	// hiring thread is discovered instead.
	Thread string

	// Limit caps how many postings are considered per sync, zero means all.
	Limit int

	// MaxConcurrent bounds the parallel item requests of one sync.
	MaxConcurrent int
}

// Syncer fetches the hiring thread, stores its postings and notifies
// subscribers about new matches.
//
// All syncs run sequentially within the PeriodicSync loop, so the Syncer
// holds its thread state without locking.
type Syncer struct {
	client   *hnclient.Client
	store    *store.Store
	runtime  *subscription.Runtime
	channels map[string]Notifier
	sched    *schedule.Schedule
	opts     Options
	logger   *logging.Logger

	triggerCh chan struct{}

	currentThread int64
	discoveredAt  time.Time
}

// NewSyncer creates a Syncer. A nil sched rediscovers the hiring thread on
// every sync, otherwise rediscovery happens when the schedule fires.
func NewSyncer(
	client *hnclient.Client,
	st *store.Store,
	runtime *subscription.Runtime,
	channels map[string]Notifier,
	sched *schedule.Schedule,
	opts Options,
	logger *logging.Logger,
) *Syncer {
	return &Syncer{
		client:    client,
		store:     st,
		runtime:   runtime,
		channels:  channels,
		sched:     sched,
		opts:      opts,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
	}
}

// TriggerSync requests an immediate sync from the PeriodicSync loop without
// blocking. Triggers arriving while a sync is running are coalesced.
func (s *Syncer) TriggerSync() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// PeriodicSync syncs once immediately and then on every tick of interval or
// call of TriggerSync, until ctx is done.
func (s *Syncer) PeriodicSync(ctx context.Context, interval time.Duration) error {
	s.logger.Infow("Starting periodic sync", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorw("Sync failed", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-s.triggerCh:
			s.logger.Debugw("Sync triggered externally")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sync runs one fetch-match-notify cycle.
func (s *Syncer) Sync(ctx context.Context) error {
	start := time.Now()
	err := s.sync(ctx)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SyncFailures.Inc()
	}

	return err
}

func (s *Syncer) sync(ctx context.Context) error {
	threadItem, err := s.resolveThread(ctx)
	if err != nil {
		return err
	}

	threadLabel := strconv.FormatInt(threadItem.ID, 10)
	thread := posting.NewThread(threadItem.ID, threadItem.Title, threadItem.By, threadItem.Time.Time)

	knownIDs, err := s.store.PostingIDs(ctx, thread.ID)
	if err != nil {
		return err
	}
	known := mapset.NewSet(knownIDs...)

	items, err := s.client.FetchKids(ctx, threadItem, s.opts.Limit, s.opts.MaxConcurrent)
	if err != nil {
		return err
	}
	metrics.PostingsFetched.WithLabelValues(threadLabel).Add(float64(len(items)))

	postings := make([]*posting.Posting, 0, len(items))
	var fresh []*posting.Posting
	for _, item := range items {
		p := posting.New(item.ID, thread.ID, item.By, item.Time.Time, item.Text)
		postings = append(postings, p)
		if !known.Contains(p.ID) {
			fresh = append(fresh, p)
		}
	}

	thread.LastSynced = types.UnixMilli(time.Now())
	if err := s.store.UpsertThread(ctx, thread); err != nil {
		return err
	}
	if err := s.store.UpsertPostings(ctx, postings); err != nil {
		return err
	}

	metrics.PostingsNew.WithLabelValues(threadLabel).Add(float64(len(fresh)))

	if len(fresh) == 0 {
		s.logger.Debugw("No new postings",
			zap.Int64("thread_id", thread.ID), zap.Int("fetched", len(items)))
		return nil
	}

	s.logger.Infow("Found new postings",
		zap.Int64("thread_id", thread.ID), zap.Int("new", len(fresh)), zap.Int("fetched", len(items)))
	s.notify(ctx, thread, fresh)

	return nil
}

// resolveThread returns the hiring thread to sync, either pinned by the
// Thread option or discovered from the whoishiring account. A discovered
// thread is kept until the schedule announces the next thread.
func (s *Syncer) resolveThread(ctx context.Context) (*hnclient.Item, error) {
	if s.opts.Thread != "" {
		id, err := hnclient.ResolveThreadID(s.opts.Thread)
		if err != nil {
			return nil, err
		}

		return s.client.Item(ctx, id)
	}

	if s.currentThread != 0 && s.sched != nil {
		due, err := s.sched.NextRun(s.discoveredAt)
		if err != nil {
			return nil, err
		}

		if !due.IsZero() && time.Now().Before(due) {
			return s.client.Item(ctx, s.currentThread)
		}
	}

	item, err := s.client.DiscoverHiringThread(ctx)
	if err != nil {
		if s.currentThread != 0 {
			s.logger.Warnw("Thread discovery failed, keeping the current thread", zap.Error(err))
			return s.client.Item(ctx, s.currentThread)
		}

		return nil, err
	}

	if s.currentThread != 0 && s.currentThread != item.ID {
		s.logger.Infow("Switching to a new hiring thread",
			zap.Int64("old", s.currentThread), zap.Int64("new", item.ID), zap.String("title", item.Title))
	}

	s.currentThread = item.ID
	s.discoveredAt = time.Now()

	return item, nil
}

// notify delivers each new posting to every subscription whose filter
// matches. The notification history acts as the delivery claim: a posting
// already recorded for a subscription is not sent again.
func (s *Syncer) notify(ctx context.Context, thread *posting.Thread, postings []*posting.Posting) {
	subs := s.runtime.All()
	if len(subs) == 0 {
		return
	}

	for _, p := range postings {
		for _, sub := range subs {
			if !sub.Matches(p.Tags) {
				continue
			}

			logger := s.logger.With(
				zap.Int64("posting_id", p.ID),
				zap.Int64("subscription_id", sub.ID),
				zap.String("channel", sub.ChannelType))

			ch, ok := s.channels[sub.ChannelType]
			if !ok {
				logger.Errorw("Cannot deliver notification, no such channel is configured")
				metrics.NotificationFailures.WithLabelValues(sub.ChannelType).Inc()
				continue
			}

			inserted, err := s.store.AddHistory(ctx, subscription.NewHistory(sub.Subscription, p.ID, time.Now()))
			if err != nil {
				logger.Errorw("Cannot record notification history", zap.Error(err))
				continue
			}
			if !inserted {
				logger.Debugw("Notification was already sent")
				continue
			}

			if err := ch.Notify(sub, thread, p); err != nil {
				logger.Errorw("Cannot send notification", zap.Error(err))
				metrics.NotificationFailures.WithLabelValues(sub.ChannelType).Inc()
				continue
			}

			metrics.NotificationsSent.WithLabelValues(sub.ChannelType).Inc()
			logger.Infow("Sent notification", zap.String("subscription", sub.Name))
		}
	}
}
