// Package listener serves the HTTP API of the daemon.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jobwatch/jobwatch/internal/filter"
	"github.com/jobwatch/jobwatch/internal/hnclient"
	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/jobwatch/jobwatch/internal/metrics"
	"github.com/jobwatch/jobwatch/internal/posting"
	"github.com/jobwatch/jobwatch/internal/store"
	"github.com/jobwatch/jobwatch/internal/subscription"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SyncTrigger requests a sync outside the regular schedule.
//
// *syncer.Syncer implements this interface.
type SyncTrigger interface {
	TriggerSync()
}

// Listener is the HTTP API of the daemon, exposing stored postings, the
// subscription management and the Prometheus metrics.
type Listener struct {
	address string
	store   *store.Store
	runtime *subscription.Runtime
	trigger SyncTrigger
	logger  *logging.Logger

	filterCache *filter.Cache
	mux         http.ServeMux
}

// filterCacheSize bounds the memoized ad-hoc filter expressions.
const filterCacheSize = 512

func NewListener(
	address string,
	st *store.Store,
	runtime *subscription.Runtime,
	trigger SyncTrigger,
	logger *logging.Logger,
) (*Listener, error) {
	filterCache, err := filter.NewCache(filterCacheSize)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		address:     address,
		store:       st,
		runtime:     runtime,
		trigger:     trigger,
		logger:      logger,
		filterCache: filterCache,
	}

	l.mux.HandleFunc("GET /health", l.Health)
	l.mux.Handle("GET /metrics", promhttp.Handler())
	l.mux.HandleFunc("GET /v1/postings", l.ListPostings)
	l.mux.HandleFunc("POST /v1/sync", l.RequestSync)
	l.mux.HandleFunc("POST /v1/subscriptions", l.CreateSubscription)
	l.mux.HandleFunc("GET /v1/subscriptions", l.ListSubscriptions)
	l.mux.HandleFunc("GET /v1/subscriptions/{id}", l.GetSubscription)
	l.mux.HandleFunc("PUT /v1/subscriptions/{id}", l.UpdateSubscription)
	l.mux.HandleFunc("DELETE /v1/subscriptions/{id}", l.DeleteSubscription)
	l.mux.HandleFunc("GET /v1/subscriptions/{id}/history", l.SubscriptionHistory)

	return l, nil
}

// Run serves the API until ctx is done, then shuts down gracefully.
func (l *Listener) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              l.address,
		Handler:           l.logRequests(&l.mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	l.logger.Infow("Starting listener", zap.String("address", "http://"+l.address))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (l *Listener) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		l.logger.Debugw("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (l *Listener) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l.logger.Errorw("Cannot encode response", zap.Error(err))
	}
}

type apiError struct {
	Error string `json:"error"`
}

func (l *Listener) writeError(w http.ResponseWriter, status int, msg string) {
	l.writeJSON(w, status, apiError{Error: msg})
}

func (l *Listener) Health(w http.ResponseWriter, r *http.Request) {
	if err := l.store.Ping(r.Context()); err != nil {
		l.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	l.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (l *Listener) RequestSync(w http.ResponseWriter, r *http.Request) {
	l.trigger.TriggerSync()
	l.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

// ListPostings returns the postings of one thread, optionally narrowed by a
// filter expression.
//
// The thread parameter takes an item ID or URL and defaults to the newest
// stored thread. The filter parameter takes a boolean tag expression; the
// X-Filter-Valid and X-Filter-Error response headers report how it parsed.
// A malformed filter degrades to matching it as one literal tag, consistent
// with how subscriptions behave.
func (l *Listener) ListPostings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var threadID int64
	if rawThread := r.URL.Query().Get("thread"); rawThread != "" {
		id, err := hnclient.ResolveThreadID(rawThread)
		if err != nil {
			l.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		threadID = id
	} else {
		threads, err := l.store.Threads(ctx)
		if err != nil {
			l.logger.Errorw("Cannot load threads", zap.Error(err))
			l.writeError(w, http.StatusInternalServerError, "cannot load threads")
			return
		}
		if len(threads) == 0 {
			l.writeJSON(w, http.StatusOK, []*posting.Posting{})
			return
		}
		threadID = threads[0].ID
	}

	postings, err := l.store.PostingsByThread(ctx, threadID)
	if err != nil {
		l.logger.Errorw("Cannot load postings", zap.Int64("thread_id", threadID), zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot load postings")
		return
	}

	if rawFilter := r.URL.Query().Get("filter"); rawFilter != "" {
		result := l.filterCache.Parse(rawFilter)

		w.Header().Set("X-Filter-Valid", strconv.FormatBool(result.Valid))
		if !result.Valid {
			w.Header().Set("X-Filter-Error", result.ErrorMessage)
			metrics.FilterParseErrors.Inc()
		}

		matched := make([]*posting.Posting, 0, len(postings))
		for _, p := range postings {
			if result.Matches(p.Tags) {
				matched = append(matched, p)
			}
		}
		postings = matched
	}

	l.writeJSON(w, http.StatusOK, postings)
}

// subscriptionPayload is the client-settable part of a subscription.
type subscriptionPayload struct {
	Name        string `json:"name"`
	Filter      string `json:"filter"`
	ChannelType string `json:"channel_type"`
	Recipient   string `json:"recipient"`
}

// subscriptionResponse returns a stored subscription together with how its
// filter parsed. Token is only set right after creation, it cannot be
// recovered later.
type subscriptionResponse struct {
	*subscription.Subscription
	Token       string `json:"token,omitempty"`
	FilterValid bool   `json:"filter_valid"`
	FilterError string `json:"filter_error,omitempty"`
}

func (l *Listener) makeSubscriptionResponse(sub *subscription.Subscription, token string) subscriptionResponse {
	result := filter.Parse(sub.Filter)
	return subscriptionResponse{
		Subscription: sub,
		Token:        token,
		FilterValid:  result.Valid,
		FilterError:  result.ErrorMessage,
	}
}

// CreateSubscription stores a new subscription and returns it with its
// freshly generated management token.
func (l *Listener) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		l.writeError(w, http.StatusBadRequest, "cannot parse JSON body: "+err.Error())
		return
	}

	sub := &subscription.Subscription{
		Name:        payload.Name,
		Filter:      payload.Filter,
		ChannelType: payload.ChannelType,
		Recipient:   payload.Recipient,
	}
	if err := sub.Validate(); err != nil {
		l.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token := uuid.NewString()
	if err := sub.SetToken(token); err != nil {
		l.logger.Errorw("Cannot hash subscription token", zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot store subscription")
		return
	}

	if err := l.store.SaveSubscription(ctx, sub); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			l.writeError(w, http.StatusConflict, "a subscription with this name already exists")
			return
		}

		l.logger.Errorw("Cannot save subscription", zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot store subscription")
		return
	}

	l.reloadRuntime(ctx)
	l.logger.Infow("Created subscription",
		zap.Int64("id", sub.ID), zap.String("name", sub.Name), zap.String("channel", sub.ChannelType))

	l.writeJSON(w, http.StatusCreated, l.makeSubscriptionResponse(sub, token))
}

func (l *Listener) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := l.store.Subscriptions(r.Context())
	if err != nil {
		l.logger.Errorw("Cannot load subscriptions", zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot load subscriptions")
		return
	}

	responses := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		responses = append(responses, l.makeSubscriptionResponse(sub, ""))
	}

	l.writeJSON(w, http.StatusOK, responses)
}

// subscriptionFromPath loads the subscription addressed by the id path value,
// writing the error response itself when it returns nil.
func (l *Listener) subscriptionFromPath(w http.ResponseWriter, r *http.Request) *subscription.Subscription {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		l.writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return nil
	}

	sub, err := l.store.SubscriptionByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		l.writeError(w, http.StatusNotFound, "no such subscription")
		return nil
	} else if err != nil {
		l.logger.Errorw("Cannot load subscription", zap.Int64("id", id), zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot load subscription")
		return nil
	}

	return sub
}

// authorize verifies the bearer token of a subscription-mutating request,
// writing the error response itself when it returns false.
func (l *Listener) authorize(w http.ResponseWriter, r *http.Request, sub *subscription.Subscription) bool {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || !sub.VerifyToken(token) {
		l.writeError(w, http.StatusUnauthorized, "missing or invalid subscription token")
		return false
	}

	return true
}

func (l *Listener) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub := l.subscriptionFromPath(w, r)
	if sub == nil {
		return
	}

	l.writeJSON(w, http.StatusOK, l.makeSubscriptionResponse(sub, ""))
}

func (l *Listener) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub := l.subscriptionFromPath(w, r)
	if sub == nil {
		return
	}
	if !l.authorize(w, r, sub) {
		return
	}

	var payload subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		l.writeError(w, http.StatusBadRequest, "cannot parse JSON body: "+err.Error())
		return
	}

	sub.Name = payload.Name
	sub.Filter = payload.Filter
	sub.ChannelType = payload.ChannelType
	sub.Recipient = payload.Recipient
	if err := sub.Validate(); err != nil {
		l.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := l.store.SaveSubscription(ctx, sub); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			l.writeError(w, http.StatusConflict, "a subscription with this name already exists")
			return
		}

		l.logger.Errorw("Cannot update subscription", zap.Int64("id", sub.ID), zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot update subscription")
		return
	}

	l.reloadRuntime(ctx)
	l.writeJSON(w, http.StatusOK, l.makeSubscriptionResponse(sub, ""))
}

func (l *Listener) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub := l.subscriptionFromPath(w, r)
	if sub == nil {
		return
	}
	if !l.authorize(w, r, sub) {
		return
	}

	if err := l.store.DeleteSubscription(ctx, sub.ID); err != nil {
		l.logger.Errorw("Cannot delete subscription", zap.Int64("id", sub.ID), zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot delete subscription")
		return
	}

	l.reloadRuntime(ctx)
	l.logger.Infow("Deleted subscription", zap.Int64("id", sub.ID), zap.String("name", sub.Name))

	w.WriteHeader(http.StatusNoContent)
}

func (l *Listener) SubscriptionHistory(w http.ResponseWriter, r *http.Request) {
	sub := l.subscriptionFromPath(w, r)
	if sub == nil {
		return
	}

	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 0 {
			l.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	history, err := l.store.HistoryBySubscription(r.Context(), sub.ID, limit)
	if err != nil {
		l.logger.Errorw("Cannot load notification history", zap.Int64("id", sub.ID), zap.Error(err))
		l.writeError(w, http.StatusInternalServerError, "cannot load notification history")
		return
	}

	l.writeJSON(w, http.StatusOK, history)
}

// reloadRuntime applies subscription changes right away instead of waiting
// for the next periodic update.
func (l *Listener) reloadRuntime(ctx context.Context) {
	if err := l.runtime.Load(ctx); err != nil {
		l.logger.Errorw("Cannot reload subscriptions", zap.Error(err))
	}
}
