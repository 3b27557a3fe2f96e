package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/jobwatch/jobwatch/internal/hnclient"
	"github.com/jobwatch/jobwatch/internal/posting"
	"github.com/jobwatch/jobwatch/internal/store"
	"github.com/jobwatch/jobwatch/internal/subscription"
	"github.com/jobwatch/jobwatch/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hnFixture serves a mutable in-memory slice of the Hacker News API.
type hnFixture struct {
	mu    sync.Mutex
	items map[int64]map[string]any
	users map[string]map[string]any
}

func newHNFixture() *hnFixture {
	return &hnFixture{
		items: make(map[int64]map[string]any),
		users: make(map[string]map[string]any),
	}
}

func (f *hnFixture) putStory(id int64, title string, kids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = map[string]any{
		"id": id, "type": "story", "by": "whoishiring", "time": 1754000000, "title": title, "kids": kids,
	}
}

func (f *hnFixture) putComment(id, parent int64, author, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = map[string]any{
		"id": id, "type": "comment", "by": author, "time": 1754000100, "parent": parent, "text": text,
	}
}

func (f *hnFixture) putUser(name string, submitted ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[name] = map[string]any{"id": name, "submitted": submitted}
}

func (f *hnFixture) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, v any, ok bool) {
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte("null"))
			return
		}
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		rawID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/item/"), ".json")
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		item, ok := f.items[id]
		f.mu.Unlock()
		writeJSON(w, item, ok)
	})
	mux.HandleFunc("/user/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/user/"), ".json")

		f.mu.Lock()
		user, ok := f.users[name]
		f.mu.Unlock()
		writeJSON(w, user, ok)
	})

	return mux
}

// recordingNotifier remembers every delivery attempt as "subID:postingID".
type recordingNotifier struct {
	mu       sync.Mutex
	err      error
	attempts []string
}

func (n *recordingNotifier) Notify(sub *subscription.Active, _ *posting.Thread, p *posting.Posting) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts = append(n.attempts, fmt.Sprintf("%d:%d", sub.ID, p.ID))
	return n.err
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.attempts...)
}

func newTestSyncer(
	t *testing.T, fx *hnFixture, subs []*subscription.Subscription, opts Options,
) (*Syncer, *store.Store, *recordingNotifier) {
	t.Helper()
	ctx := context.Background()
	logger := testutils.NewTestLogger(t)

	srv := httptest.NewServer(fx.handler())
	t.Cleanup(srv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "jobwatch.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for _, sub := range subs {
		require.NoError(t, st.SaveSubscription(ctx, sub))
	}

	runtime := subscription.NewRuntime(st, logger)
	require.NoError(t, runtime.Load(ctx))

	notifier := &recordingNotifier{}
	client := hnclient.NewClient(srv.URL, 0, logger)
	s := NewSyncer(client, st, runtime, map[string]Notifier{"email": notifier}, nil, opts, logger)

	return s, st, notifier
}

func TestSyncerSync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := newHNFixture()
	fx.putUser(hnclient.HiringAuthor, 1000)
	fx.putStory(1000, "Ask HN: Who is hiring? (August 2026)", 1001, 1002)
	fx.putComment(1001, 1000, "acme", "Acme | Remote | We use Go and Kubernetes")
	fx.putComment(1002, 1000, "globex", "Globex | NYC | Rust on embedded systems")

	s, st, notifier := newTestSyncer(t, fx, []*subscription.Subscription{
		{Name: "go-watch", Filter: "go", ChannelType: "email", Recipient: "dev@example.com"},
		{Name: "java-watch", Filter: "java", ChannelType: "email", Recipient: "dev@example.com"},
	}, Options{})

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, []string{"1:1001"}, notifier.sent(), "only the Go subscription matches the Go posting")

	thread, err := st.ThreadByID(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, "Ask HN: Who is hiring? (August 2026)", thread.Title)
	assert.False(t, thread.LastSynced.Time().IsZero())

	postings, err := st.PostingsByThread(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, postings, 2)

	// Nothing changed upstream, so a second sync must stay quiet.
	require.NoError(t, s.Sync(ctx))
	assert.Len(t, notifier.sent(), 1)

	fx.putComment(1003, 1000, "initech", "Initech | Berlin | Go and gRPC backend")
	fx.putStory(1000, "Ask HN: Who is hiring? (August 2026)", 1001, 1002, 1003)

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, []string{"1:1001", "1:1003"}, notifier.sent())

	history, err := st.HistoryBySubscription(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSyncerFixedThread(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// No whoishiring user in the fixture: discovery would fail, pinning the
	// thread must not need it.
	fx := newHNFixture()
	fx.putStory(2000, "Ask HN: Who is hiring? (July 2026)", 2001)
	fx.putComment(2001, 2000, "acme", "Acme | Remote | Go backend")

	s, st, notifier := newTestSyncer(t, fx, []*subscription.Subscription{
		{Name: "go-watch", Filter: "go", ChannelType: "email", Recipient: "dev@example.com"},
	}, Options{Thread: "2000"})

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, []string{"1:2001"}, notifier.sent())

	_, err := st.ThreadByID(ctx, 2000)
	require.NoError(t, err)
}

func TestSyncerThreadSwitch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := newHNFixture()
	fx.putUser(hnclient.HiringAuthor, 1000)
	fx.putStory(1000, "Ask HN: Who is hiring? (August 2026)", 1001)
	fx.putComment(1001, 1000, "acme", "Acme | Remote | Go backend")

	s, st, notifier := newTestSyncer(t, fx, []*subscription.Subscription{
		{Name: "go-watch", Filter: "go", ChannelType: "email", Recipient: "dev@example.com"},
	}, Options{})

	require.NoError(t, s.Sync(ctx))
	require.Equal(t, []string{"1:1001"}, notifier.sent())

	// A month later the bot submits the next thread. Without a schedule the
	// syncer rediscovers on every run and must follow along.
	fx.putStory(3000, "Ask HN: Who is hiring? (September 2026)", 3001)
	fx.putComment(3001, 3000, "hooli", "Hooli | SF | Go and Kafka")
	fx.putUser(hnclient.HiringAuthor, 3000, 1000)

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, []string{"1:1001", "1:3001"}, notifier.sent())

	threads, err := st.Threads(ctx)
	require.NoError(t, err)
	assert.Len(t, threads, 2)
}

func TestSyncerNotifyFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := newHNFixture()
	fx.putUser(hnclient.HiringAuthor, 1000)
	fx.putStory(1000, "Ask HN: Who is hiring? (August 2026)", 1001)
	fx.putComment(1001, 1000, "acme", "Acme | Remote | Go backend")

	s, _, notifier := newTestSyncer(t, fx, []*subscription.Subscription{
		{Name: "go-watch", Filter: "go", ChannelType: "email", Recipient: "dev@example.com"},
	}, Options{})
	notifier.err = errors.New("smtp down")

	// Channel failures are logged, they must not fail the whole sync.
	require.NoError(t, s.Sync(ctx))
	assert.Len(t, notifier.sent(), 1)
}

func TestSyncerUnknownChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := newHNFixture()
	fx.putUser(hnclient.HiringAuthor, 1000)
	fx.putStory(1000, "Ask HN: Who is hiring? (August 2026)", 1001)
	fx.putComment(1001, 1000, "acme", "Acme | Remote | Go backend")

	s, st, notifier := newTestSyncer(t, fx, []*subscription.Subscription{
		{Name: "go-watch", Filter: "go", ChannelType: "sms", Recipient: "+123"},
	}, Options{})

	require.NoError(t, s.Sync(ctx))
	assert.Empty(t, notifier.sent())

	// A missing channel must not record a delivery claim.
	history, err := st.HistoryBySubscription(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSyncerTriggerSyncDoesNotBlock(t *testing.T) {
	t.Parallel()

	s := NewSyncer(nil, nil, nil, nil, nil, Options{}, testutils.NewTestLogger(t))
	s.TriggerSync()
	s.TriggerSync()
	s.TriggerSync()
}
