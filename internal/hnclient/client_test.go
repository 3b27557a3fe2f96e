package hnclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, 0, testutils.NewTestLogger(t))
}

func serveItem(mux *http.ServeMux, id int64, body string) {
	mux.HandleFunc(fmt.Sprintf("/item/%d.json", id), func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func TestClientItem(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	serveItem(mux, 101, `{"id":101,"type":"comment","by":"dang","time":1722500000,"text":"hello","parent":100}`)
	serveItem(mux, 404, `null`)
	mux.HandleFunc("/item/500.json", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	item, err := client.Item(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, int64(101), item.ID)
	assert.Equal(t, "dang", item.By)
	assert.Equal(t, int64(100), item.Parent)
	assert.Equal(t, time.Unix(1722500000, 0), item.Time.Time)
	assert.True(t, item.IsComment())

	_, err = client.Item(ctx, 404)
	assert.ErrorIs(t, err, ErrNoSuchItem)

	_, err = client.Item(ctx, 500)
	assert.ErrorContains(t, err, "unexpected HTTP status code 500")
}

func TestClientUserAgent(t *testing.T) {
	t.Parallel()

	var userAgent string
	mux := http.NewServeMux()
	mux.HandleFunc("/maxitem.json", func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`42`))
	})

	client := newTestClient(t, mux)

	id, err := client.MaxItem(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "jobwatch/"+internal.Version.Version, userAgent)
}

func TestClientFetchKids(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	serveItem(mux, 1, `{"id":1,"type":"comment","by":"a","time":1,"text":"first"}`)
	serveItem(mux, 2, `{"id":2,"type":"comment","time":2,"dead":true}`)
	serveItem(mux, 3, `null`)
	serveItem(mux, 4, `{"id":4,"type":"story","title":"not a comment","time":4}`)
	serveItem(mux, 5, `{"id":5,"type":"comment","by":"b","time":5,"text":"last"}`)

	client := newTestClient(t, mux)
	thread := &Item{ID: 100, Type: TypeStory, Kids: []int64{1, 2, 3, 4, 5}}

	items, err := client.FetchKids(context.Background(), thread, 0, 2)
	require.NoError(t, err)

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []int64{1, 5}, ids, "live comments must keep their ranked order")

	limited, err := client.FetchKids(context.Background(), thread, 2, 2)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(1), limited[0].ID)
}

func TestClientDiscoverHiringThread(t *testing.T) {
	t.Parallel()

	t.Run("FindsNewestThread", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/user/whoishiring.json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"id":"whoishiring","submitted":[30,20,10]}`))
		})
		serveItem(mux, 30, `{"id":30,"type":"story","title":"Ask HN: Who wants to be hired? (August 2026)","time":30}`)
		serveItem(mux, 20, `{"id":20,"type":"story","title":"Ask HN: Who is hiring? (August 2026)","time":20,"kids":[1,2]}`)
		serveItem(mux, 10, `{"id":10,"type":"story","title":"Ask HN: Who is hiring? (July 2026)","time":10}`)

		client := newTestClient(t, mux)

		thread, err := client.DiscoverHiringThread(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(20), thread.ID)
	})

	t.Run("NoThreadFound", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/user/whoishiring.json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"id":"whoishiring","submitted":[30]}`))
		})
		serveItem(mux, 30, `{"id":30,"type":"story","title":"Ask HN: Freelancer? Seeking freelancer? (August 2026)","time":30}`)

		client := newTestClient(t, mux)

		_, err := client.DiscoverHiringThread(context.Background())
		assert.ErrorContains(t, err, "no hiring thread")
	})
}

func TestResolveThreadID(t *testing.T) {
	t.Parallel()

	testdata := []struct {
		name      string
		reference string
		expected  int64
		valid     bool
	}{
		{"BareID", "39894820", 39894820, true},
		{"ItemURL", "https://news.ycombinator.com/item?id=39894820", 39894820, true},
		{"ItemURLExtraParams", "https://news.ycombinator.com/item?p=2&id=41709301", 41709301, true},
		{"FrontPageURL", "https://news.ycombinator.com/news", 0, false},
		{"NonNumericID", "https://news.ycombinator.com/item?id=abc", 0, false},
		{"Garbage", "not-a-thread", 0, false},
	}

	for _, data := range testdata {
		t.Run(data.name, func(t *testing.T) {
			t.Parallel()

			id, err := ResolveThreadID(data.reference)
			if data.valid {
				require.NoError(t, err)
				assert.Equal(t, data.expected, id)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
