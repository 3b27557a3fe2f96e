// Package hnclient queries the Hacker News Firebase API.
//
// https://github.com/HackerNews/API
package hnclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/jobwatch/jobwatch/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public endpoint of the Hacker News API.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// HiringAuthor is the bot account submitting the monthly hiring threads.
const HiringAuthor = "whoishiring"

// ErrNoSuchItem is returned for item IDs the API answers with JSON null.
var ErrNoSuchItem = errors.New("no such item")

// transport wraps http.Transport and overrides http.RoundTripper to set a
// custom User-Agent for all requests.
type transport struct {
	http.Transport
	userAgent string
}

func (trans *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", trans.userAgent)
	return trans.Transport.RoundTrip(req)
}

// Client for the Hacker News API.
//
// Every request first waits on the shared rate limiter, so a single Client
// bounds the request rate no matter how many goroutines fetch through it.
type Client struct {
	Logger *logging.Logger

	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client for the API at baseURL, keeping at least delay
// between the starts of two requests. A delay of zero disables throttling.
func NewClient(baseURL string, delay time.Duration, logger *logging.Logger) *Client {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	return &Client{
		Logger:  logger,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &transport{userAgent: "jobwatch/" + internal.Version.Version},
			Timeout:   time.Minute,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Item fetches one item by its ID.
// Returns ErrNoSuchItem when the API doesn't know the ID.
func (client *Client) Item(ctx context.Context, id int64) (*Item, error) {
	body, err := client.get(ctx, "/item/"+strconv.FormatInt(id, 10)+".json")
	if err != nil {
		return nil, err
	}

	var item *Item
	if err := decodeResponse(body, &item); err != nil {
		return nil, fmt.Errorf("cannot decode item %d: %w", id, err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, ErrNoSuchItem)
	}

	return item, nil
}

// User fetches a user profile by its case-sensitive username.
func (client *Client) User(ctx context.Context, username string) (*User, error) {
	body, err := client.get(ctx, "/user/"+url.PathEscape(username)+".json")
	if err != nil {
		return nil, err
	}

	var user *User
	if err := decodeResponse(body, &user); err != nil {
		return nil, fmt.Errorf("cannot decode user %q: %w", username, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %q: %w", username, ErrNoSuchItem)
	}

	return user, nil
}

// MaxItem returns the currently largest item ID.
func (client *Client) MaxItem(ctx context.Context) (int64, error) {
	body, err := client.get(ctx, "/maxitem.json")
	if err != nil {
		return 0, err
	}

	var id int64
	if err := decodeResponse(body, &id); err != nil {
		return 0, fmt.Errorf("cannot decode max item ID: %w", err)
	}

	return id, nil
}

// FetchKids fetches the direct children of the given thread concurrently,
// running at most maxConcurrent requests at once. The returned items keep the
// thread's ranked order. Dead, deleted, unknown and non-comment children are
// skipped. A limit > 0 caps how many children are considered.
func (client *Client) FetchKids(ctx context.Context, thread *Item, limit, maxConcurrent int) ([]*Item, error) {
	kids := thread.Kids
	if limit > 0 && limit < len(kids) {
		kids = kids[:limit]
	}

	items := make([]*Item, len(kids))

	g, gCtx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}

	for i, id := range kids {
		g.Go(func() error {
			item, err := client.Item(gCtx, id)
			if errors.Is(err, ErrNoSuchItem) {
				client.Logger.Debugw("Skipping unknown item", zap.Int64("id", id))
				return nil
			} else if err != nil {
				return err
			}

			if !item.IsComment() {
				client.Logger.Debugw("Skipping non-comment item",
					zap.Int64("id", id), zap.String("type", item.Type),
					zap.Bool("dead", item.Dead), zap.Bool("deleted", item.Deleted))
				return nil
			}

			items[i] = item
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return utils.RemoveNils(items), nil
}

// DiscoverHiringThread returns the newest "Who is hiring?" thread submitted
// by the whoishiring account, scanning at most the latest dozen submissions.
func (client *Client) DiscoverHiringThread(ctx context.Context) (*Item, error) {
	user, err := client.User(ctx, HiringAuthor)
	if err != nil {
		return nil, err
	}

	submitted := user.Submitted
	if len(submitted) > 12 {
		submitted = submitted[:12]
	}

	for _, id := range submitted {
		item, err := client.Item(ctx, id)
		if errors.Is(err, ErrNoSuchItem) {
			continue
		} else if err != nil {
			return nil, err
		}

		if item.Type == TypeStory && strings.Contains(item.Title, "Who is hiring?") {
			return item, nil
		}
	}

	return nil, fmt.Errorf("no hiring thread among the latest submissions of %q", HiringAuthor)
}

// get performs a rate-limited GET request and returns the raw response body.
//
// The returned io.ReadCloser MUST be both read to completion and closed to
// reuse connections, decodeResponse takes care of that.
func (client *Client) get(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqUrl, err := url.JoinPath(client.baseURL, path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqUrl, nil)
	if err != nil {
		return nil, err
	}

	res, err := client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
		return nil, fmt.Errorf("unexpected HTTP status code %d", res.StatusCode)
	}

	return res.Body, nil
}

// decodeResponse parses the JSON response body into v, draining and closing
// the body for connection reuse.
func decodeResponse(body io.ReadCloser, v any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, body)
		_ = body.Close()
	}()

	return json.NewDecoder(body).Decode(v)
}

// ResolveThreadID extracts the numeric item ID from a thread reference, which
// may be the decimal ID itself or a link of the form
// https://news.ycombinator.com/item?id=39894820.
func ResolveThreadID(reference string) (int64, error) {
	if id, err := strconv.ParseInt(reference, 10, 64); err == nil {
		return id, nil
	}

	parsed, err := url.Parse(reference)
	if err != nil {
		return 0, fmt.Errorf("invalid thread reference %q: %w", reference, err)
	}

	if idParam := parsed.Query().Get("id"); idParam != "" {
		if id, err := strconv.ParseInt(idParam, 10, 64); err == nil {
			return id, nil
		}
	}

	return 0, fmt.Errorf("cannot extract an item ID from %q", reference)
}
