package hnclient

import (
	"strconv"
	"time"
)

// UnixTime is a custom time.Time type for JSON unmarshalling from the Hacker
// News API's unix timestamp fields.
type UnixTime struct {
	time.Time
}

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	unixSec, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}

	t.Time = time.Unix(unixSec, 0)
	return nil
}

// Item represents one item of the Hacker News API, which is the common shape
// of stories, comments, jobs and polls.
//
// NOTE:
//   - Kids are in ranked display order, the API guarantees nothing else.
//   - Text is HTML.
//   - Deleted and Dead items keep their ID but carry no useful payload.
//
// https://github.com/HackerNews/API#items
type Item struct {
	ID      int64    `json:"id"`
	Type    string   `json:"type"`
	By      string   `json:"by"`
	Time    UnixTime `json:"time"`
	Text    string   `json:"text"`
	Title   string   `json:"title"`
	Kids    []int64  `json:"kids"`
	Parent  int64    `json:"parent"`
	Dead    bool     `json:"dead"`
	Deleted bool     `json:"deleted"`
}

// Item type strings as delivered by the API.
const (
	TypeStory   = "story"
	TypeComment = "comment"
	TypeJob     = "job"
)

// IsComment reports whether this item is a live comment carrying text.
func (i *Item) IsComment() bool {
	return i.Type == TypeComment && !i.Dead && !i.Deleted
}

// User represents a user of the Hacker News API. Submitted lists the user's
// stories, comments and polls, newest first.
//
// https://github.com/HackerNews/API#users
type User struct {
	ID        string  `json:"id"`
	Submitted []int64 `json:"submitted"`
}
