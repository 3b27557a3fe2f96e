package posting

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jobwatch/jobwatch/internal/types"
)

// Posting is one job ad, i.e. one top-level comment of a hiring thread.
type Posting struct {
	ID       int64           `json:"id" db:"id"`
	ThreadID int64           `json:"thread_id" db:"thread_id"`
	Author   string          `json:"author" db:"author"`
	Time     types.UnixMilli `json:"time" db:"time"`
	Text     string          `json:"text" db:"text"`
	Tags     TagList         `json:"tags" db:"tags"`
}

// New builds a Posting from the raw comment fields delivered by the Hacker
// News API, deriving its tech stack tags from the text.
func New(id, threadID int64, author string, t time.Time, text string) *Posting {
	return &Posting{
		ID:       id,
		ThreadID: threadID,
		Author:   author,
		Time:     types.UnixMilli(t),
		Text:     text,
		Tags:     ExtractTags(text),
	}
}

// TableName implements the contracts.TableNamer interface.
func (p *Posting) TableName() string {
	return "posting"
}

// URL returns the Hacker News permalink of this posting.
func (p *Posting) URL() string {
	return "https://news.ycombinator.com/item?id=" + strconv.FormatInt(p.ID, 10)
}

// Excerpt returns the beginning of the posting as plain text, shortened to at
// most max runes.
func (p *Posting) Excerpt(max int) string {
	text := PlainText(p.Text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}

	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	return string(runes[:max-1]) + "…"
}

func (p *Posting) String() string {
	return fmt.Sprintf("[id=%d author=%q tags=%v]", p.ID, p.Author, []string(p.Tags))
}

// TagList is a []string stored as a JSON array in a TEXT column.
type TagList []string

// Value implements driver.Valuer.
func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}

	return string(raw), nil
}

// Scan implements sql.Scanner.
func (t *TagList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into TagList", src)
	}

	return json.Unmarshal(raw, t)
}
