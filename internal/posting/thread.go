package posting

import (
	"fmt"
	"time"

	"github.com/jobwatch/jobwatch/internal/types"
)

// Thread is one monthly hiring story whose top-level comments are tracked.
type Thread struct {
	ID         int64           `json:"id" db:"id"`
	Title      string          `json:"title" db:"title"`
	Author     string          `json:"author" db:"author"`
	Time       types.UnixMilli `json:"time" db:"time"`
	LastSynced types.UnixMilli `json:"last_synced" db:"last_synced"`
}

// NewThread creates a Thread from story metadata.
func NewThread(id int64, title, author string, t time.Time) *Thread {
	return &Thread{
		ID:     id,
		Title:  title,
		Author: author,
		Time:   types.UnixMilli(t),
	}
}

// TableName implements the contracts.TableNamer interface.
func (t *Thread) TableName() string {
	return "thread"
}

// URL returns the Hacker News link of this thread.
func (t *Thread) URL() string {
	return fmt.Sprintf("https://news.ycombinator.com/item?id=%d", t.ID)
}

func (t *Thread) String() string {
	return fmt.Sprintf("%q [id=%d]", t.Title, t.ID)
}
