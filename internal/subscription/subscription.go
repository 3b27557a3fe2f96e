// Package subscription holds the notification subscriptions and keeps a
// runtime view of them with parsed filters.
package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jobwatch/jobwatch/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// Subscription subscribes a recipient to postings matching a filter
// expression. Notifications are delivered over the named channel type.
type Subscription struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Filter      string          `json:"filter" db:"filter"`
	ChannelType string          `json:"channel_type" db:"channel_type"`
	Recipient   string          `json:"recipient" db:"recipient"`
	TokenHash   string          `json:"-" db:"token_hash"`
	CreatedAt   types.UnixMilli `json:"created_at" db:"created_at"`
}

// TableName implements the contracts.TableNamer interface.
func (s *Subscription) TableName() string {
	return "subscription"
}

// Validate checks the fields set by API clients.
func (s *Subscription) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("subscription name must not be empty")
	}
	if s.ChannelType == "" {
		return fmt.Errorf("subscription channel type must not be empty")
	}
	if s.Recipient == "" {
		return fmt.Errorf("subscription recipient must not be empty")
	}

	return nil
}

// SetToken stores the bcrypt hash of the management token.
func (s *Subscription) SetToken(token string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.TokenHash = string(hash)
	return nil
}

// VerifyToken reports whether token matches the stored hash.
func (s *Subscription) VerifyToken(token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(s.TokenHash), []byte(token)) == nil
}

// NotificationHistory records one delivered notification, keyed by a UUID.
// The (subscription, posting) pair is unique, so a posting is delivered at
// most once per subscription.
type NotificationHistory struct {
	ID             string          `json:"id" db:"id"`
	SubscriptionID int64           `json:"subscription_id" db:"subscription_id"`
	PostingID      int64           `json:"posting_id" db:"posting_id"`
	ChannelType    string          `json:"channel_type" db:"channel_type"`
	SentAt         types.UnixMilli `json:"sent_at" db:"sent_at"`
}

// TableName implements the contracts.TableNamer interface.
func (h *NotificationHistory) TableName() string {
	return "notification_history"
}

// NewHistory creates the history entry for a notification sent just now.
func NewHistory(sub *Subscription, postingID int64, sentAt time.Time) *NotificationHistory {
	return &NotificationHistory{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		PostingID:      postingID,
		ChannelType:    sub.ChannelType,
		SentAt:         types.UnixMilli(sentAt),
	}
}
