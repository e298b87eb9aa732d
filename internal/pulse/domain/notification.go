package domain

import (
	"time"

	"github.com/aussiebroadwan/pulse/pkg/idx"
)

// EventType names a notification pushed over the realtime channel.
type EventType string

const (
	EventProfileUpdated      EventType = "profile.updated"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventAvatarUpdated       EventType = "avatar.updated"
	EventSessionRevoked      EventType = "session.revoked"
)

// Event is a single server to client notification.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	UserID int64     `json:"userId"`
	Data   any       `json:"data,omitempty"`
	At     time.Time `json:"at"`
}

func NewEvent(userID int64, typ EventType, data any) Event {
	now := time.Now().UTC()
	return Event{
		ID:     idx.NewAt(now).String(),
		Type:   typ,
		UserID: userID,
		Data:   data,
		At:     now,
	}
}
