package event_bus

import (
	"time"

	"github.com/napomni/napomni/pkg/user"
)

const (
	TypeEventInvited  EventType = "event.invited"
	TypeEventDeclined EventType = "event.declined"
)

// EventInvited is published once per fan-out copy when an event with
// participants is created.
type EventInvited struct {
	EventID     int
	To          user.PlatformRef
	From        user.PlatformRef
	Description string
	StartAt     time.Time
}

// EventDeclined is published when a participant deletes their fan-out copy.
type EventDeclined struct {
	EventID     int
	Creator     user.PlatformRef
	DeclinedBy  user.PlatformRef
	Description string
}
