// Package events fans stage transitions out to progress listeners.
package events

import (
	"context"
	"time"

	"github.com/yoockh/madprep/internal/models"
)

const TypeStage = "stage"

// Event is one stage transition of a session.
type Event struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Stage     string               `json:"stage"`
	Terminal  bool                 `json:"terminal"`
	Error     *models.SessionError `json:"error,omitempty"`
	At        time.Time            `json:"at"`
}

type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

func channel(sessionID string) string { return "session:" + sessionID + ":status" }
