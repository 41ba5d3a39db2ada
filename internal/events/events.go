package events

import (
	"context"
	"time"
)

type Action string

const (
	ChallengeCreated Action = "challenge.created"
	ChallengeUpdated Action = "challenge.updated"
)

// Event is published for every challenge an import touches.
type Event struct {
	Action      Action    `json:"action"`
	ChallengeID string    `json:"challenge_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Source      string    `json:"source"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }

func (Nop) Close() error { return nil }
