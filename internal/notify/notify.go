// Package notify announces committed versions to downstream consumers.
package notify

import (
	"context"
	"time"
)

// Event describes one committed version.
type Event struct {
	Continent   string
	RunType     string
	Version     uint64
	Key         string
	Modules     []string
	Writer      string
	CommittedAt time.Time
}

func (e Event) payload() map[string]any {
	modules := make([]any, len(e.Modules))
	for i, m := range e.Modules {
		modules[i] = m
	}
	return map[string]any{
		"continent":    e.Continent,
		"run_type":     e.RunType,
		"version":      e.Version,
		"key":          e.Key,
		"modules":      modules,
		"writer":       e.Writer,
		"committed_at": e.CommittedAt.UTC().Format(time.RFC3339),
	}
}

// Notifier delivers commit events. Delivery failures never undo a commit;
// callers log them.
type Notifier interface {
	Committed(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Committed(context.Context, Event) error { return nil }
