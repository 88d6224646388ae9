package events

import (
	"time"

	"github.com/google/uuid"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "NOTE_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NoteCreated is published after a note row is written.
func NoteCreated(noteId, userId uuid.UUID, title string) Event {
	return BaseEvent{
		Type: "NOTE_CREATED",
		Data: map[string]interface{}{
			"note_id": noteId,
			"user_id": userId,
			"title":   title,
		},
		OccurredAt: time.Now(),
	}
}

// GenerationCompleted is published after a full generation run persists its
// Generation row.
func GenerationCompleted(noteId, generationId, userId uuid.UUID, model string) Event {
	return BaseEvent{
		Type: "GENERATION_COMPLETED",
		Data: map[string]interface{}{
			"note_id":       noteId,
			"generation_id": generationId,
			"user_id":       userId,
			"model":         model,
		},
		OccurredAt: time.Now(),
	}
}
