package dto

import (
	"time"

	"ai-studynotes-be/internal/entity"

	"github.com/google/uuid"
)

type GenerateRequest struct {
	NoteId                 uuid.UUID
	TargetStage            string `json:"target_stage" validate:"omitempty,oneof=outline flashcards quiz insights all"`
	RefinementInstructions string `json:"refinement_instructions"`
	Language               string `json:"language"`
}

type GenerationResponse struct {
	Id               uuid.UUID  `json:"id"`
	NoteId           uuid.UUID  `json:"note_id"`
	Model            string     `json:"model"`
	Outline          string     `json:"outline"`
	FlashcardsJson   string     `json:"flashcardsJson"`
	QuizJson         string     `json:"quizJson"`
	WeakSpots        string     `json:"weak_spots"`
	DevilsAdvocate   *string    `json:"devils_advocate"`
	Metaphor         *string    `json:"metaphor"`
	CrossPollination *string    `json:"cross_pollination"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`
}

// Stream payloads. Each one rides a named server-sent event on the
// generation stream.

type StatusPayload struct {
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

type OutlineChunkPayload struct {
	Chunk string `json:"chunk"`
}

// TargetedFinalPayload closes a single-stage run; Data holds only the
// regenerated field.
type TargetedFinalPayload struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

type FullFinalPayload struct {
	Generation GenerationResponse `json:"generation"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type FlashcardItemPayload = entity.Flashcard

type QuizItemPayload = entity.QuizQuestion

// SynthesizeTitleMessage rides the internal pubsub topic after a full run
// finishes, so the note can get a real title off the request path.
type SynthesizeTitleMessage struct {
	NoteId       uuid.UUID `json:"note_id"`
	GenerationId uuid.UUID `json:"generation_id"`
}

type WeakSpotsRequest struct {
	NoteId               uuid.UUID
	IncorrectQuestionIds []string `json:"incorrect_question_ids" validate:"required"`
}

type WeakSpotsResponse struct {
	WeakSpots []string `json:"weak_spots"`
}
