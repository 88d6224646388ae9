package entity

import (
	"time"

	"github.com/google/uuid"
)

// Generation is the persisted bundle of study artifacts produced for a note.
// FlashcardsJson and QuizJson always hold a serialized JSON array ("[]" when
// empty), never an absent value, so clients can deserialize without a null
// check.
type Generation struct {
	Id               uuid.UUID
	NoteId           uuid.UUID
	Model            string
	Outline          string
	FlashcardsJson   string
	QuizJson         string
	WeakSpots        string
	DevilsAdvocate   *string
	Metaphor         *string
	CrossPollination *string
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}

// Flashcard is produced one-at-a-time during the flashcards stage. The id is
// stage-local, not globally unique.
type Flashcard struct {
	Id         string   `json:"id"`
	Front      string   `json:"front"`
	Back       string   `json:"back"`
	Tags       []string `json:"tags"`
	Difficulty int      `json:"difficulty"`
}

// QuizQuestion is produced one-at-a-time during the quiz stage.
type QuizQuestion struct {
	Id           string   `json:"id"`
	Question     string   `json:"question"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`
}
