package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Generation struct {
	Id               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	NoteId           uuid.UUID      `gorm:"type:uuid;not null;index"`
	Model            string         `gorm:"type:varchar(128);not null"`
	Outline          string         `gorm:"type:text"`
	FlashcardsJson   datatypes.JSON `gorm:"not null;default:'[]'"`
	QuizJson         datatypes.JSON `gorm:"not null;default:'[]'"`
	WeakSpots        string         `gorm:"type:text"`
	DevilsAdvocate   *string        `gorm:"type:text"`
	Metaphor         *string        `gorm:"type:text"`
	CrossPollination *string        `gorm:"type:text"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime"`
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (Generation) TableName() string {
	return "generations"
}
