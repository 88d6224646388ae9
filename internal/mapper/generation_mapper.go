package mapper

import (
	"time"

	"ai-studynotes-be/internal/entity"
	"ai-studynotes-be/internal/model"

	"gorm.io/datatypes"
)

type GenerationMapper struct{}

func NewGenerationMapper() *GenerationMapper {
	return &GenerationMapper{}
}

func (m *GenerationMapper) ToEntity(g *model.Generation) *entity.Generation {
	if g == nil {
		return nil
	}

	var updatedAt *time.Time
	if !g.UpdatedAt.IsZero() {
		t := g.UpdatedAt
		updatedAt = &t
	}

	return &entity.Generation{
		Id:               g.Id,
		NoteId:           g.NoteId,
		Model:            g.Model,
		Outline:          g.Outline,
		FlashcardsJson:   jsonOrEmptyArray(g.FlashcardsJson),
		QuizJson:         jsonOrEmptyArray(g.QuizJson),
		WeakSpots:        g.WeakSpots,
		DevilsAdvocate:   g.DevilsAdvocate,
		Metaphor:         g.Metaphor,
		CrossPollination: g.CrossPollination,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        updatedAt,
	}
}

func (m *GenerationMapper) ToModel(g *entity.Generation) *model.Generation {
	if g == nil {
		return nil
	}

	var updatedAt time.Time
	if g.UpdatedAt != nil {
		updatedAt = *g.UpdatedAt
	}

	return &model.Generation{
		Id:               g.Id,
		NoteId:           g.NoteId,
		Model:            g.Model,
		Outline:          g.Outline,
		FlashcardsJson:   datatypes.JSON(emptyArrayIfBlank(g.FlashcardsJson)),
		QuizJson:         datatypes.JSON(emptyArrayIfBlank(g.QuizJson)),
		WeakSpots:        g.WeakSpots,
		DevilsAdvocate:   g.DevilsAdvocate,
		Metaphor:         g.Metaphor,
		CrossPollination: g.CrossPollination,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        updatedAt,
	}
}

func (m *GenerationMapper) ToEntities(generations []*model.Generation) []*entity.Generation {
	entities := make([]*entity.Generation, len(generations))
	for i, g := range generations {
		entities[i] = m.ToEntity(g)
	}
	return entities
}

// The sequence columns must round-trip as "[]", never as null or "".

func jsonOrEmptyArray(j datatypes.JSON) string {
	if len(j) == 0 {
		return "[]"
	}
	return string(j)
}

func emptyArrayIfBlank(s string) string {
	if s == "" {
		return "[]"
	}
	return s
}
