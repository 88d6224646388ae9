package contract

import (
	"context"

	"ai-studynotes-be/internal/entity"
	"ai-studynotes-be/internal/repository/specification"

	"github.com/google/uuid"
)

type GenerationRepository interface {
	Create(ctx context.Context, generation *entity.Generation) error
	// UpdateFields overwrites only the given columns on one row. Targeted
	// regeneration uses it so the untouched artifacts survive.
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Generation, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Generation, error)
}
