package availability

import (
	"context"

	"github.com/google/uuid"
)

type RuleRepository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	// ListActive returns the active rules of a doctor at a clinic, most
	// recently updated first.
	ListActive(ctx context.Context, doctorID, clinicID uuid.UUID) ([]*Rule, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, includeInactive bool) ([]*Rule, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	ActiveWeeklyExists(ctx context.Context, doctorID, clinicID uuid.UUID, dayOfWeek int) (bool, error)
}
