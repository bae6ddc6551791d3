package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/db"
)

var ErrRuleNotFound = apperr.NotFound(apperr.CodeRuleNotFound, "availability rule not found")

type ruleRepoPG struct{ pool db.Beginner }

func NewRuleRepoPG(pool db.Beginner) RuleRepository { return &ruleRepoPG{pool: pool} }

func (r *ruleRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const ruleCols = `id, doctor_id, clinic_id, recurrence, day_of_week, day_of_month,
	start_minute, end_minute, breaks, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var rule Rule
	err := row.Scan(&rule.ID, &rule.DoctorID, &rule.ClinicID, &rule.Recurrence, &rule.DayOfWeek, &rule.DayOfMonth,
		&rule.StartMinute, &rule.EndMinute, &rule.Breaks, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt)
	if rule.Breaks == nil {
		rule.Breaks = []Break{}
	}
	return &rule, err
}

func (r *ruleRepoPG) Create(ctx context.Context, rule *Rule) error {
	rule.ID = uuid.New()
	rule.IsActive = true
	if rule.Breaks == nil {
		rule.Breaks = []Break{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_rules (id, doctor_id, clinic_id, recurrence, day_of_week, day_of_month,
			start_minute, end_minute, breaks, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		rule.ID, rule.DoctorID, rule.ClinicID, string(rule.Recurrence), rule.DayOfWeek, rule.DayOfMonth,
		rule.StartMinute, rule.EndMinute, rule.Breaks, rule.IsActive).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	rule, err := scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM availability_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *ruleRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Rule, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}

func (r *ruleRepoPG) ListActive(ctx context.Context, doctorID, clinicID uuid.UUID) ([]*Rule, error) {
	return r.list(ctx, `SELECT `+ruleCols+` FROM availability_rules
		WHERE doctor_id = $1 AND clinic_id = $2 AND is_active
		ORDER BY updated_at DESC, id`, doctorID, clinicID)
}

func (r *ruleRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, includeInactive bool) ([]*Rule, error) {
	return r.list(ctx, `SELECT `+ruleCols+` FROM availability_rules
		WHERE doctor_id = $1 AND (is_active OR $2)
		ORDER BY clinic_id, recurrence, day_of_week NULLS LAST, day_of_month NULLS LAST, start_minute`,
		doctorID, includeInactive)
}

func (r *ruleRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE availability_rules SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepoPG) ActiveWeeklyExists(ctx context.Context, doctorID, clinicID uuid.UUID, dayOfWeek int) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_rules
			WHERE doctor_id = $1 AND clinic_id = $2 AND recurrence = 'weekly'
			  AND day_of_week = $3 AND is_active
		)`, doctorID, clinicID, dayOfWeek).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check weekly rule: %w", err)
	}
	return ok, nil
}
