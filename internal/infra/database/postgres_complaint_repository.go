// internal/infra/database/postgres_complaint_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"civic_followup_engine/internal/domain/complaint"

	"github.com/lib/pq" // For pq.Array and driver registration
)

type PostgresComplaintRepository struct {
	db *sql.DB
}

func NewPostgresComplaintRepository(db *sql.DB) *PostgresComplaintRepository {
	return &PostgresComplaintRepository{db: db}
}

const complaintColumns = `id, status, category, official_summary, landmark, image_url,
               assigned_department, sla_hours, created_at, updated_at`

func scanComplaint(row interface{ Scan(...any) error }) (*complaint.Complaint, error) {
	c := &complaint.Complaint{}
	err := row.Scan(
		&c.ID, &c.Status, &c.Category, &c.OfficialSummary, &c.Landmark, &c.ImageURL,
		&c.AssignedDepartment, &c.SLAHours, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// --- Complaint Methods ---

func (r *PostgresComplaintRepository) GetByID(ctx context.Context, id string) (*complaint.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`
	c, err := scanComplaint(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrComplaintNotFound
		}
		return nil, fmt.Errorf("error getting complaint by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresComplaintRepository) UpdateStatus(ctx context.Context, id string, status complaint.Status) error {
	query := `UPDATE complaints SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("error updating complaint status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for complaint status update: %w", err)
	}
	if rowsAffected == 0 {
		return ErrComplaintNotFound
	}
	return nil
}

func (r *PostgresComplaintRepository) ListNonTerminal(ctx context.Context) ([]*complaint.Complaint, error) {
	terminal := complaint.TerminalStatuses()
	statuses := make([]string, len(terminal))
	for i, s := range terminal {
		statuses[i] = string(s)
	}

	query := `SELECT ` + complaintColumns + `
               FROM complaints
               WHERE status <> ALL($1)
               ORDER BY created_at` // Oldest first so overdue complaints are evaluated early
	rows, err := r.db.QueryContext(ctx, query, pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("error querying non-terminal complaints: %w", err)
	}
	defer rows.Close()

	complaints := make([]*complaint.Complaint, 0)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning complaint row: %w", err)
		}
		complaints = append(complaints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating complaint rows: %w", err)
	}
	return complaints, nil
}

// --- Timeline Methods ---

func (r *PostgresComplaintRepository) AppendAction(ctx context.Context, a *complaint.Action) error {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("error encoding action metadata: %w", err)
	}

	query := `INSERT INTO complaint_actions (complaint_id, action_type, description, metadata)
               VALUES ($1, $2, $3, $4)
               RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, a.ComplaintID, a.Type, a.Description, payload).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("error appending complaint action: %w", err)
	}
	return nil
}

func (r *PostgresComplaintRepository) CountActions(ctx context.Context, complaintID string, actionType complaint.ActionType) (int, error) {
	query := `SELECT COUNT(*) FROM complaint_actions WHERE complaint_id = $1 AND action_type = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, complaintID, actionType).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting complaint actions: %w", err)
	}
	return count, nil
}

func (r *PostgresComplaintRepository) ListActions(ctx context.Context, complaintID string) ([]*complaint.Action, error) {
	query := `SELECT id, complaint_id, action_type, description, metadata, created_at
               FROM complaint_actions
               WHERE complaint_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, complaintID)
	if err != nil {
		return nil, fmt.Errorf("error querying complaint actions: %w", err)
	}
	defer rows.Close()

	actions := make([]*complaint.Action, 0)
	for rows.Next() {
		a := complaint.Action{}
		var payload []byte
		if err := rows.Scan(&a.ID, &a.ComplaintID, &a.Type, &a.Description, &payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning complaint action row: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.Metadata); err != nil {
				return nil, fmt.Errorf("error decoding metadata of action %d: %w", a.ID, err)
			}
		}
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating complaint action rows: %w", err)
	}
	return actions, nil
}
