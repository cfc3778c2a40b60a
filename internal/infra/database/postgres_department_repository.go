package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civic_followup_engine/internal/domain/department"
)

type PostgresDepartmentRepository struct {
	db *sql.DB
}

func NewPostgresDepartmentRepository(db *sql.DB) *PostgresDepartmentRepository {
	return &PostgresDepartmentRepository{db: db}
}

func (r *PostgresDepartmentRepository) GetByID(ctx context.Context, id string) (*department.Department, error) {
	query := `SELECT id, name, contact_email, escalation_email, priority_level, created_at
               FROM departments WHERE id = $1`
	d := &department.Department{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &d.ContactEmail, &d.EscalationEmail, &d.PriorityLevel, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("error getting department by ID: %w", err)
	}
	return d, nil
}

func (r *PostgresDepartmentRepository) ListAll(ctx context.Context) ([]*department.Department, error) {
	query := `SELECT id, name, contact_email, escalation_email, priority_level, created_at
               FROM departments ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing departments: %w", err)
	}
	defer rows.Close()

	var departments []*department.Department
	for rows.Next() {
		d := &department.Department{}
		if err := rows.Scan(&d.ID, &d.Name, &d.ContactEmail, &d.EscalationEmail, &d.PriorityLevel, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning department row: %w", err)
		}
		departments = append(departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating department rows: %w", err)
	}
	return departments, nil
}
