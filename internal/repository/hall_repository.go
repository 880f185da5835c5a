package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/iliyamo/venue-booking/internal/model"
)

// HallRepo reads the hall assignment registry.  The registry is owned by
// the venue catalog; this service never writes it and never caches it.
type HallRepo struct {
	db *sql.DB
}

func NewHallRepo(db *sql.DB) *HallRepo {
	return &HallRepo{db: db}
}

// GetByID loads a hall with its current managers.  It returns ErrNotFound
// when no row matches.
func (r *HallRepo) GetByID(ctx context.Context, id string) (*model.Hall, error) {
	var h model.Hall
	err := r.db.QueryRowContext(ctx, `SELECT id, owner_id, name FROM halls WHERE id = ?`, id).
		Scan(&h.ID, &h.OwnerID, &h.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT manager_id, department, tasks FROM hall_managers WHERE hall_id = ? ORDER BY manager_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m     model.HallManager
			dept  sql.NullString
			tasks []byte
		)
		if err := rows.Scan(&m.ManagerID, &dept, &tasks); err != nil {
			return nil, err
		}
		m.Department = dept.String
		if len(tasks) > 0 {
			if err := json.Unmarshal(tasks, &m.Tasks); err != nil {
				return nil, fmt.Errorf("decode tasks of %s: %w", m.ManagerID, err)
			}
		}
		h.Managers = append(h.Managers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HallRepo) ids(ctx context.Context, q, arg string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *HallRepo) IDsOwnedBy(ctx context.Context, ownerID string) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM halls WHERE owner_id = ?`, ownerID)
}

func (r *HallRepo) IDsManagedBy(ctx context.Context, managerID string) ([]string, error) {
	return r.ids(ctx, `SELECT DISTINCT hall_id FROM hall_managers WHERE manager_id = ?`, managerID)
}
