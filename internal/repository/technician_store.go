package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// TechnicianStore is the technician-management boundary. Records are created
// and maintained by an external collaborator; the dispatch engine only reads
// them. Specialization and contact fields are opaque here.
type TechnicianStore interface {
	FetchAll(ctx context.Context) ([]domain.Technician, error)
	Update(ctx context.Context, technician *domain.Technician) error
}

type technicianStore struct {
	pool *pgxpool.Pool
}

// NewTechnicianStore instantiates the Postgres-backed store.
func NewTechnicianStore(pool *pgxpool.Pool) TechnicianStore {
	return &technicianStore{pool: pool}
}

func (r *technicianStore) FetchAll(ctx context.Context) ([]domain.Technician, error) {
	const query = `
        SELECT id, name, email, specialization, active, created_at, updated_at
        FROM technicians
        ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Technician
	for rows.Next() {
		var tech domain.Technician
		if err := rows.Scan(
			&tech.ID,
			&tech.Name,
			&tech.Email,
			&tech.Specialization,
			&tech.Active,
			&tech.CreatedAt,
			&tech.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, tech)
	}
	return result, rows.Err()
}

func (r *technicianStore) Update(ctx context.Context, technician *domain.Technician) error {
	const query = `
        UPDATE technicians SET name=$1, email=$2, specialization=$3, active=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		technician.Name,
		technician.Email,
		technician.Specialization,
		technician.Active,
		technician.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
