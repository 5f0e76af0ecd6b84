package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// RequestStore is the remote-store boundary for maintenance requests. The
// dispatch engine treats it as eventually consistent: writes are forwarded
// after the optimistic local mutation, and FetchAll delivers the latest
// remote state per id with no ordering guarantee against local writes.
type RequestStore interface {
	Create(ctx context.Context, request *domain.Request) error
	Update(ctx context.Context, request *domain.Request) error
	UpdateStatus(ctx context.Context, id string, status domain.RequestStatus) error
	FetchAll(ctx context.Context) ([]domain.Request, error)
}

type requestStore struct {
	pool *pgxpool.Pool
}

// NewRequestStore instantiates the Postgres-backed store.
func NewRequestStore(pool *pgxpool.Pool) RequestStore {
	return &requestStore{pool: pool}
}

func (r *requestStore) Create(ctx context.Context, request *domain.Request) error {
	const query = `
        INSERT INTO maintenance_requests
            (id, title, location, category, description, priority, status,
             requester_id, technician_id, photo_url, scheduled_at, created_at,
             completed_at, rating, rating_comment)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.pool.Exec(ctx, query,
		request.ID,
		request.Title,
		request.Location,
		request.Category,
		request.Description,
		request.Priority,
		request.Status,
		request.RequesterID,
		request.TechnicianID,
		request.PhotoURL,
		request.ScheduledAt,
		request.CreatedAt,
		request.CompletedAt,
		request.Rating,
		request.RatingComment,
	)
	return err
}

func (r *requestStore) Update(ctx context.Context, request *domain.Request) error {
	const query = `
        UPDATE maintenance_requests SET
            title=$1, location=$2, category=$3, description=$4, priority=$5,
            status=$6, technician_id=$7, photo_url=$8, scheduled_at=$9,
            completed_at=$10, rating=$11, rating_comment=$12, updated_at=NOW()
        WHERE id=$13`
	cmd, err := r.pool.Exec(ctx, query,
		request.Title,
		request.Location,
		request.Category,
		request.Description,
		request.Priority,
		request.Status,
		request.TechnicianID,
		request.PhotoURL,
		request.ScheduledAt,
		request.CompletedAt,
		request.Rating,
		request.RatingComment,
		request.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestStore) UpdateStatus(ctx context.Context, id string, status domain.RequestStatus) error {
	const query = `UPDATE maintenance_requests SET status=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestStore) FetchAll(ctx context.Context) ([]domain.Request, error) {
	const query = `
        SELECT id, title, location, category, description, priority, status,
               requester_id, technician_id, photo_url, scheduled_at, created_at,
               completed_at, rating, rating_comment
        FROM maintenance_requests
        ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	var result []domain.Request
	for rows.Next() {
		var request domain.Request
		if err := rows.Scan(
			&request.ID,
			&request.Title,
			&request.Location,
			&request.Category,
			&request.Description,
			&request.Priority,
			&request.Status,
			&request.RequesterID,
			&request.TechnicianID,
			&request.PhotoURL,
			&request.ScheduledAt,
			&request.CreatedAt,
			&request.CompletedAt,
			&request.Rating,
			&request.RatingComment,
		); err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	return result, rows.Err()
}
