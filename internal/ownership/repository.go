package ownership

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed directory lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForPatient returns the raw directory rows for a patient, in insertion
// order. Callers that need one row per owner pass the result through Dedupe.
func (r *Repository) ListForPatient(ctx context.Context, patientID int64) ([]Share, error) {
	rows, err := r.pool.Query(ctx, `SELECT patient_id, owner_id, percentage FROM patient_owners WHERE patient_id = $1 ORDER BY id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []Share
	for rows.Next() {
		var s Share
		if err := rows.Scan(&s.PatientID, &s.OwnerID, &s.Percentage); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}
