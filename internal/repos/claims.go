package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"policy-management-service/internal/apperr"
	"policy-management-service/internal/domain"
)

type ClaimsRepo struct {
	pool *pgxpool.Pool
}

func NewClaimsRepo(pool *pgxpool.Pool) *ClaimsRepo {
	return &ClaimsRepo{pool: pool}
}

const claimColumns = `id, claim_number, policy_id, description, claim_amount,
		incident_date, status, rejection_reason, created_at, updated_at`

// Insert persists a new claim and assigns its business number from the
// generated id, in one transaction.
func (r *ClaimsRepo) Insert(ctx context.Context, c *domain.Claim) error {
	now := time.Now().UTC()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO claims (claim_number, policy_id, description, claim_amount,
			incident_date, status, rejection_reason, created_at, updated_at)
		VALUES ('', $1, $2, $3, $4, $5, '', $6, $6)
		RETURNING id
	`, c.PolicyID, c.Description, c.ClaimAmount, c.IncidentDate, c.Status, now).
		Scan(&c.ID)
	if err != nil {
		return err
	}

	c.ClaimNumber = domain.GenerateClaimNumber(c.ID, now)
	if _, err := tx.Exec(ctx, `
		UPDATE claims SET claim_number = $1 WHERE id = $2
	`, c.ClaimNumber, c.ID); err != nil {
		return err
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return tx.Commit(ctx)
}

func (r *ClaimsRepo) FindByID(ctx context.Context, id int64) (domain.Claim, error) {
	var c domain.Claim
	err := r.pool.QueryRow(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE id = $1
	`, id).
		Scan(&c.ID, &c.ClaimNumber, &c.PolicyID, &c.Description, &c.ClaimAmount,
			&c.IncidentDate, &c.Status, &c.RejectionReason, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, apperr.NotFound(fmt.Sprintf("claim %d not found", id))
	}
	return c, err
}

func (r *ClaimsRepo) FindByPolicyID(ctx context.Context, policyID int64) ([]domain.Claim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE policy_id = $1
		ORDER BY created_at DESC, id DESC
	`, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := []domain.Claim{}
	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(&c.ID, &c.ClaimNumber, &c.PolicyID, &c.Description, &c.ClaimAmount,
			&c.IncidentDate, &c.Status, &c.RejectionReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// Update saves the status transition fields.
func (r *ClaimsRepo) Update(ctx context.Context, c *domain.Claim) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE claims
		SET status = $1, rejection_reason = $2, updated_at = $3
		WHERE id = $4
	`, c.Status, c.RejectionReason, now, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("claim %d not found", c.ID))
	}
	c.UpdatedAt = now
	return nil
}
