// Package repos persists the policy and claim aggregates in Postgres.
// Row-not-found is translated to the application's NotFound error here so
// callers never see pgx sentinels.
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

// sortColumns whitelists the listing sort keys. Anything else falls back
// to id so request input never reaches the ORDER BY clause.
var sortColumns = map[string]string{
	"id":           "id",
	"policyNumber": "policy_number",
	"customerName": "customer_name",
	"startDate":    "start_date",
	"endDate":      "end_date",
	"status":       "status",
	"createdAt":    "created_at",
}

// SortColumn resolves an exposed sort key to its column, defaulting to id.
func SortColumn(sort string) (string, bool) {
	col, ok := sortColumns[sort]
	if !ok {
		return "id", false
	}
	return col, true
}

type PoliciesRepo struct {
	pool *pgxpool.Pool
}

func NewPoliciesRepo(pool *pgxpool.Pool) *PoliciesRepo {
	return &PoliciesRepo{pool: pool}
}

const policyColumns = `id, policy_number, customer_name, customer_email, policy_type,
		coverage_amount, premium_amount, start_date, end_date, status, created_at, updated_at`

// Insert persists a new policy and assigns its business number from the
// generated id, in one transaction.
func (r *PoliciesRepo) Insert(ctx context.Context, p *domain.Policy) error {
	now := time.Now().UTC()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO policies (policy_number, customer_name, customer_email, policy_type,
			coverage_amount, premium_amount, start_date, end_date, status, created_at, updated_at)
		VALUES ('', $1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`, p.CustomerName, p.CustomerEmail, p.PolicyType, p.CoverageAmount, p.PremiumAmount,
		p.StartDate, p.EndDate, p.Status, now).
		Scan(&p.ID)
	if err != nil {
		return err
	}

	p.PolicyNumber = domain.GeneratePolicyNumber(p.ID, now)
	if _, err := tx.Exec(ctx, `
		UPDATE policies SET policy_number = $1 WHERE id = $2
	`, p.PolicyNumber, p.ID); err != nil {
		return err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return tx.Commit(ctx)
}

func (r *PoliciesRepo) FindByID(ctx context.Context, id int64) (domain.Policy, error) {
	var p domain.Policy
	err := r.pool.QueryRow(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE id = $1
	`, id).
		Scan(&p.ID, &p.PolicyNumber, &p.CustomerName, &p.CustomerEmail, &p.PolicyType,
			&p.CoverageAmount, &p.PremiumAmount, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Policy{}, apperr.NotFound(fmt.Sprintf("policy %d not found", id))
	}
	return p, err
}

// Update saves the mutable lifecycle fields after a renew or cancel.
func (r *PoliciesRepo) Update(ctx context.Context, p *domain.Policy) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE policies
		SET start_date = $1, end_date = $2, status = $3, updated_at = $4
		WHERE id = $5
	`, p.StartDate, p.EndDate, p.Status, now, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("policy %d not found", p.ID))
	}
	p.UpdatedAt = now
	return nil
}

// FindPage returns one listing page plus the total row count.
func (r *PoliciesRepo) FindPage(ctx context.Context, page, size int, sort string) (domain.PolicyPage, error) {
	col, _ := SortColumn(sort)
	result := domain.PolicyPage{Items: []domain.Policy{}, Page: page, Size: size, Sort: sort}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM policies`).Scan(&result.TotalElements); err != nil {
		return domain.PolicyPage{}, err
	}
	result.TotalPages = int((result.TotalElements + int64(size) - 1) / int64(size))

	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		ORDER BY `+col+`
		LIMIT $1 OFFSET $2
	`, size, page*size)
	if err != nil {
		return domain.PolicyPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.PolicyNumber, &p.CustomerName, &p.CustomerEmail, &p.PolicyType,
			&p.CoverageAmount, &p.PremiumAmount, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return domain.PolicyPage{}, err
		}
		result.Items = append(result.Items, p)
	}
	return result, rows.Err()
}
