package business

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier is the subset of pgxpool.Pool the repository needs,
// extracted so tests can substitute pgxmock.
type PgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores business profiles in the relational database.
type PostgresRepository struct {
	pool PgxQuerier
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("business: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// NewPostgresRepositoryWithQuerier wires an arbitrary querier, used by
// tests.
func NewPostgresRepositoryWithQuerier(q PgxQuerier) *PostgresRepository {
	if q == nil {
		panic("business: querier required")
	}
	return &PostgresRepository{pool: q}
}

const profileColumns = `
	id, account_id, company_name, business_type, business_description,
	opening_hours, address, phone, delivery_available, delivery_fee_cents,
	groq_api_key, notification_email, welcome_message, default_message,
	transfer_message, transfer_keywords, bot_personality, created_at, updated_at`

// GetByAccountID loads the profile row for an account.
func (r *PostgresRepository) GetByAccountID(ctx context.Context, accountID string) (*Profile, error) {
	query := `SELECT` + profileColumns + `
		FROM business_profiles
		WHERE account_id = $1`
	return r.scanProfile(r.pool.QueryRow(ctx, query, accountID))
}

// GetByInstanceName resolves a connected instance to its tenant profile.
func (r *PostgresRepository) GetByInstanceName(ctx context.Context, instanceName string) (*Profile, error) {
	query := `SELECT` + profileColumns + `
		FROM business_profiles p
		JOIN instances i ON i.account_id = p.account_id
		WHERE i.name = $1`
	return r.scanProfile(r.pool.QueryRow(ctx, query, instanceName))
}

// ListProducts returns the product catalog for an account.
func (r *PostgresRepository) ListProducts(ctx context.Context, accountID string) ([]Product, error) {
	query := `
		SELECT id, account_id, name, description, price_cents, currency, category, image_url
		FROM products
		WHERE account_id = $1
		ORDER BY name`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("business: list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.Description,
			&p.PriceCents, &p.Currency, &p.Category, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("business: scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("business: iterate products: %w", err)
	}
	return products, nil
}

func (r *PostgresRepository) scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.AccountID, &p.CompanyName, &p.BusinessType,
		&p.BusinessDescription, &p.OpeningHours, &p.Address, &p.Phone,
		&p.DeliveryAvailable, &p.DeliveryFeeCents, &p.GroqAPIKey,
		&p.NotificationEmail, &p.WelcomeMessage, &p.DefaultMessage,
		&p.TransferMessage, &p.TransferKeywords, &p.BotPersonality,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("business: scan profile: %w", err)
	}
	return &p, nil
}
