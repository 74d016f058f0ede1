package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"playerfeed/internal/domain"
)

// Customer documents are stored as JSONB keyed by customerid. The column,
// not the document body, is authoritative for the id.

// CreateCustomer inserts a new customer document.
func (s *PostgresStore) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	if c.CustomerID == "" {
		return fmt.Errorf("customerid is required")
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling customer: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO customers (customerid, doc)
		VALUES ($1, $2)
	`, c.CustomerID, doc)
	if err != nil {
		return fmt.Errorf("inserting customer: %w", err)
	}
	return nil
}

// GetCustomer returns a customer by id, or (nil, nil) when unknown.
func (s *PostgresStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc FROM customers WHERE customerid = $1
	`, customerID).Scan(&doc)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying customer: %w", err)
	}

	var c domain.Customer
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling customer: %w", err)
	}
	return &c, nil
}

// ListCustomers returns all customer documents.
func (s *PostgresStore) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM customers ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying customers: %w", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning customer: %w", err)
		}
		var c domain.Customer
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling customer: %w", err)
		}
		customers = append(customers, c)
	}

	if customers == nil {
		customers = []domain.Customer{}
	}
	return customers, nil
}

// UpdateCustomer merges a partial document into an existing customer.
// Returns false when the id is unknown.
func (s *PostgresStore) UpdateCustomer(ctx context.Context, customerID string, updates json.RawMessage) (bool, error) {
	if !json.Valid(updates) {
		return false, fmt.Errorf("updates must be valid JSON")
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE customers
		SET doc = doc || $2::jsonb, updated_at = NOW()
		WHERE customerid = $1
	`, customerID, updates)
	if err != nil {
		return false, fmt.Errorf("updating customer: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// DeleteCustomer removes a customer document. Returns false when the id is unknown.
func (s *PostgresStore) DeleteCustomer(ctx context.Context, customerID string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM customers WHERE customerid = $1
	`, customerID)
	if err != nil {
		return false, fmt.Errorf("deleting customer: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
