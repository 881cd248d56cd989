package store

import (
	"context"
	"database/sql"
	"fmt"

	"spice-commerce/internal/models"
)

// GetAddressForUser retrieves an address by ID, scoped to its owner.
func (s *Store) GetAddressForUser(ctx context.Context, addressID int64, userID string) (*models.Address, error) {
	var addr models.Address
	err := s.db.GetContext(ctx, &addr,
		"SELECT * FROM addresses WHERE id = $1 AND user_id = $2", addressID, userID)
	if err == sql.ErrNoRows {
		return nil, models.ErrInvalidAddress
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// ListAddressesByUser retrieves a user's saved addresses, default first.
func (s *Store) ListAddressesByUser(ctx context.Context, userID string) ([]models.Address, error) {
	var addrs []models.Address
	err := s.db.SelectContext(ctx, &addrs,
		"SELECT * FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC", userID)
	return addrs, err
}

// CreateAddress saves a new address. When the address is flagged default, any
// previous default for the same user is unset in the same transaction.
func (s *Store) CreateAddress(ctx context.Context, addr *models.Address) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if addr.IsDefault {
		_, err = tx.ExecContext(ctx,
			"UPDATE addresses SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default",
			addr.UserID)
		if err != nil {
			return fmt.Errorf("failed to unset default address: %w", err)
		}
	}

	query := `
		INSERT INTO addresses (
			user_id, address_name, name, phone, address_line1, address_line2,
			city, state, pincode, is_default
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	row := tx.QueryRowxContext(ctx, query,
		addr.UserID, addr.AddressName, addr.Name, addr.Phone,
		addr.AddressLine1, addr.AddressLine2, addr.City, addr.State,
		addr.Pincode, addr.IsDefault)
	if err := row.Scan(&addr.ID, &addr.CreatedAt, &addr.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert address: %w", err)
	}

	return tx.Commit()
}

// SetDefaultAddress flags one address as the user's default and unsets the
// rest.
func (s *Store) SetDefaultAddress(ctx context.Context, addressID int64, userID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE addresses SET is_default = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2",
		addressID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrInvalidAddress
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE addresses SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND id <> $2 AND is_default",
		userID, addressID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteAddress removes a saved address. Orders keep their own copied
// snapshot, so deleting an address never touches order history.
func (s *Store) DeleteAddress(ctx context.Context, addressID int64, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM addresses WHERE id = $1 AND user_id = $2", addressID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrInvalidAddress
	}
	return nil
}
