package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/plantpulse/plant-server/internal/database"
)

var (
	ErrCredentialIndex = errors.New("profile: credential index out of range")
	ErrNotFound        = errors.New("profile: not found")
)

// Store persists user profiles in Postgres. All writes are merge-style:
// unrelated fields are never overwritten.
type Store struct {
	db *database.DB
}

// NewStore creates a profile store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a profile. Returns nil, nil when the user has no profile yet.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT user_id, plant_name, planting_date, credentials,
		       selected_credential, alert_email, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	var p Profile
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.PlantName,
		&p.PlantingDate,
		pq.Array(&p.Credentials),
		&p.SelectedCredential,
		&p.AlertEmail,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// Update applies a merge-style patch, creating the profile row on first use.
func (s *Store) Update(ctx context.Context, userID string, patch Patch) error {
	query := `
		INSERT INTO profiles (user_id, plant_name, planting_date, alert_email)
		VALUES ($1, COALESCE($2, ''), $3, COALESCE($4, ''))
		ON CONFLICT (user_id) DO UPDATE
		SET plant_name = COALESCE($2, profiles.plant_name),
		    planting_date = COALESCE($3, profiles.planting_date),
		    alert_email = COALESCE($4, profiles.alert_email),
		    updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query, userID, patch.PlantName, patch.PlantingDate, patch.AlertEmail)
	return err
}

// ClearPlantingDate removes the planting date. A nil Patch field means
// "leave unchanged", so clearing needs its own operation.
func (s *Store) ClearPlantingDate(ctx context.Context, userID string) error {
	query := `
		UPDATE profiles
		SET planting_date = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1
	`
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

// AddCredential appends a device token to the user's ordered list, creating
// the profile row on first use.
func (s *Store) AddCredential(ctx context.Context, userID, credential string) error {
	query := `
		INSERT INTO profiles (user_id, credentials)
		VALUES ($1, ARRAY[$2])
		ON CONFLICT (user_id) DO UPDATE
		SET credentials = array_append(profiles.credentials, $2),
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query, userID, credential)
	return err
}

// RemoveCredential deletes a token by index, shifting the selected index so
// it keeps pointing at the same token where possible.
func (s *Store) RemoveCredential(ctx context.Context, userID string, index int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var credentials []string
	var selected int
	err = tx.QueryRowContext(ctx,
		`SELECT credentials, selected_credential FROM profiles WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(pq.Array(&credentials), &selected)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if index < 0 || index >= len(credentials) {
		return ErrCredentialIndex
	}

	credentials = append(credentials[:index], credentials[index+1:]...)
	switch {
	case selected > index:
		selected--
	case selected == index && selected >= len(credentials) && selected > 0:
		selected = len(credentials) - 1
	}
	if selected < 0 {
		selected = 0
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE profiles
		 SET credentials = $2, selected_credential = $3, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = $1`,
		userID, pq.Array(credentials), selected,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SelectCredential marks one token as active for polling.
func (s *Store) SelectCredential(ctx context.Context, userID string, index int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE profiles
		 SET selected_credential = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = $1 AND $2 >= 0 AND $2 < cardinality(credentials)`,
		userID, index,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialIndex
	}
	return nil
}
