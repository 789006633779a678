package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// CreateUser registers a new user under an unused power-of-two buy index.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if !user.BuyIndex.Valid() {
		return fmt.Errorf("buy index %d is not a single bit flag", user.BuyIndex)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (buy_index, name, username) VALUES (?, ?, ?)",
		user.BuyIndex, user.Name, user.Username,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their buy index.
func (s *SQLiteStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		"SELECT buy_index, name, username FROM users WHERE buy_index = ?",
		id,
	).Scan(&user.BuyIndex, &user.Name, &user.Username)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns all registered users ordered by buy index.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT buy_index, name, username FROM users ORDER BY buy_index",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.BuyIndex, &user.Name, &user.Username); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
