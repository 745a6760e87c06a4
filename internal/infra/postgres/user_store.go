package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"math-game-service/internal/domain"
)

// UserStore persists the life/score slice of user records in Postgres.
type UserStore struct {
	db *bun.DB
}

func NewUserStore(db *bun.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) User(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	err := s.db.NewSelect().Model(&row).Where("u.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return row.toDomain(), nil
}

func (s *UserStore) SaveUser(ctx context.Context, user domain.User) error {
	row := userRowFromDomain(user)
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("life = EXCLUDED.life").
		Set("regen_debt = EXCLUDED.regen_debt").
		Set("last_adjusted = EXCLUDED.last_adjusted").
		Set("score = EXCLUDED.score").
		Set("level = EXCLUDED.level").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *UserStore) Users(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := s.db.NewSelect().Model(&rows).Order("u.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}
