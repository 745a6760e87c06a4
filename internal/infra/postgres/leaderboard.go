package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"math-game-service/internal/domain"
	"math-game-service/internal/scoring"
)

// Leaderboard serves the cumulative-score ranking off a pgx pool; the
// lobby polls it often enough to keep the hot read path off the ORM.
type Leaderboard struct {
	pool *pgxpool.Pool
}

func NewLeaderboard(pool *pgxpool.Pool) *Leaderboard {
	return &Leaderboard{pool: pool}
}

func (l *Leaderboard) TopUsers(ctx context.Context, n int) ([]domain.TopUser, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, name, score FROM users ORDER BY score DESC, id ASC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("query top users: %w", err)
	}
	defer rows.Close()

	var top []domain.TopUser
	for rows.Next() {
		var u domain.TopUser
		if err := rows.Scan(&u.UserID, &u.Name, &u.Score); err != nil {
			return nil, fmt.Errorf("scan top user: %w", err)
		}
		_, u.LevelName = scoring.Level(u.Score)
		top = append(top, u)
	}
	return top, rows.Err()
}
