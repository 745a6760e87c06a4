package app

import (
	"context"
	"time"

	"math-game-service/internal/domain"
)

// RoomStore abstracts room/game persistence (in-memory, Postgres).
// Implementations must make the check-then-act operations atomic:
// AddMember serializes the capacity check, InsertQuestionAt is
// first-writer-wins per (room, seq), CreateRoomWithToken is
// first-writer-wins per rematch token (losers get the winner's room
// and created=false), MarkReported counts each user once, and
// Finalize succeeds for exactly one caller per room.
type RoomStore interface {
	CreateRoom(ctx context.Context, room domain.Room, creatorID string) error
	CreateRoomWithToken(ctx context.Context, room domain.Room, creatorID string) (domain.Room, bool, error)
	Room(ctx context.Context, roomID string) (domain.Room, error)
	RoomByRematchToken(ctx context.Context, token string) (domain.Room, bool, error)
	Rooms(ctx context.Context, offset, limit int) ([]domain.RoomSummary, error)

	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	Members(ctx context.Context, roomID string) ([]string, error)

	SetStarted(ctx context.Context, roomID string, at time.Time) (bool, error)

	QuestionAt(ctx context.Context, roomID string, seq int) (domain.Question, bool, error)
	InsertQuestionAt(ctx context.Context, question domain.Question) (domain.Question, error)
	QuestionOfVariant(ctx context.Context, variantID string) (domain.Question, error)

	AppendAnswer(ctx context.Context, roomID string, record domain.AnswerRecord) error
	Tally(ctx context.Context, roomID, userID string) (domain.Tally, error)

	MarkReported(ctx context.Context, roomID, userID string) (already bool, reported int, err error)
	Finalize(ctx context.Context, roomID string, at time.Time) (bool, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// UserStore is the slice of the user record the room service touches
// when applying end-of-game rewards.
type UserStore interface {
	User(ctx context.Context, id string) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
}

// PresenceStore publishes best-effort player position markers.
type PresenceStore interface {
	SetPosition(ctx context.Context, userID string, pos domain.Position) error
}

// LeaderboardStore serves the cumulative-score leaderboard.
type LeaderboardStore interface {
	TopUsers(ctx context.Context, n int) ([]domain.TopUser, error)
}

// NopPresence discards position updates; used when redis is not configured.
type NopPresence struct{}

func (NopPresence) SetPosition(context.Context, string, domain.Position) error { return nil }
