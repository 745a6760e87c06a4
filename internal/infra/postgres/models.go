package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"math-game-service/internal/domain"
)

type roomRow struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID           string     `bun:"id,pk"`
	Tier         int        `bun:"tier"`
	Capacity     int        `bun:"capacity"`
	CreatorID    string     `bun:"creator_id"`
	RematchToken string     `bun:"rematch_token"`
	CreatedAt    time.Time  `bun:"created_at"`
	StartedAt    *time.Time `bun:"started_at"`
	EndedAt      *time.Time `bun:"ended_at"`
	Finalized    bool       `bun:"finalized"`
}

func (r roomRow) toDomain() domain.Room {
	return domain.Room{
		ID:           r.ID,
		Tier:         domain.Tier(r.Tier),
		Capacity:     r.Capacity,
		CreatorID:    r.CreatorID,
		RematchToken: r.RematchToken,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
	}
}

type membershipRow struct {
	bun.BaseModel `bun:"table:memberships,alias:m"`

	RoomID string `bun:"room_id,pk"`
	UserID string `bun:"user_id,pk"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID        string    `bun:"id,pk"`
	RoomID    string    `bun:"room_id"`
	Seq       int       `bun:"seq"`
	Text      string    `bun:"text"`
	CreatedAt time.Time `bun:"created_at"`
}

type variantRow struct {
	bun.BaseModel `bun:"table:variants,alias:v"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id"`
	Text       string `bun:"text"`
	Correct    bool   `bun:"correct"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID         int64     `bun:"id,pk,autoincrement"`
	RoomID     string    `bun:"room_id"`
	UserID     string    `bun:"user_id"`
	VariantID  string    `bun:"variant_id"`
	AnsweredAt time.Time `bun:"answered_at"`
}

type reportRow struct {
	bun.BaseModel `bun:"table:completion_reports,alias:cr"`

	RoomID string `bun:"room_id,pk"`
	UserID string `bun:"user_id,pk"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name"`
	Life         int       `bun:"life"`
	RegenDebt    float64   `bun:"regen_debt"`
	LastAdjusted time.Time `bun:"last_adjusted"`
	Score        int       `bun:"score"`
	Level        int       `bun:"level"`
}

func (u userRow) toDomain() domain.User {
	return domain.User{
		ID:           u.ID,
		Name:         u.Name,
		Life:         u.Life,
		RegenDebt:    u.RegenDebt,
		LastAdjusted: u.LastAdjusted,
		Score:        u.Score,
		Level:        u.Level,
	}
}

func userRowFromDomain(u domain.User) userRow {
	return userRow{
		ID:           u.ID,
		Name:         u.Name,
		Life:         u.Life,
		RegenDebt:    u.RegenDebt,
		LastAdjusted: u.LastAdjusted,
		Score:        u.Score,
		Level:        u.Level,
	}
}

func questionToDomain(q questionRow, variants []variantRow) domain.Question {
	out := domain.Question{
		ID:        q.ID,
		RoomID:    q.RoomID,
		Seq:       q.Seq,
		Text:      q.Text,
		CreatedAt: q.CreatedAt,
	}
	for _, v := range variants {
		out.Variants = append(out.Variants, domain.Variant{
			ID:         v.ID,
			QuestionID: v.QuestionID,
			Text:       v.Text,
			Correct:    v.Correct,
		})
	}
	return out
}
