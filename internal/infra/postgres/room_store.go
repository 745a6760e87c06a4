package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"math-game-service/internal/domain"
)

// RoomStore is the bun-backed implementation of app.RoomStore. The
// check-then-act sequences run inside transactions: the capacity check
// takes a row lock on the room, question inserts lean on the unique
// (room_id, seq) index, and finalization is a conditional update that
// only one caller can win.
type RoomStore struct {
	db *bun.DB
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room, creatorID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := roomRow{
			ID:           room.ID,
			Tier:         int(room.Tier),
			Capacity:     room.Capacity,
			CreatorID:    room.CreatorID,
			RematchToken: room.RematchToken,
			CreatedAt:    room.CreatedAt,
			StartedAt:    room.StartedAt,
			EndedAt:      room.EndedAt,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		member := membershipRow{RoomID: room.ID, UserID: creatorID}
		if _, err := tx.NewInsert().Model(&member).Exec(ctx); err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		return nil
	})
}

// CreateRoomWithToken inserts the room unless a live room already
// carries its rematch token, leaning on the unique rooms_rematch_token
// index. The loser re-reads and returns the winner's row with
// created=false.
func (s *RoomStore) CreateRoomWithToken(ctx context.Context, room domain.Room, creatorID string) (domain.Room, bool, error) {
	var out domain.Room
	created := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := roomRow{
			ID:           room.ID,
			Tier:         int(room.Tier),
			Capacity:     room.Capacity,
			CreatorID:    room.CreatorID,
			RematchToken: room.RematchToken,
			CreatedAt:    room.CreatedAt,
		}
		res, err := tx.NewInsert().Model(&row).
			On("CONFLICT (rematch_token) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert rematch room: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var winner roomRow
			err := tx.NewSelect().Model(&winner).
				Where("r.rematch_token = ?", room.RematchToken).Scan(ctx)
			if err != nil {
				return fmt.Errorf("reread rematch room: %w", err)
			}
			out = winner.toDomain()
			return nil
		}
		member := membershipRow{RoomID: room.ID, UserID: creatorID}
		if _, err := tx.NewInsert().Model(&member).Exec(ctx); err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		out = room
		created = true
		return nil
	})
	if err != nil {
		return domain.Room{}, false, err
	}
	return out, created, nil
}

func (s *RoomStore) Room(ctx context.Context, roomID string) (domain.Room, error) {
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("r.id = ?", roomID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("select room: %w", err)
	}
	return row.toDomain(), nil
}

func (s *RoomStore) RoomByRematchToken(ctx context.Context, token string) (domain.Room, bool, error) {
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("r.rematch_token = ?", token).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, false, nil
	}
	if err != nil {
		return domain.Room{}, false, fmt.Errorf("select room by token: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *RoomStore) Rooms(ctx context.Context, offset, limit int) ([]domain.RoomSummary, error) {
	var rows []struct {
		ID          string `bun:"id"`
		Tier        int    `bun:"tier"`
		Capacity    int    `bun:"capacity"`
		MemberCount int    `bun:"member_count"`
		Started     bool   `bun:"started"`
	}
	err := s.db.NewRaw(`
		SELECT r.id, r.tier, r.capacity,
		       r.started_at IS NOT NULL AS started,
		       (SELECT count(*) FROM memberships m WHERE m.room_id = r.id) AS member_count
		FROM rooms r
		ORDER BY r.created_at DESC
		OFFSET ? LIMIT ?`, offset, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	summaries := make([]domain.RoomSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, domain.RoomSummary{
			ID:          r.ID,
			Tier:        domain.Tier(r.Tier).String(),
			Capacity:    r.Capacity,
			MemberCount: r.MemberCount,
			Started:     r.Started,
		})
	}
	return summaries, nil
}

func (s *RoomStore) AddMember(ctx context.Context, roomID, userID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var room roomRow
		err := tx.NewSelect().Model(&room).Where("r.id = ?", roomID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("lock room: %w", err)
		}

		exists, err := tx.NewSelect().Model((*membershipRow)(nil)).
			Where("room_id = ? AND user_id = ?", roomID, userID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if exists {
			return nil
		}

		count, err := tx.NewSelect().Model((*membershipRow)(nil)).
			Where("room_id = ?", roomID).Count(ctx)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if count >= room.Capacity {
			return domain.ErrRoomFull
		}

		member := membershipRow{RoomID: roomID, UserID: userID}
		if _, err := tx.NewInsert().Model(&member).Exec(ctx); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		return nil
	})
}

func (s *RoomStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	_, err := s.db.NewDelete().Model((*membershipRow)(nil)).
		Where("room_id = ? AND user_id = ?", roomID, userID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

func (s *RoomStore) Members(ctx context.Context, roomID string) ([]string, error) {
	var members []string
	err := s.db.NewSelect().Model((*membershipRow)(nil)).
		Column("user_id").
		Where("room_id = ?", roomID).
		Order("user_id ASC").
		Scan(ctx, &members)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *RoomStore) SetStarted(ctx context.Context, roomID string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*roomRow)(nil)).
		Set("started_at = ?", at).
		Where("id = ? AND started_at IS NULL", roomID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("set started: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RoomStore) QuestionAt(ctx context.Context, roomID string, seq int) (domain.Question, bool, error) {
	var q questionRow
	err := s.db.NewSelect().Model(&q).
		Where("q.room_id = ? AND q.seq = ?", roomID, seq).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, false, nil
	}
	if err != nil {
		return domain.Question{}, false, fmt.Errorf("select question: %w", err)
	}
	variants, err := s.variantsOf(ctx, s.db, q.ID)
	if err != nil {
		return domain.Question{}, false, err
	}
	return questionToDomain(q, variants), true, nil
}

// InsertQuestionAt persists a freshly synthesized question at its
// sequence position. When another writer got there first the insert is
// a silent no-op and the winner's row is returned instead.
func (s *RoomStore) InsertQuestionAt(ctx context.Context, question domain.Question) (domain.Question, error) {
	var out domain.Question
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := questionRow{
			ID:        question.ID,
			RoomID:    question.RoomID,
			Seq:       question.Seq,
			Text:      question.Text,
			CreatedAt: question.CreatedAt,
		}
		res, err := tx.NewInsert().Model(&row).
			On("CONFLICT (room_id, seq) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var winner questionRow
			err := tx.NewSelect().Model(&winner).
				Where("q.room_id = ? AND q.seq = ?", question.RoomID, question.Seq).Scan(ctx)
			if err != nil {
				return fmt.Errorf("reread winning question: %w", err)
			}
			variants, err := s.variantsOf(ctx, tx, winner.ID)
			if err != nil {
				return err
			}
			out = questionToDomain(winner, variants)
			return nil
		}

		variants := make([]variantRow, 0, len(question.Variants))
		for _, v := range question.Variants {
			variants = append(variants, variantRow{
				ID:         v.ID,
				QuestionID: v.QuestionID,
				Text:       v.Text,
				Correct:    v.Correct,
			})
		}
		if _, err := tx.NewInsert().Model(&variants).Exec(ctx); err != nil {
			return fmt.Errorf("insert variants: %w", err)
		}
		out = question
		return nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return out, nil
}

func (s *RoomStore) QuestionOfVariant(ctx context.Context, variantID string) (domain.Question, error) {
	var v variantRow
	err := s.db.NewSelect().Model(&v).Where("v.id = ?", variantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrVariantNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("select variant: %w", err)
	}

	var q questionRow
	err = s.db.NewSelect().Model(&q).Where("q.id = ?", v.QuestionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrVariantNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("select owning question: %w", err)
	}
	variants, err := s.variantsOf(ctx, s.db, q.ID)
	if err != nil {
		return domain.Question{}, err
	}
	return questionToDomain(q, variants), nil
}

func (s *RoomStore) AppendAnswer(ctx context.Context, roomID string, record domain.AnswerRecord) error {
	row := answerRow{
		RoomID:     roomID,
		UserID:     record.UserID,
		VariantID:  record.VariantID,
		AnsweredAt: record.AnsweredAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("append answer: %w", err)
	}
	return nil
}

func (s *RoomStore) Tally(ctx context.Context, roomID, userID string) (domain.Tally, error) {
	var tally domain.Tally
	err := s.db.NewRaw(`
		SELECT
			count(*) FILTER (WHERE v.correct)     AS correct,
			count(*) FILTER (WHERE NOT v.correct) AS wrong
		FROM answers a
		JOIN variants v ON v.id = a.variant_id
		WHERE a.room_id = ? AND a.user_id = ?`, roomID, userID).
		Scan(ctx, &tally.Correct, &tally.Wrong)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("tally answers: %w", err)
	}
	return tally, nil
}

func (s *RoomStore) MarkReported(ctx context.Context, roomID, userID string) (bool, int, error) {
	var already bool
	var reported int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := reportRow{RoomID: roomID, UserID: userID}
		res, err := tx.NewInsert().Model(&row).
			On("CONFLICT (room_id, user_id) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		already = n == 0

		reported, err = tx.NewSelect().Model((*reportRow)(nil)).
			Where("room_id = ?", roomID).Count(ctx)
		if err != nil {
			return fmt.Errorf("count reports: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return already, reported, nil
}

func (s *RoomStore) Finalize(ctx context.Context, roomID string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*roomRow)(nil)).
		Set("finalized = TRUE").
		Set("ended_at = ?", at).
		Where("id = ? AND NOT finalized", roomID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("finalize room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteRoom removes the room row; questions, variants, answers,
// memberships and reports follow via ON DELETE CASCADE.
func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.db.NewDelete().Model((*roomRow)(nil)).Where("id = ?", roomID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (s *RoomStore) variantsOf(ctx context.Context, db bun.IDB, questionID string) ([]variantRow, error) {
	var variants []variantRow
	err := db.NewSelect().Model(&variants).
		Where("v.question_id = ?", questionID).
		Order("v.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select variants: %w", err)
	}
	return variants, nil
}
