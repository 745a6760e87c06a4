package app

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"math-game-service/internal/domain"
	"math-game-service/internal/generator"
	"math-game-service/internal/life"
	"math-game-service/internal/scoring"
)

// RoomService orchestrates the room lifecycle: creation and membership,
// the shared question sequence, completion reports and the exactly-once
// finalization that applies rewards and tears the room down.
type RoomService struct {
	rooms    RoomStore
	users    UserStore
	lives    *life.Service
	presence PresenceStore
	gen      *generator.Generator
	sf       singleflight.Group
	clock    func() time.Time
}

func NewRoomService(rooms RoomStore, users UserStore, lives *life.Service, presence PresenceStore, gen *generator.Generator) *RoomService {
	if presence == nil {
		presence = NopPresence{}
	}
	return &RoomService{
		rooms:    rooms,
		users:    users,
		lives:    lives,
		presence: presence,
		gen:      gen,
		clock:    time.Now,
	}
}

// CreateRoom opens a room and joins the creator to it atomically.
func (s *RoomService) CreateRoom(ctx context.Context, creatorID string, capacity int, tier domain.Tier) (domain.Room, error) {
	if creatorID == "" {
		return domain.Room{}, domain.ErrUnauthorized
	}
	if capacity < 2 {
		return domain.Room{}, domain.ErrInvalidCapacity
	}

	room := domain.Room{
		ID:           uuid.NewString(),
		Tier:         tier,
		Capacity:     capacity,
		CreatorID:    creatorID,
		RematchToken: uuid.NewString(),
		CreatedAt:    s.clock(),
	}
	if err := s.rooms.CreateRoom(ctx, room, creatorID); err != nil {
		return domain.Room{}, err
	}
	s.setPosition(ctx, creatorID, domain.PositionAtRoom)
	return room, nil
}

// JoinRoom adds the user to the room. Joining a room the user is
// already in succeeds without a duplicate membership.
func (s *RoomService) JoinRoom(ctx context.Context, userID, roomID string) error {
	if userID == "" {
		return domain.ErrUnauthorized
	}
	if err := s.rooms.AddMember(ctx, roomID, userID); err != nil {
		return err
	}
	s.setPosition(ctx, userID, domain.PositionAtRoom)
	return nil
}

// LeaveRoom removes the membership if present; leaving a room the user
// is not in succeeds.
func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID string) error {
	if userID == "" {
		return domain.ErrUnauthorized
	}
	if err := s.rooms.RemoveMember(ctx, roomID, userID); err != nil {
		return err
	}
	s.setPosition(ctx, userID, domain.PositionOnline)
	return nil
}

// StartGame sets the room's start time once and flips all current
// members to the in-game position. Repeat calls report started=false
// but are not an error.
func (s *RoomService) StartGame(ctx context.Context, userID, roomID string) (bool, error) {
	if userID == "" {
		return false, domain.ErrUnauthorized
	}
	started, err := s.rooms.SetStarted(ctx, roomID, s.clock())
	if err != nil {
		return false, err
	}
	if started {
		members, err := s.rooms.Members(ctx, roomID)
		if err != nil {
			return false, err
		}
		for _, m := range members {
			s.setPosition(ctx, m, domain.PositionAtGame)
		}
	}
	return started, nil
}

// GetNextQuestion advances the caller through the room's shared
// question sequence. For seq > 1 it first records the caller's answer
// to the previous question and computes the running feedback score. The
// question at the requested position is reused when it already exists;
// otherwise it is synthesized once, with racing members observing the
// first writer's row.
func (s *RoomService) GetNextQuestion(ctx context.Context, userID, roomID string, seq int, previousVariantID string) (domain.QuestionView, error) {
	if userID == "" {
		return domain.QuestionView{}, domain.ErrUnauthorized
	}
	if seq < 1 {
		return domain.QuestionView{}, domain.ErrQuestionNotFound
	}
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		return domain.QuestionView{}, err
	}

	var view domain.QuestionView
	if seq > 1 {
		prev, err := s.rooms.QuestionOfVariant(ctx, previousVariantID)
		if err != nil {
			return domain.QuestionView{}, err
		}
		if prev.RoomID != roomID {
			return domain.QuestionView{}, domain.ErrVariantNotFound
		}
		record := domain.AnswerRecord{UserID: userID, VariantID: previousVariantID, AnsweredAt: s.clock()}
		if err := s.rooms.AppendAnswer(ctx, roomID, record); err != nil {
			return domain.QuestionView{}, err
		}

		tally, err := s.rooms.Tally(ctx, roomID, userID)
		if err != nil {
			return domain.QuestionView{}, err
		}
		view.RunningScore = scoring.RoundScore(tally.Correct, tally.Wrong, room.Tier, room.Capacity)

		if correct, ok := prev.CorrectVariant(); ok {
			view.BeforeCorrectVariantID = correct.ID
		}
	}

	question, err := s.questionAt(ctx, room, seq)
	if err != nil {
		return domain.QuestionView{}, err
	}

	view.QuestionID = question.ID
	view.Text = question.Text
	view.Variants = make([]domain.VariantView, 0, len(question.Variants))
	for _, v := range question.Variants {
		view.Variants = append(view.Variants, domain.VariantView{ID: v.ID, Text: v.Text})
	}
	if correct, ok := question.CorrectVariant(); ok {
		view.CurrentCorrectVariantID = correct.ID
	}
	return view, nil
}

// questionAt returns the question at seq, synthesizing it on first
// access. Synthesis is deduped in-process per (room, seq); the store's
// first-writer-wins insert covers racing processes.
func (s *RoomService) questionAt(ctx context.Context, room domain.Room, seq int) (domain.Question, error) {
	if q, ok, err := s.rooms.QuestionAt(ctx, room.ID, seq); err != nil {
		return domain.Question{}, err
	} else if ok {
		return q, nil
	}

	key := room.ID + ":" + strconv.Itoa(seq)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// The flight's result is shared by every waiter, so it must not
		// die with the first caller's context.
		ctx := context.WithoutCancel(ctx)
		if q, ok, err := s.rooms.QuestionAt(ctx, room.ID, seq); err != nil {
			return nil, err
		} else if ok {
			return q, nil
		}

		problem := s.gen.Generate(room.Tier)
		question := domain.Question{
			ID:        uuid.NewString(),
			RoomID:    room.ID,
			Seq:       seq,
			Text:      problem.Text,
			CreatedAt: s.clock(),
		}
		for _, opt := range problem.Options {
			question.Variants = append(question.Variants, domain.Variant{
				ID:         uuid.NewString(),
				QuestionID: question.ID,
				Text:       opt.Text,
				Correct:    opt.Correct,
			})
		}
		return s.rooms.InsertQuestionAt(ctx, question)
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

// ReportGameEnd records the caller's completion and returns the full
// ranked tally. Reporting twice is a no-op returning the same report.
// The report that completes the member count finalizes the room:
// winners (everyone matching the top round score) bank their score,
// everyone else loses a life point, and the room and its questions are
// destroyed. Finalization happens exactly once even under concurrent
// last reports.
func (s *RoomService) ReportGameEnd(ctx context.Context, userID, roomID string) (domain.EndedGameReport, error) {
	if userID == "" {
		return domain.EndedGameReport{}, domain.ErrUnauthorized
	}
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		return domain.EndedGameReport{}, err
	}
	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		return domain.EndedGameReport{}, err
	}
	// Only members count toward the reporter total; a stranger's report
	// must never trigger finalization.
	if !contains(members, userID) {
		return domain.EndedGameReport{}, domain.ErrUnauthorized
	}

	results := make([]scoring.PlayerResult, 0, len(members))
	for _, m := range members {
		tally, err := s.rooms.Tally(ctx, roomID, m)
		if err != nil {
			return domain.EndedGameReport{}, err
		}
		results = append(results, scoring.PlayerResult{
			UserID:  m,
			Correct: tally.Correct,
			Wrong:   tally.Wrong,
			Score:   scoring.RoundScore(tally.Correct, tally.Wrong, room.Tier, room.Capacity),
		})
	}
	scoring.Rank(results)

	report := domain.EndedGameReport{RematchToken: room.RematchToken}
	for _, r := range results {
		entry := domain.EndedGameEntry{
			UserID:  r.UserID,
			Correct: r.Correct,
			Wrong:   r.Wrong,
			Score:   r.Score,
		}
		if u, err := s.users.User(ctx, r.UserID); err == nil {
			entry.Name = u.Name
			_, entry.LevelName = scoring.Level(u.Score + r.Score)
		} else {
			_, entry.LevelName = scoring.Level(r.Score)
		}
		report.Entries = append(report.Entries, entry)
	}

	already, reported, err := s.rooms.MarkReported(ctx, roomID, userID)
	if err != nil {
		return domain.EndedGameReport{}, err
	}
	if already || reported < len(members) || len(members) == 0 {
		return report, nil
	}

	won, err := s.rooms.Finalize(ctx, roomID, s.clock())
	if err != nil {
		return domain.EndedGameReport{}, err
	}
	if !won {
		return report, nil
	}

	if err := s.applyOutcome(ctx, results); err != nil {
		return domain.EndedGameReport{}, err
	}
	for _, m := range members {
		s.setPosition(ctx, m, domain.PositionOnline)
	}
	if err := s.rooms.DeleteRoom(ctx, roomID); err != nil {
		return domain.EndedGameReport{}, err
	}
	return report, nil
}

// applyOutcome banks the round score for every winner and charges a
// life point to everyone else.
func (s *RoomService) applyOutcome(ctx context.Context, results []scoring.PlayerResult) error {
	max := scoring.MaxScore(results)
	for _, r := range results {
		if r.Score == max {
			u, err := s.users.User(ctx, r.UserID)
			if err != nil {
				return err
			}
			u.Score += r.Score
			u.Level, _ = scoring.Level(u.Score)
			if err := s.users.SaveUser(ctx, u); err != nil {
				return err
			}
		} else {
			if err := s.lives.Penalize(ctx, r.UserID); err != nil {
				return err
			}
		}
	}
	return nil
}

// RematchPlay moves a finished room's participant into the successor
// room identified by the rematch token. The first caller creates the
// room and carries the token over; later callers join it.
func (s *RoomService) RematchPlay(ctx context.Context, userID string, capacity int, tier domain.Tier, token string) (string, error) {
	if userID == "" {
		return "", domain.ErrUnauthorized
	}
	if token == "" {
		return "", domain.ErrRoomNotFound
	}

	if room, ok, err := s.rooms.RoomByRematchToken(ctx, token); err != nil {
		return "", err
	} else if ok {
		if err := s.rooms.AddMember(ctx, room.ID, userID); err != nil {
			return "", err
		}
		s.setPosition(ctx, userID, domain.PositionAtRoom)
		return room.ID, nil
	}

	if capacity < 2 {
		return "", domain.ErrInvalidCapacity
	}
	room := domain.Room{
		ID:           uuid.NewString(),
		Tier:         tier,
		Capacity:     capacity,
		CreatorID:    userID,
		RematchToken: token,
		CreatedAt:    s.clock(),
	}
	// Token-keyed creation is first-writer-wins: a concurrent first
	// caller may have created the successor room between the lookup
	// above and here, in which case we join it instead.
	winner, created, err := s.rooms.CreateRoomWithToken(ctx, room, userID)
	if err != nil {
		return "", err
	}
	if !created {
		if err := s.rooms.AddMember(ctx, winner.ID, userID); err != nil {
			return "", err
		}
	}
	s.setPosition(ctx, userID, domain.PositionAtRoom)
	return winner.ID, nil
}

// Rooms lists rooms for the lobby, newest first.
func (s *RoomService) Rooms(ctx context.Context, page, count int) ([]domain.RoomSummary, error) {
	if page < 1 {
		page = 1
	}
	if count < 1 || count > 100 {
		count = 20
	}
	return s.rooms.Rooms(ctx, (page-1)*count, count)
}

// RoomDetails returns one room's summary view.
func (s *RoomService) RoomDetails(ctx context.Context, roomID string) (domain.RoomSummary, error) {
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		return domain.RoomSummary{}, err
	}
	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		return domain.RoomSummary{}, err
	}
	return domain.RoomSummary{
		ID:          room.ID,
		Tier:        room.Tier.String(),
		Capacity:    room.Capacity,
		MemberCount: len(members),
		Started:     room.Started(),
	}, nil
}

func contains(members []string, userID string) bool {
	for _, m := range members {
		if m == userID {
			return true
		}
	}
	return false
}

// setPosition publishes a presence marker; failures are logged, never
// surfaced, matching the marker's best-effort contract.
func (s *RoomService) setPosition(ctx context.Context, userID string, pos domain.Position) {
	if err := s.presence.SetPosition(ctx, userID, pos); err != nil {
		log.Printf("presence: set %s=%s: %v", userID, pos, err)
	}
}
