package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"math-game-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. A single
// mutex serializes every check-then-act sequence, which is what gives
// the capacity check, first-writer-wins question insert, reporter
// counting and finalization their atomicity in this tier.
type RoomStore struct {
	mu       sync.Mutex
	rooms    map[string]*roomState
	tokens   map[string]string   // rematch token -> room ID
	variants map[string]variantRef // variant ID -> owning room/seq
	order    []string            // creation order for listing
}

type roomState struct {
	room      domain.Room
	members   map[string]struct{}
	questions map[int]domain.Question
	answers   []domain.AnswerRecord
	reported  map[string]struct{}
	finalized bool
}

type variantRef struct {
	roomID string
	seq    int
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:    make(map[string]*roomState),
		tokens:   make(map[string]string),
		variants: make(map[string]variantRef),
	}
}

func (s *RoomStore) CreateRoom(_ context.Context, room domain.Room, creatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createLocked(room, creatorID)
	return nil
}

// CreateRoomWithToken creates the room unless a live room already
// carries its rematch token; the loser gets the winner's row back.
func (s *RoomStore) CreateRoomWithToken(_ context.Context, room domain.Room, creatorID string) (domain.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roomID, ok := s.tokens[room.RematchToken]; ok {
		if st, ok := s.rooms[roomID]; ok {
			return st.room, false, nil
		}
	}
	s.createLocked(room, creatorID)
	return room, true, nil
}

func (s *RoomStore) createLocked(room domain.Room, creatorID string) {
	s.rooms[room.ID] = &roomState{
		room:      room,
		members:   map[string]struct{}{creatorID: {}},
		questions: make(map[int]domain.Question),
		reported:  make(map[string]struct{}),
	}
	s.tokens[room.RematchToken] = room.ID
	s.order = append(s.order, room.ID)
}

func (s *RoomStore) Room(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return st.room, nil
}

func (s *RoomStore) RoomByRematchToken(_ context.Context, token string) (domain.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.tokens[token]
	if !ok {
		return domain.Room{}, false, nil
	}
	st, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, false, nil
	}
	return st.room, true, nil
}

func (s *RoomStore) Rooms(_ context.Context, offset, limit int) ([]domain.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]domain.RoomSummary, 0, limit)
	for i := len(s.order) - 1 - offset; i >= 0 && len(summaries) < limit; i-- {
		st, ok := s.rooms[s.order[i]]
		if !ok {
			continue
		}
		summaries = append(summaries, domain.RoomSummary{
			ID:          st.room.ID,
			Tier:        st.room.Tier.String(),
			Capacity:    st.room.Capacity,
			MemberCount: len(st.members),
			Started:     st.room.Started(),
		})
	}
	return summaries, nil
}

func (s *RoomStore) AddMember(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, member := st.members[userID]; member {
		return nil
	}
	if len(st.members) >= st.room.Capacity {
		return domain.ErrRoomFull
	}
	st.members[userID] = struct{}{}
	return nil
}

func (s *RoomStore) RemoveMember(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.rooms[roomID]; ok {
		delete(st.members, userID)
	}
	return nil
}

func (s *RoomStore) Members(_ context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	members := make([]string, 0, len(st.members))
	for m := range st.members {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *RoomStore) SetStarted(_ context.Context, roomID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if st.room.StartedAt != nil {
		return false, nil
	}
	st.room.StartedAt = &at
	return true, nil
}

func (s *RoomStore) QuestionAt(_ context.Context, roomID string, seq int) (domain.Question, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return domain.Question{}, false, domain.ErrRoomNotFound
	}
	q, ok := st.questions[seq]
	return q, ok, nil
}

func (s *RoomStore) InsertQuestionAt(_ context.Context, question domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[question.RoomID]
	if !ok {
		return domain.Question{}, domain.ErrRoomNotFound
	}
	if existing, ok := st.questions[question.Seq]; ok {
		// First writer won; hand back its row.
		return existing, nil
	}
	st.questions[question.Seq] = question
	for _, v := range question.Variants {
		s.variants[v.ID] = variantRef{roomID: question.RoomID, seq: question.Seq}
	}
	return question, nil
}

func (s *RoomStore) QuestionOfVariant(_ context.Context, variantID string) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionOfVariantLocked(variantID)
}

func (s *RoomStore) questionOfVariantLocked(variantID string) (domain.Question, error) {
	ref, ok := s.variants[variantID]
	if !ok {
		return domain.Question{}, domain.ErrVariantNotFound
	}
	st, ok := s.rooms[ref.roomID]
	if !ok {
		return domain.Question{}, domain.ErrVariantNotFound
	}
	return st.questions[ref.seq], nil
}

func (s *RoomStore) AppendAnswer(_ context.Context, roomID string, record domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	st.answers = append(st.answers, record)
	return nil
}

func (s *RoomStore) Tally(_ context.Context, roomID, userID string) (domain.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return domain.Tally{}, domain.ErrRoomNotFound
	}
	var tally domain.Tally
	for _, rec := range st.answers {
		if rec.UserID != userID {
			continue
		}
		q, err := s.questionOfVariantLocked(rec.VariantID)
		if err != nil {
			continue
		}
		for _, v := range q.Variants {
			if v.ID == rec.VariantID {
				if v.Correct {
					tally.Correct++
				} else {
					tally.Wrong++
				}
				break
			}
		}
	}
	return tally, nil
}

func (s *RoomStore) MarkReported(_ context.Context, roomID, userID string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return false, 0, domain.ErrRoomNotFound
	}
	if _, seen := st.reported[userID]; seen {
		return true, len(st.reported), nil
	}
	st.reported[userID] = struct{}{}
	return false, len(st.reported), nil
}

func (s *RoomStore) Finalize(_ context.Context, roomID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if st.finalized {
		return false, nil
	}
	st.finalized = true
	st.room.EndedAt = &at
	return true, nil
}

func (s *RoomStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	for _, q := range st.questions {
		for _, v := range q.Variants {
			delete(s.variants, v.ID)
		}
	}
	delete(s.tokens, st.room.RematchToken)
	delete(s.rooms, roomID)
	return nil
}
