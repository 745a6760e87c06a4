package domain

import (
	"fmt"
	"time"
)

// Tier controls operand ranges during question generation and the score
// multiplier applied at the end of a round.
type Tier int

const (
	TierEasy Tier = iota
	TierNormal
	TierHard
	TierExpert
)

func (t Tier) String() string {
	switch t {
	case TierEasy:
		return "easy"
	case TierNormal:
		return "normal"
	case TierHard:
		return "hard"
	case TierExpert:
		return "expert"
	}
	return "unknown"
}

// ParseTier maps a wire-level tier name to a Tier.
func ParseTier(raw string) (Tier, error) {
	switch raw {
	case "easy":
		return TierEasy, nil
	case "normal":
		return TierNormal, nil
	case "hard":
		return TierHard, nil
	case "expert":
		return TierExpert, nil
	}
	return TierEasy, fmt.Errorf("unknown tier %q", raw)
}

// Position marks where a player currently is, for presence display.
type Position string

const (
	PositionOnline Position = "online"
	PositionAtRoom Position = "atRoom"
	PositionAtGame Position = "atGame"
)

// Room is a bounded group session in which members answer a shared
// question sequence. StartedAt is set at most once; a room is destroyed
// exactly once, after every member has reported completion.
type Room struct {
	ID           string
	Tier         Tier
	Capacity     int
	CreatorID    string
	RematchToken string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
}

// Started reports whether the game in this room has begun.
func (r Room) Started() bool {
	return r.StartedAt != nil
}

// Question is one arithmetic problem owned by a room. Seq is its
// 1-based position in the room's shared sequence. Exactly one of its
// variants is correct.
type Question struct {
	ID        string
	RoomID    string
	Seq       int
	Text      string
	CreatedAt time.Time
	Variants  []Variant
}

// CorrectVariant returns the single correct variant of the question.
func (q Question) CorrectVariant() (Variant, bool) {
	for _, v := range q.Variants {
		if v.Correct {
			return v, true
		}
	}
	return Variant{}, false
}

// Variant is one of the four answer options of a question.
type Variant struct {
	ID         string
	QuestionID string
	Text       string
	Correct    bool
}

// AnswerRecord is an append-only log entry of a user's choice. Records
// live until their room is torn down.
type AnswerRecord struct {
	UserID     string
	VariantID  string
	AnsweredAt time.Time
}

// Tally is a user's raw answer count for one room.
type Tally struct {
	Correct int
	Wrong   int
}

// User carries the life and progression state the game core reads and
// writes. Registration and credentials live outside this service.
type User struct {
	ID           string
	Name         string
	Life         int
	RegenDebt    float64 // minutes of progress toward the next life point
	LastAdjusted time.Time
	Score        int
	Level        int
}

// QuestionView is what a player sees when advancing the sequence.
type QuestionView struct {
	QuestionID              string        `json:"questionId"`
	Text                    string        `json:"text"`
	Variants                []VariantView `json:"variants"`
	BeforeCorrectVariantID  string        `json:"beforeCorrectVariantId,omitempty"`
	CurrentCorrectVariantID string        `json:"currentCorrectVariantId"`
	RunningScore            int           `json:"runningScore"`
}

// VariantView hides the correct flag from the answer options.
type VariantView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// EndedGameEntry is one member's line in the final ranking.
type EndedGameEntry struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Correct   int    `json:"correctCount"`
	Wrong     int    `json:"wrongCount"`
	Score     int    `json:"score"`
	LevelName string `json:"levelName"`
}

// EndedGameReport is returned from every completion report; the ranking
// is identical for all reporters of one room.
type EndedGameReport struct {
	Entries      []EndedGameEntry `json:"entries"`
	RematchToken string           `json:"rematchToken"`
}

// RoomSummary is a listing/detail view of a room.
type RoomSummary struct {
	ID          string `json:"id"`
	Tier        string `json:"tier"`
	Capacity    int    `json:"capacity"`
	MemberCount int    `json:"memberCount"`
	Started     bool   `json:"started"`
}

// TopUser is one leaderboard line.
type TopUser struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	LevelName string `json:"levelName"`
}
