// Package life owns the capped life resource: time-based regeneration,
// manual boosts and the loss penalty. Regeneration progress is carried
// as fractional minutes in RegenDebt so whole life units are never
// double-counted or dropped between recomputations.
package life

import (
	"context"
	"time"

	"math-game-service/internal/domain"
)

// MaxLife is the regeneration cap.
const MaxLife = 10

// DefaultUnit is how long one life point takes to regenerate.
const DefaultUnit = 10 * time.Minute

// UserStore abstracts the user-record persistence the life logic
// reads and writes.
type UserStore interface {
	User(ctx context.Context, id string) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
	Users(ctx context.Context) ([]domain.User, error)
}

// Service recomputes and adjusts a single user's life state.
type Service struct {
	users UserStore
	unit  time.Duration
	clock func() time.Time
}

func NewService(users UserStore, unit time.Duration) *Service {
	if unit <= 0 {
		unit = DefaultUnit
	}
	return &Service{users: users, unit: unit, clock: time.Now}
}

// NewServiceWithClock is test-only for deterministic time.
func NewServiceWithClock(users UserStore, unit time.Duration, clock func() time.Time) *Service {
	s := NewService(users, unit)
	s.clock = clock
	return s
}

// Advance applies elapsed time to a user's life state: whole regenerated
// units raise life toward the cap, the fractional remainder is kept in
// RegenDebt, and LastAdjusted always moves to now so elapsed time is
// never counted twice. At full life only the timestamp advances.
func Advance(u domain.User, now time.Time, unit time.Duration) domain.User {
	if !now.After(u.LastAdjusted) {
		return u
	}
	if u.Life >= MaxLife {
		u.Life = MaxLife
		u.RegenDebt = 0
		u.LastAdjusted = now
		return u
	}

	total := u.RegenDebt + now.Sub(u.LastAdjusted).Minutes()
	unitMinutes := unit.Minutes()
	whole := int(total / unitMinutes)

	u.Life += whole
	if u.Life >= MaxLife {
		u.Life = MaxLife
		u.RegenDebt = 0
	} else {
		u.RegenDebt = total - float64(whole)*unitMinutes
	}
	u.LastAdjusted = now
	return u
}

// Life recomputes regeneration for the user and returns the current
// value. This is the on-read trigger; the sweep covers idle users.
func (s *Service) Life(ctx context.Context, userID string) (int, error) {
	u, err := s.recompute(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Life, nil
}

// Boost adds a single life point, capped.
func (s *Service) Boost(ctx context.Context, userID string) (int, error) {
	u, err := s.recompute(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.Life < MaxLife {
		u.Life++
		if err := s.users.SaveUser(ctx, u); err != nil {
			return 0, err
		}
	}
	return u.Life, nil
}

// ReferralBoost adds five life points, or tops up to exactly the cap
// when five would overshoot.
func (s *Service) ReferralBoost(ctx context.Context, userID string) (int, error) {
	u, err := s.recompute(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.Life < MaxLife {
		if u.Life+5 < MaxLife {
			u.Life += 5
		} else {
			u.Life = MaxLife
		}
		if err := s.users.SaveUser(ctx, u); err != nil {
			return 0, err
		}
	}
	return u.Life, nil
}

// Penalize removes one life point (floor zero) and restarts the
// regeneration window, so the lost point takes a full unit to earn back.
func (s *Service) Penalize(ctx context.Context, userID string) error {
	u, err := s.users.User(ctx, userID)
	if err != nil {
		return err
	}
	if u.Life > 0 {
		u.Life--
	}
	u.RegenDebt = 0
	u.LastAdjusted = s.clock()
	return s.users.SaveUser(ctx, u)
}

func (s *Service) recompute(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.users.User(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	advanced := Advance(u, s.clock(), s.unit)
	if advanced != u {
		if err := s.users.SaveUser(ctx, advanced); err != nil {
			return domain.User{}, err
		}
	}
	return advanced, nil
}
