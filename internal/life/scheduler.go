package life

import (
	"context"
	"log"
	"time"
)

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 5 * time.Minute

// Scheduler periodically recomputes regeneration for every user. It is
// an explicit recurring task with its own lifecycle, independent of
// request handling; per-user updates are idempotent so the sweep and
// the on-read recomputation can interleave freely.
type Scheduler struct {
	service  *Service
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to end it.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep runs one O(n) pass over all users. Failures on one user do not
// block the rest; adjustments are per-user-independent.
func (s *Scheduler) Sweep(ctx context.Context) {
	users, err := s.service.users.Users(ctx)
	if err != nil {
		log.Printf("life sweep: list users: %v", err)
		return
	}
	now := s.service.clock()
	for _, u := range users {
		advanced := Advance(u, now, s.service.unit)
		if advanced == u {
			continue
		}
		if err := s.service.users.SaveUser(ctx, advanced); err != nil {
			log.Printf("life sweep: save user %s: %v", u.ID, err)
		}
	}
}
