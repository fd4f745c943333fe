package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/diegors10/projetoAPIs/pkg/logger"
	"github.com/diegors10/projetoAPIs/pkg/metrics"
)

// Store is the in-memory task registry. Terminal records are evicted once they
// have been idle for longer than the TTL; processing records are never evicted.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates an empty registry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		records: make(map[string]*Record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers id in the processing state.
func (s *Store) Create(id string, deadline time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return Record{}, fmt.Errorf("%w: %s", ErrTaskExists, id)
	}

	now := s.now()
	rec := &Record{
		ID:        id,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
		Deadline:  deadline,
	}
	s.records[id] = rec
	metrics.RecordTaskTransition(string(StatusProcessing))
	return rec.clone(), nil
}

// Complete moves id to completed with its output files.
func (s *Store) Complete(id string, files []string, duration time.Duration) error {
	return s.transition(id, StatusCompleted, func(r *Record) {
		r.Files = append([]string(nil), files...)
		r.Duration = duration
	})
}

// Fail moves id to failed, keeping err's message.
func (s *Store) Fail(id string, err error) error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return s.transition(id, StatusFailed, func(r *Record) { r.Error = msg })
}

// Cancel moves id to cancelled.
func (s *Store) Cancel(id, reason string) error {
	return s.transition(id, StatusCancelled, func(r *Record) { r.Error = reason })
}

func (s *Store) transition(id string, to Status, apply func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || s.expired(rec, s.now()) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, id, rec.Status)
	}

	apply(rec)
	rec.Status = to
	rec.UpdatedAt = s.now()
	metrics.RecordTaskTransition(string(to))
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || s.expired(rec, s.now()) {
		return Record{}, ErrTaskNotFound
	}
	return rec.clone(), nil
}

// List returns all live records, newest first.
func (s *Store) List() []Record {
	s.mu.RLock()
	now := s.now()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if !s.expired(rec, now) {
			out = append(out, rec.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Len returns the number of stored records, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) expired(rec *Record, now time.Time) bool {
	return rec.Status.IsTerminal() && s.ttl > 0 && now.Sub(rec.UpdatedAt) > s.ttl
}

// Sweep removes terminal records idle for longer than the TTL and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if s.expired(rec, now) {
			delete(s.records, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.RecordTaskEvicted(removed)
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := logger.OrDiscard().With("component", "task-janitor")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(s.now()); n > 0 {
					log.Info("evicted expired tasks", "count", n)
				}
			}
		}
	}()
}
