package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(ttl time.Duration) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(ttl)
	s.now = clock.Now
	return s, clock
}

func TestStore_Lifecycle(t *testing.T) {
	s, clock := newTestStore(time.Hour)

	rec, err := s.Create("t1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status)

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Empty(t, got.Files)

	clock.Advance(time.Minute)
	require.NoError(t, s.Complete("t1", []string{"a.mp3", "b.mp3"}, 42*time.Second))

	got, err = s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, got.Files)
	assert.Equal(t, 42*time.Second, got.Duration)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestStore_CreateDuplicate(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	_, err := s.Create("t1", time.Time{})
	require.NoError(t, err)

	_, err = s.Create("t1", time.Time{})
	assert.ErrorIs(t, err, ErrTaskExists)
}

func TestStore_UnknownTask(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, s.Complete("nope", nil, 0), ErrTaskNotFound)
	assert.ErrorIs(t, s.Fail("nope", errors.New("x")), ErrTaskNotFound)
	assert.ErrorIs(t, s.Cancel("nope", "x"), ErrTaskNotFound)
}

func TestStore_TerminalStatesAreImmutable(t *testing.T) {
	terminate := map[Status]func(*Store, string) error{
		StatusCompleted: func(s *Store, id string) error { return s.Complete(id, []string{"f.mp3"}, time.Second) },
		StatusFailed:    func(s *Store, id string) error { return s.Fail(id, errors.New("ffmpeg exploded")) },
		StatusCancelled: func(s *Store, id string) error { return s.Cancel(id, "client") },
	}

	for status, fn := range terminate {
		t.Run(string(status), func(t *testing.T) {
			s, _ := newTestStore(time.Hour)
			_, err := s.Create("t1", time.Time{})
			require.NoError(t, err)
			require.NoError(t, fn(s, "t1"))
			before, _ := s.Get("t1")

			assert.ErrorIs(t, s.Complete("t1", []string{"other.mp3"}, time.Hour), ErrTerminalState)
			assert.ErrorIs(t, s.Fail("t1", errors.New("late")), ErrTerminalState)
			assert.ErrorIs(t, s.Cancel("t1", "late"), ErrTerminalState)

			after, _ := s.Get("t1")
			assert.Equal(t, before, after)
			assert.Equal(t, status, after.Status)
		})
	}
}

func TestStore_ExpiredRecordIsNotFoundBeforeSweep(t *testing.T) {
	s, clock := newTestStore(time.Minute)
	_, err := s.Create("t1", time.Time{})
	require.NoError(t, err)
	require.NoError(t, s.Complete("t1", nil, 0))

	clock.Advance(2 * time.Minute)

	_, err = s.Get("t1")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, s.Cancel("t1", "x"), ErrTaskNotFound, "cancel agrees with get")
}

func TestStore_FailKeepsMessage(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	_, _ = s.Create("t1", time.Time{})
	require.NoError(t, s.Fail("t1", errors.New("pyannote crashed")))

	got, _ := s.Get("t1")
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "pyannote crashed", got.Error)
	assert.Empty(t, got.Files)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	_, _ = s.Create("t1", time.Time{})
	require.NoError(t, s.Complete("t1", []string{"a.mp3"}, time.Second))

	got, _ := s.Get("t1")
	got.Files[0] = "mutated"

	again, _ := s.Get("t1")
	assert.Equal(t, "a.mp3", again.Files[0])
}

func TestStore_SweepEvictsOnlyExpiredTerminal(t *testing.T) {
	s, clock := newTestStore(time.Hour)

	_, _ = s.Create("running", time.Time{})
	_, _ = s.Create("done-old", time.Time{})
	require.NoError(t, s.Complete("done-old", nil, time.Second))

	clock.Advance(30 * time.Minute)
	_, _ = s.Create("done-new", time.Time{})
	require.NoError(t, s.Fail("done-new", errors.New("x")))

	clock.Advance(45 * time.Minute)

	// expired records disappear from reads before the sweep runs
	_, err := s.Get("done-old")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	removed := s.Sweep(clock.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, s.Len())

	_, err = s.Get("running")
	assert.NoError(t, err, "processing tasks are never evicted")
	_, err = s.Get("done-new")
	assert.NoError(t, err)

	clock.Advance(24 * time.Hour)
	assert.Equal(t, 1, s.Sweep(clock.Now()))
	_, err = s.Get("running")
	assert.NoError(t, err)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s, clock := newTestStore(time.Hour)
	for i := 0; i < 3; i++ {
		_, err := s.Create(fmt.Sprintf("t%d", i), time.Time{})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "t2", list[0].ID)
	assert.Equal(t, "t0", list[2].ID)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("t%d", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = s.Create(id, time.Time{})
			_ = s.Complete(id, []string{id + ".mp3"}, time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Get(id)
		}()
		go func() {
			defer wg.Done()
			_ = s.List()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}

func TestStore_JanitorStopsWithContext(t *testing.T) {
	s, clock := newTestStore(time.Millisecond)
	_, _ = s.Create("t1", time.Time{})
	require.NoError(t, s.Complete("t1", nil, 0))
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}
