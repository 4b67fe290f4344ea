package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/citypulse-labs/citypulse/internal/priority"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(ttl time.Duration) (*Store, *clock) {
	c := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(priority.SampleDataset(), ttl)
	s.nowFunc = c.Now
	return s, c
}

func TestStore_Create(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	sess := s.Create()

	_, err := uuid.Parse(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, priority.DefaultThresholds(), sess.Thresholds)
	assert.Len(t, sess.Filtered, 6)
	assert.Empty(t, sess.Neighbors)
	assert.Equal(t, 1, s.Len())

	other := s.Create()
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestStore_SetThresholdsRecomputes(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	sess := s.Create()

	updated, err := s.SetThresholds(sess.ID, priority.Thresholds{VegetationPercentileCutoff: 10, ParkAccessPercentCutoff: 30})
	require.NoError(t, err)
	require.Len(t, updated.Filtered, 1)
	assert.Equal(t, "bg_203", updated.Filtered[0].ID)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Filtered, got.Filtered)
	assert.Equal(t, 10.0, got.Thresholds.VegetationPercentileCutoff)
}

func TestStore_SetTarget(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	sess := s.Create()

	neighbors := []string{"Guatemala", "Belize", "United States of America"}
	updated, err := s.SetTarget(sess.ID, "MEX", "Mexico", neighbors)
	require.NoError(t, err)
	assert.Equal(t, "MEX", updated.TargetCode)
	assert.Equal(t, "Mexico", updated.TargetName)
	assert.Equal(t, neighbors, updated.Neighbors)

	neighbors[0] = "mutated"
	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Guatemala", got.Neighbors[0], "store keeps its own copy")

	updated, err = s.SetTarget(sess.ID, "", "Island", nil)
	require.NoError(t, err)
	assert.NotNil(t, updated.Neighbors)
}

func TestStore_ReturnedSessionIsACopy(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	sess := s.Create()
	sess.Filtered[0].Name = "changed"

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", got.Filtered[0].Name)
}

func TestStore_UnknownSession(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SetThresholds("nope", priority.DefaultThresholds())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SetTarget("nope", "", "", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	s.Delete("nope")
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	sess := s.Create()
	s.Delete(sess.ID)

	_, err := s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, s.Len())
}

func TestStore_Expiry(t *testing.T) {
	s, c := newTestStore(time.Minute)
	active := s.Create()
	idle := s.Create()

	c.Advance(45 * time.Second)
	_, err := s.Get(active.ID)
	require.NoError(t, err)

	c.Advance(30 * time.Second)
	_, err = s.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound, "idle session expires")

	_, err = s.Get(active.ID)
	assert.NoError(t, err, "access refreshes the idle timer")
}

func TestStore_Sweep(t *testing.T) {
	s, c := newTestStore(time.Minute)
	s.Create()
	s.Create()

	assert.Zero(t, s.Sweep())
	c.Advance(2 * time.Minute)
	fresh := s.Create()

	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Len())
	_, err := s.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestStore_RunStopsOnCancel(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	sess := s.Create()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			th := priority.Thresholds{VegetationPercentileCutoff: float64(i * 5), ParkAccessPercentCutoff: 60}
			_, _ = s.SetThresholds(sess.ID, th)
			_, _ = s.Get(sess.ID)
			s.Create()
			s.Sweep()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 21, s.Len())
}
