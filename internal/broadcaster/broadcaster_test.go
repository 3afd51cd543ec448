package broadcaster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/showclock/internal/clock"
)

const tolerance = 1e-9

// startFake runs a broadcaster on a fake clock and waits until its ticker
// is registered.
func startFake(t *testing.T) (*Broadcaster, *clock.FakeClock) {
	t.Helper()

	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(WithClock(fc), WithNice(0))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-b.Done()
	})

	fc.WaitForTimers(1)
	return b, fc
}

func settle(t *testing.T, b *Broadcaster) {
	t.Helper()
	select {
	case <-b.Barrier():
	case <-time.After(time.Second):
		t.Fatal("controls were not applied")
	}
}

func TestBroadcaster_NewIsPausedAtZero(t *testing.T) {
	b := New()
	assert.Equal(t, Paused, b.State())
	assert.Equal(t, 0.0, b.ElapsedTime())
	assert.Equal(t, 1.0, b.Speed())
}

func TestBroadcaster_StartAccumulates(t *testing.T) {
	b, fc := startFake(t)

	b.Start()
	settle(t, b)
	fc.Advance(2 * time.Second)

	assert.Equal(t, Running, b.State())
	assert.InDelta(t, 2.0, b.ElapsedTime(), tolerance)
}

func TestBroadcaster_PauseFreezesElapsed(t *testing.T) {
	b, fc := startFake(t)

	b.Start()
	settle(t, b)
	fc.Advance(1500 * time.Millisecond)

	b.Pause()
	settle(t, b)
	assert.InDelta(t, 1.5, b.ElapsedTime(), tolerance)

	fc.Advance(10 * time.Second)
	assert.InDelta(t, 1.5, b.ElapsedTime(), tolerance, "paused time must not grow")

	b.Resume()
	settle(t, b)
	fc.Advance(500 * time.Millisecond)
	assert.InDelta(t, 2.0, b.ElapsedTime(), tolerance, "resume must not jump")
}

func TestBroadcaster_PauseResumeWithoutDelayIsNeutral(t *testing.T) {
	b, fc := startFake(t)

	b.Start()
	settle(t, b)
	fc.Advance(time.Second)
	before := b.ElapsedTime()

	b.Pause()
	b.Resume()
	settle(t, b)

	assert.InDelta(t, before, b.ElapsedTime(), tolerance)
}

func TestBroadcaster_PauseTwiceIsNoop(t *testing.T) {
	b, fc := startFake(t)

	b.Start()
	settle(t, b)
	fc.Advance(time.Second)
	b.Pause()
	settle(t, b)
	fc.Advance(time.Second)
	b.Pause()
	settle(t, b)

	assert.InDelta(t, 1.0, b.ElapsedTime(), tolerance)
}

func TestBroadcaster_SetSpeedIsNotRetroactive(t *testing.T) {
	b, fc := startFake(t)

	b.Start()
	settle(t, b)
	fc.Advance(time.Second)

	b.SetSpeed(2.0)
	settle(t, b)
	fc.Advance(time.Second)

	assert.InDelta(t, 3.0, b.ElapsedTime(), tolerance)
	assert.Equal(t, 2.0, b.Speed())
}

func TestBroadcaster_SetSpeedRejectsInvalid(t *testing.T) {
	b, _ := startFake(t)

	b.SetSpeed(0)
	b.SetSpeed(-1)
	settle(t, b)
	assert.Equal(t, 1.0, b.Speed())
}

func TestBroadcaster_SetCurrentTimeKeepsState(t *testing.T) {
	b, fc := startFake(t)

	b.SetCurrentTime(12.5)
	settle(t, b)
	assert.Equal(t, Paused, b.State())
	assert.InDelta(t, 12.5, b.ElapsedTime(), tolerance)
	assert.Equal(t, uint64(1), b.Generation())

	b.Resume()
	settle(t, b)
	fc.Advance(time.Second)
	b.SetCurrentTime(-4)
	settle(t, b)
	assert.Equal(t, Running, b.State())
	assert.InDelta(t, 0.0, b.ElapsedTime(), tolerance)
}

func TestBroadcaster_StopZeroes(t *testing.T) {
	b, fc := startFake(t)

	b.Start()
	settle(t, b)
	fc.Advance(3 * time.Second)

	b.Stop()
	settle(t, b)
	assert.Equal(t, Stopped, b.State())
	assert.Equal(t, 0.0, b.ElapsedTime())

	fc.Advance(time.Second)
	assert.Equal(t, 0.0, b.ElapsedTime())

	b.Resume()
	settle(t, b)
	fc.Advance(time.Second)
	assert.InDelta(t, 1.0, b.ElapsedTime(), tolerance)
}

func TestBroadcaster_GenerationCountsRebases(t *testing.T) {
	b, _ := startFake(t)

	b.Start()
	b.Pause()
	b.SetCurrentTime(1)
	b.Resume()
	b.Stop()
	settle(t, b)

	assert.Equal(t, uint64(3), b.Generation())
}

func TestBroadcaster_EmitsSamples(t *testing.T) {
	b, fc := startFake(t)
	mb := b.Subscribe()

	b.Start()
	settle(t, b)
	fc.Advance(DefaultTickInterval)

	select {
	case s := <-mb.C():
		assert.Equal(t, Running, s.State)
		assert.InDelta(t, DefaultTickInterval.Seconds(), s.Elapsed, tolerance)
		assert.Equal(t, uint64(1), s.Generation)
		assert.Equal(t, uint64(1), s.Seq)
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
}

func TestBroadcaster_EmitsWhilePaused(t *testing.T) {
	b, fc := startFake(t)
	mb := b.Subscribe()

	b.SetCurrentTime(4)
	settle(t, b)
	fc.Advance(DefaultTickInterval)

	select {
	case s := <-mb.C():
		assert.Equal(t, Paused, s.State)
		assert.InDelta(t, 4.0, s.Elapsed, tolerance)
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b, fc := startFake(t)
	mb := b.Subscribe()
	b.Unsubscribe(mb)

	fc.Advance(DefaultTickInterval)
	settle(t, b)

	select {
	case <-mb.C():
		t.Fatal("unsubscribed mailbox received a sample")
	default:
	}
}

func TestBroadcaster_CloseEndsRun(t *testing.T) {
	b := New(WithNice(0))
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	b.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	select {
	case <-b.Barrier():
	default:
		t.Fatal("barrier after close should be closed")
	}
}

func TestBroadcaster_CancelEndsRunWithinATick(t *testing.T) {
	b := New(WithNice(0))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * MaxTickInterval):
		t.Fatal("Run did not honour cancellation")
	}
}

func TestBroadcaster_RunTwice(t *testing.T) {
	b, _ := startFake(t)
	require.Eventually(t, func() bool { return b.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, b.Run(context.Background()), ErrAlreadyRunning)
}

func TestBroadcaster_TickIntervalClamped(t *testing.T) {
	assert.Equal(t, MinTickInterval, New(WithTickInterval(time.Millisecond)).Interval())
	assert.Equal(t, MaxTickInterval, New(WithTickInterval(time.Second)).Interval())
	assert.Equal(t, 25*time.Millisecond, New(WithTickInterval(25*time.Millisecond)).Interval())
}

func TestBroadcaster_RealClockPauseHolds(t *testing.T) {
	b := New(WithNice(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	b.Start()
	settle(t, b)
	time.Sleep(100 * time.Millisecond)

	b.Pause()
	settle(t, b)
	frozen := b.ElapsedTime()
	assert.InDelta(t, 0.1, frozen, 0.08)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frozen, b.ElapsedTime())

	b.Resume()
	settle(t, b)
	time.Sleep(50 * time.Millisecond)
	assert.InDelta(t, frozen+0.05, b.ElapsedTime(), 0.04)
}

func TestMailbox_LatestWins(t *testing.T) {
	m := NewMailbox()
	m.Offer(Sample{Seq: 1})
	m.Offer(Sample{Seq: 2})
	m.Offer(Sample{Seq: 3})

	s := <-m.C()
	assert.Equal(t, uint64(3), s.Seq)
	assert.Equal(t, uint64(2), m.Dropped())
}
