package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_NowAdvances(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), c.Now())
}

func TestFake_TickerFiresPerInterval(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(20 * time.Millisecond)
	defer tk.Stop()

	c.Advance(10 * time.Millisecond)
	select {
	case <-tk.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(10 * time.Millisecond)
	select {
	case <-tk.C:
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestFake_TickerStop(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Millisecond)
	require.Equal(t, 1, c.PendingCount())

	tk.Stop()
	assert.Equal(t, 0, c.PendingCount())
}

func TestFake_AfterFuncRunsOnAdvance(t *testing.T) {
	c := Fake(epoch)
	ran := 0
	c.AfterFunc(5*time.Millisecond, func() { ran++ })

	c.Advance(4 * time.Millisecond)
	assert.Equal(t, 0, ran)
	c.Advance(time.Millisecond)
	assert.Equal(t, 1, ran)
	c.Advance(time.Second)
	assert.Equal(t, 1, ran, "one-shot must not refire")
}

func TestFake_AfterFuncStop(t *testing.T) {
	c := Fake(epoch)
	ran := false
	tm := c.AfterFunc(time.Millisecond, func() { ran = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.Advance(time.Second)
	assert.False(t, ran)
}

func TestFake_AfterFuncZeroRunsImmediately(t *testing.T) {
	c := Fake(epoch)
	ran := false
	c.AfterFunc(0, func() { ran = true })
	assert.True(t, ran)
}

func TestFake_After(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Second)

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(time.Second), got)
	default:
		t.Fatal("After did not fire")
	}
}

func TestFake_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.WaitForTimers(1)
		close(done)
	}()

	c.NewTicker(time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForTimers did not return")
	}
}

func TestFake_SleepReturnsAfterAdvance(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(999 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Sleep returned early")
	case <-time.After(10 * time.Millisecond):
	}

	c.Advance(time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return")
	}
}

func TestReal_Sleep(t *testing.T) {
	start := time.Now()
	Real().Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
