package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
)

func TestKind_PersistedValues(t *testing.T) {
	assert.Equal(t, 0, int(Internal))
	assert.Equal(t, 1, int(LTC))
	assert.Equal(t, 2, int(MTC))
	assert.False(t, Kind(3).Valid())
	assert.Equal(t, "kind(7)", Kind(7).String())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" LTC ")
	require.NoError(t, err)
	assert.Equal(t, LTC, k)

	_, err = ParseKind("smpte")
	assert.Error(t, err)
}

func TestLTCSettings_Normalize(t *testing.T) {
	decomposed := LTCSettings{Device: " Cafe\u0301 Interface ", Channel: -2}
	composed := LTCSettings{Device: "Caf\u00e9 Interface"}

	assert.Equal(t, composed, decomposed.Normalize())
	assert.True(t, LTCSettings{}.IsZero())
}

func TestNewExternal_RejectsInternal(t *testing.T) {
	_, err := NewExternal(Internal, LTCSettings{}, nil)
	assert.Error(t, err)
}

func TestExternal_FeedLatestWins(t *testing.T) {
	e, err := NewExternal(MTC, LTCSettings{}, clock.Fake(time.Unix(0, 0)))
	require.NoError(t, err)

	assert.True(t, e.Feed(1.0))
	assert.True(t, e.Feed(2.0))
	assert.True(t, e.Feed(-3))

	s := <-e.Samples()
	assert.Equal(t, 0.0, s.Elapsed)
	assert.Equal(t, uint64(3), s.Seq)
	assert.Equal(t, broadcaster.Running, s.State)
	assert.Equal(t, uint64(2), e.Dropped())
}

func TestExternal_FeedAfterClose(t *testing.T) {
	e, err := NewExternal(LTC, LTCSettings{Device: "in"}, nil)
	require.NoError(t, err)
	require.NoError(t, e.Close(context.Background()))

	assert.False(t, e.Feed(1))
	select {
	case <-e.Samples():
		t.Fatal("closed source delivered a sample")
	default:
	}
}

func TestInternal_CloseWaitsForLoop(t *testing.T) {
	s := NewInternal(nil, broadcaster.WithNice(0))
	s.Transport().Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	select {
	case <-s.Transport().Done():
	default:
		t.Fatal("ticking loop still running after Close")
	}
}

func TestInternal_CloseReportsTeardownTimeout(t *testing.T) {
	s := NewInternal(nil, broadcaster.WithNice(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Close(ctx)
	if err != nil {
		assert.ErrorIs(t, err, ErrTeardown)
	}
	<-s.Transport().Done()
}

func TestFactory(t *testing.T) {
	f := NewFactory(nil, nil, broadcaster.WithNice(0))

	in, err := f(Internal, LTCSettings{})
	require.NoError(t, err)
	assert.Equal(t, Internal, in.Kind())
	_, ok := in.(Controllable)
	assert.True(t, ok)
	require.NoError(t, in.Close(context.Background()))

	ext, err := f(LTC, LTCSettings{Device: "a"})
	require.NoError(t, err)
	_, ok = ext.(Feeder)
	assert.True(t, ok)

	_, err = f(Kind(9), LTCSettings{})
	assert.Error(t, err)
}
