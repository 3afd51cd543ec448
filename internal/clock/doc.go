// Package clock abstracts wall-clock time so timing code can be driven
// deterministically in tests.
//
// Production code takes a Clock and uses Real(). Tests use Fake(), whose
// time only moves when Advance is called:
//
//	c := clock.Fake(time.Unix(0, 0))
//	b := broadcaster.New(broadcaster.WithClock(c))
//	c.Advance(time.Second) // tickers fire, Now() moves one second
package clock
