// Package timeline turns an elapsed-time feed into a bounded, loopable
// frame counter and timecode, and fans the resulting state changes out to
// subscribers.
//
// A Timeline owns its clock source. For the internal source it drives a
// broadcaster.Broadcaster whose ticking loop runs on a dedicated goroutine;
// the timeline's own Run loop consumes the broadcaster's samples, applies
// the boundary policy and is the only writer of frame state. External
// sources (LTC, MTC) deliver decoded positions through the same sample
// channel and are never bounded.
//
// Every control method enqueues a command and returns immediately. Failures
// never surface as errors to the caller: they are logged and reported as
// events, typically PlayingStateChanged(false).
package timeline
