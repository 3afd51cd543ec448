// Package harness runs scripted timeline scenarios against a fake clock.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: loop_at_boundary
//	description: "A looping timeline never reports a frame past max_frames"
//	timeline:
//	  max_frames: 10
//	  looping: true
//	  standard: pal
//	flow:
//	  - do: start
//	  - do: advance
//	    ticks: 30
//	    expect: { state: playing }
//	  - do: seek
//	    frame: 4
//	    expect: { frame: 4 }
//	assertions:
//	  - type: max_frame
//	    frame: 10
//	  - type: event_count
//	    event: finished
//	    count: 0
//
// # Steps
//
// start, pause, stop, seek (frame), step (frames), timecode (timecode),
// standard (standard), looping (looping), max_frames (max_frames), speed
// (speed), source (source, ltc), feed (seconds), load (document) and
// advance (ticks). Each advance tick moves fake time by one tick interval
// and waits until the timeline has taken the resulting sample, so a
// scenario always produces the same trace.
//
// # Assertion Types
//
//   - final_frame: the frame after the last step
//   - final_state: stopped, playing or paused after the last step
//   - event_count: an event kind occurs exactly count times
//   - event_order: event kinds occur in this relative order
//   - max_frame: no frame_changed event reports more than frame
//
// # Golden Traces
//
// RunWithGolden compares the event trace against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
