// Package timecode converts between wall-clock seconds, integer frame
// counts and structured SMPTE-style timecode for a fixed set of frame
// rate standards.
//
// Every function in this package is pure and safe for concurrent use.
//
// Frame counts are real frames: at 29.97 fps one second of elapsed time
// holds 30000/1001 frames. Timecode labels are derived from frame counts
// with a rollover bucket of ceil(fps) frames per second. Drop-frame
// standards skip labels ;00 and ;01 at the start of every minute that is
// not a multiple of ten, keeping labels aligned with real time.
//
// Hours are not wrapped at 24.
package timecode
