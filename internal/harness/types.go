package harness

// Scenario defines a scripted run of one timeline.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Timeline configures the timeline under test.
	Timeline TimelineSpec `yaml:"timeline"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// TimelineSpec is the initial timeline configuration.
type TimelineSpec struct {
	MaxFrames int64   `yaml:"max_frames"`
	Looping   bool    `yaml:"looping"`
	Standard  string  `yaml:"standard"` // default pal
	Speed     float64 `yaml:"speed"`    // default 1
	Source    string  `yaml:"source"`   // default internal
	LTC       LTCSpec `yaml:"ltc,omitempty"`
}

// LTCSpec selects an LTC input.
type LTCSpec struct {
	Device  string `yaml:"device"`
	Channel int    `yaml:"channel"`
}

// Step is one control or time advance.
type Step struct {
	// Do names the step; see the package documentation.
	Do string `yaml:"do"`

	Frame     int64    `yaml:"frame,omitempty"`
	Frames    int64    `yaml:"frames,omitempty"`
	Timecode  string   `yaml:"timecode,omitempty"`
	Standard  string   `yaml:"standard,omitempty"`
	Looping   bool     `yaml:"looping,omitempty"`
	MaxFrames int64    `yaml:"max_frames,omitempty"`
	Speed     float64  `yaml:"speed,omitempty"`
	Source    string   `yaml:"source,omitempty"`
	LTC       *LTCSpec `yaml:"ltc,omitempty"`
	Seconds   float64  `yaml:"seconds,omitempty"`
	Document  string   `yaml:"document,omitempty"`
	Ticks     int      `yaml:"ticks,omitempty"`

	// Expect is checked once the step has been applied.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks timeline state after a step. Unset fields are not checked.
type Expect struct {
	Frame    *int64 `yaml:"frame,omitempty"`
	Timecode string `yaml:"timecode,omitempty"`
	State    string `yaml:"state,omitempty"`
	Source   string `yaml:"source,omitempty"`
	Standard string `yaml:"standard,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Frame  int64    `yaml:"frame,omitempty"`
	State  string   `yaml:"state,omitempty"`
	Event  string   `yaml:"event,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalFrame = "final_frame"
	AssertFinalState = "final_state"
	AssertEventCount = "event_count"
	AssertEventOrder = "event_order"
	AssertMaxFrame   = "max_frame"
)

// TraceEvent is one timeline event, tagged with the 1-based flow step that
// produced it.
type TraceEvent struct {
	Step     int    `json:"step"`
	Event    string `json:"event"`
	Frame    *int64 `json:"frame,omitempty"`
	Timecode string `json:"timecode,omitempty"`
	Playing  *bool  `json:"playing,omitempty"`
	Looping  *bool  `json:"looping,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool
	Trace  []TraceEvent
	Errors []string

	FinalFrame int64
	FinalState string
}
