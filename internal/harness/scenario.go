package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timecode"
	"github.com/roach88/showclock/internal/timeline"
)

// Step names.
const (
	StepStart     = "start"
	StepPause     = "pause"
	StepStop      = "stop"
	StepSeek      = "seek"
	StepStep      = "step"
	StepTimecode  = "timecode"
	StepStandard  = "standard"
	StepLooping   = "looping"
	StepMaxFrames = "max_frames"
	StepSpeed     = "speed"
	StepSource    = "source"
	StepFeed      = "feed"
	StepLoad      = "load"
	StepAdvance   = "advance"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and names.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}

	if s.Timeline.MaxFrames < 0 {
		return fmt.Errorf("timeline.max_frames must be >= 0")
	}
	if s.Timeline.Standard != "" {
		if _, err := timecode.ParseStandard(s.Timeline.Standard); err != nil {
			return fmt.Errorf("timeline.standard: %w", err)
		}
	}
	if s.Timeline.Source != "" {
		if _, err := source.ParseKind(s.Timeline.Source); err != nil {
			return fmt.Errorf("timeline.source: %w", err)
		}
	}
	if s.Timeline.Speed < 0 {
		return fmt.Errorf("timeline.speed must be positive")
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Do {
	case StepStart, StepPause, StepStop, StepSeek, StepStep, StepLooping,
		StepMaxFrames, StepFeed, StepLoad:
	case StepTimecode:
		if step.Timecode == "" {
			return fmt.Errorf("timecode step requires timecode")
		}
	case StepStandard:
		if _, err := timecode.ParseStandard(step.Standard); err != nil {
			return err
		}
	case StepSpeed:
		if step.Speed <= 0 {
			return fmt.Errorf("speed step requires a positive speed")
		}
	case StepSource:
		if _, err := source.ParseKind(step.Source); err != nil {
			return err
		}
	case StepAdvance:
		if step.Ticks <= 0 {
			return fmt.Errorf("advance step requires ticks > 0")
		}
	case "":
		return fmt.Errorf("do is required")
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}

	if step.Expect != nil && step.Expect.State != "" {
		if _, err := parseState(step.Expect.State); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertFinalFrame, AssertMaxFrame:
	case AssertFinalState:
		if _, err := parseState(a.State); err != nil {
			return err
		}
	case AssertEventCount:
		if _, err := parseEvent(a.Event); err != nil {
			return err
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("event_order requires events")
		}
		for _, e := range a.Events {
			if _, err := parseEvent(e); err != nil {
				return err
			}
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func parseState(name string) (timeline.PlayingState, error) {
	for _, st := range []timeline.PlayingState{timeline.Stopped, timeline.Playing, timeline.Paused} {
		if st.String() == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q: must be stopped, playing or paused", name)
}

func parseEvent(name string) (timeline.EventKind, error) {
	for _, k := range []timeline.EventKind{
		timeline.FrameChanged,
		timeline.TimecodeChanged,
		timeline.PlayingStateChanged,
		timeline.LoopingChanged,
		timeline.Finished,
	} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}
