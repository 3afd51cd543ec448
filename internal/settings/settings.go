// Package settings reads and writes the timeline's persisted settings
// document.
//
// Only the clock source, timecode standard, looping flag and LTC input are
// persisted; frame position and play state never are. Documents may carry
// comments and trailing commas. Each field is checked on its own against a
// CUE schema, so one bad field falls back to its default without
// discarding the rest.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/tidwall/jsonc"

	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timecode"
)

// ErrConfiguration marks a settings document with missing or malformed
// fields. The fields named in the error took their defaults.
var ErrConfiguration = errors.New("invalid clock settings")

// Document keys.
const (
	KeyClockSource      = "clockSource"
	KeyTimecodeStandard = "timecodeStandard"
	KeyIsLooping        = "isLooping"
	KeyLTCSettings      = "ltcSettings"

	// legacyKeyTimecodeType is the standard's key in older documents.
	legacyKeyTimecodeType = "timecodeType"
)

// schema constrains each persisted field. Values mirror source.Kind and
// timecode.Standard.
const schema = `
clockSource:      int & >=0 & <=2
timecodeStandard: int & >=0 & <=4
isLooping:        bool
ltcSettings: {
	device:  string
	channel: int & >=0
}
`

// Settings is the persisted subset of a timeline's state.
type Settings struct {
	ClockSource source.Kind
	Standard    timecode.Standard
	Looping     bool

	// LTC is nil when no LTC input was ever selected.
	LTC *source.LTCSettings
}

// Default returns the settings used for missing or malformed fields:
// internal clock, PAL, not looping.
func Default() Settings {
	return Settings{
		ClockSource: source.Internal,
		Standard:    timecode.DefaultStandard,
		Looping:     false,
	}
}

// FieldError describes one field that could not be used.
type FieldError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *FieldError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type document struct {
	ClockSource      int                 `json:"clockSource"`
	TimecodeStandard int                 `json:"timecodeStandard"`
	IsLooping        bool                `json:"isLooping"`
	LTCSettings      *source.LTCSettings `json:"ltcSettings,omitempty"`
}

// Encode renders s as an indented JSON document.
func Encode(s Settings) ([]byte, error) {
	doc := document{
		ClockSource:      int(s.ClockSource),
		TimecodeStandard: int(s.Standard),
		IsLooping:        s.Looping,
	}
	if s.LTC != nil {
		ltc := s.LTC.Normalize()
		doc.LTCSettings = &ltc
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a settings document. It always returns usable Settings:
// fields that are missing or fail the schema take their defaults, and the
// returned error wraps ErrConfiguration and lists each of them as a
// FieldError.
func Decode(data []byte) (Settings, error) {
	s := Default()

	ctx := cuecontext.New()
	sch := ctx.CompileString(schema)
	if err := sch.Err(); err != nil {
		return s, fmt.Errorf("compile settings schema: %w", err)
	}

	doc := ctx.CompileBytes(jsonc.ToJSON(data), cue.Filename("settings.json"))
	if err := doc.Err(); err != nil {
		return s, fmt.Errorf("%w: %w", ErrConfiguration, formatCUEError("document", err))
	}

	var problems []error

	if v, err := field(doc, sch, KeyClockSource, KeyClockSource); err != nil {
		problems = append(problems, err)
	} else if n, err := v.Int64(); err == nil {
		s.ClockSource = source.Kind(n)
	}

	stdKey := KeyTimecodeStandard
	if !doc.LookupPath(cue.ParsePath(stdKey)).Exists() &&
		doc.LookupPath(cue.ParsePath(legacyKeyTimecodeType)).Exists() {
		stdKey = legacyKeyTimecodeType
	}
	if v, err := field(doc, sch, stdKey, KeyTimecodeStandard); err != nil {
		problems = append(problems, err)
	} else if n, err := v.Int64(); err == nil {
		s.Standard = timecode.Standard(n)
	}

	if v, err := field(doc, sch, KeyIsLooping, KeyIsLooping); err != nil {
		problems = append(problems, err)
	} else if b, err := v.Bool(); err == nil {
		s.Looping = b
	}

	if doc.LookupPath(cue.ParsePath(KeyLTCSettings)).Exists() {
		ltc, err := decodeLTC(doc, sch)
		if err != nil {
			problems = append(problems, err)
		} else {
			s.LTC = &ltc
		}
	}

	if len(problems) > 0 {
		return s, fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(problems...))
	}
	return s, nil
}

// field looks up key in doc and unifies it with the schema entry for
// schemaKey.
func field(doc, sch cue.Value, key, schemaKey string) (cue.Value, error) {
	v := doc.LookupPath(cue.ParsePath(key))
	if !v.Exists() {
		return v, &FieldError{Field: schemaKey, Message: "missing"}
	}
	u := sch.LookupPath(cue.ParsePath(schemaKey)).Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return u, formatCUEError(schemaKey, err)
	}
	return u, nil
}

func decodeLTC(doc, sch cue.Value) (source.LTCSettings, error) {
	v, err := field(doc, sch, KeyLTCSettings, KeyLTCSettings)
	if err != nil {
		return source.LTCSettings{}, err
	}
	device, err := v.LookupPath(cue.ParsePath("device")).String()
	if err != nil {
		return source.LTCSettings{}, formatCUEError(KeyLTCSettings+".device", err)
	}
	channel, err := v.LookupPath(cue.ParsePath("channel")).Int64()
	if err != nil {
		return source.LTCSettings{}, formatCUEError(KeyLTCSettings+".channel", err)
	}
	return source.LTCSettings{Device: device, Channel: int(channel)}.Normalize(), nil
}

// formatCUEError reduces a CUE error to its first message and position.
func formatCUEError(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &FieldError{Field: name, Message: err.Error()}
	}
	first := errs[0]
	fe := &FieldError{Field: name, Message: strings.TrimSpace(first.Error())}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		fe.Pos = positions[0]
	}
	return fe
}
