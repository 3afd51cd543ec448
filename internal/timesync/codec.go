// Package timesync publishes the internal clock's position as UDP
// datagrams and decodes them on followers.
//
// Each tick of the internal broadcaster becomes one datagram carrying the
// transport status and elapsed seconds, {"status":"play","time":12.34},
// in JSON or CBOR. A follower renders the position in its own timecode
// standard.
package timesync

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/showclock/internal/broadcaster"
)

// Status values carried in a Message.
const (
	StatusPlay  = "play"
	StatusPause = "pause"
)

// Message is one time sync datagram.
type Message struct {
	Status string  `json:"status" cbor:"status"`
	Time   float64 `json:"time" cbor:"time"`
	Seq    uint64  `json:"seq,omitempty" cbor:"seq,omitempty"`
}

// Playing reports whether the sender's clock was running.
func (m Message) Playing() bool { return m.Status == StatusPlay }

// FromSample converts a broadcaster sample.
func FromSample(s broadcaster.Sample) Message {
	status := StatusPause
	if s.State == broadcaster.Running {
		status = StatusPlay
	}
	return Message{Status: status, Time: s.Elapsed, Seq: s.Seq}
}

// Codec encodes and decodes datagrams.
type Codec interface {
	Name() string
	Encode(Message) ([]byte, error)
	Decode([]byte) (Message, error)
}

// JSON is the plain JSON wire format.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(m Message) ([]byte, error) { return json.Marshal(m) }

func (JSON) Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode json datagram: %w", err)
	}
	return m, nil
}

// CBOR is the compact binary wire format, Core Deterministic Encoding.
type CBOR struct{}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("timesync: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("timesync: CBOR decoder initialization failed: " + err.Error())
	}
}

func (CBOR) Name() string { return "cbor" }

func (CBOR) Encode(m Message) ([]byte, error) { return encMode.Marshal(m) }

func (CBOR) Decode(data []byte) (Message, error) {
	var m Message
	if err := decMode.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode cbor datagram: %w", err)
	}
	return m, nil
}

// ParseCodec resolves "json" or "cbor".
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	}
	return nil, fmt.Errorf("unknown time sync codec %q: must be json or cbor", name)
}

// Decode detects the datagram's format and decodes it. JSON datagrams
// start with '{'; anything else is treated as CBOR.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, fmt.Errorf("empty datagram")
	}
	if data[0] == '{' {
		return JSON{}.Decode(data)
	}
	return CBOR{}.Decode(data)
}
