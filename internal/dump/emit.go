package dump

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/camkit/camsink/internal/frame"
)

// Format selects how frames are serialized to the output.
type Format int

const (
	// FormatRaw writes frame payloads verbatim, back to back. There is no
	// inter-frame framing: downstream readers rely on self-delimiting
	// payloads such as complete JPEG markers.
	FormatRaw Format = iota
	// FormatJSON writes one newline-terminated JSON record per frame with
	// the payload base64-encoded.
	FormatJSON
)

// Record is the JSON wire form of one frame.
type Record struct {
	Size          uint64  `json:"size"`
	Width         uint32  `json:"width"`
	Height        uint32  `json:"height"`
	Format        uint32  `json:"format"`
	Stride        uint32  `json:"stride"`
	Online        uint8   `json:"online"`
	GrabTS        float64 `json:"grab_ts"`
	EncodeBeginTS float64 `json:"encode_begin_ts"`
	EncodeEndTS   float64 `json:"encode_end_ts"`
	Data          string  `json:"data"`
}

// RecordFromFrame builds the JSON wire form of f.
func RecordFromFrame(f *frame.Frame) Record {
	online := uint8(0)
	if f.Online {
		online = 1
	}
	return Record{
		Size:          uint64(f.Used),
		Width:         f.Width,
		Height:        f.Height,
		Format:        uint32(f.Format),
		Stride:        f.Stride,
		Online:        online,
		GrabTS:        f.GrabTS,
		EncodeBeginTS: f.EncodeBeginTS,
		EncodeEndTS:   f.EncodeEndTS,
		Data:          base64.StdEncoding.EncodeToString(f.Payload()),
	}
}

// Emitter serializes frames to a buffered output, flushing after every
// frame so a downstream pipe sees them immediately.
type Emitter struct {
	w      *bufio.Writer
	format Format
}

// NewEmitter wraps out for the given format.
func NewEmitter(out io.Writer, format Format) *Emitter {
	return &Emitter{w: bufio.NewWriter(out), format: format}
}

// Emit writes one frame.
func (e *Emitter) Emit(f *frame.Frame) error {
	switch e.format {
	case FormatJSON:
		line, err := json.Marshal(RecordFromFrame(f))
		if err != nil {
			return fmt.Errorf("dump: marshal record: %w", err)
		}
		line = append(line, '\n')
		if _, err := e.w.Write(line); err != nil {
			return fmt.Errorf("dump: write record: %w", err)
		}
	default:
		if _, err := e.w.Write(f.Payload()); err != nil {
			return fmt.Errorf("dump: write payload: %w", err)
		}
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("dump: flush output: %w", err)
	}
	return nil
}
