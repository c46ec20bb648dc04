package dump

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/camkit/camsink/internal/frame"
	"github.com/camkit/camsink/internal/memsink"
)

type step struct {
	err     error
	payload []byte
	online  bool
}

// fakeSource plays back a scripted sequence of reads, then cancels the
// loop's context to stop Run.
type fakeSource struct {
	steps  []step
	idx    int
	cancel context.CancelFunc
	reads  int
}

func (s *fakeSource) Name() string { return "cam0" }

func (s *fakeSource) Get(_ context.Context, f *frame.Frame, _ time.Duration) error {
	s.reads++
	if s.idx >= len(s.steps) {
		s.cancel()
		return memsink.ErrNoData
	}
	st := s.steps[s.idx]
	s.idx++
	if st.err != nil {
		return st.err
	}
	f.Width = 320
	f.Height = 240
	f.Format = frame.FormatJPEG
	f.Stride = 0
	f.Online = st.online
	f.GrabTS = 10.0
	f.EncodeBeginTS = 10.001
	f.EncodeEndTS = 10.002
	f.SetPayload(st.payload)
	return nil
}

func runScript(t *testing.T, steps []step, out io.Writer) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{steps: steps, cancel: cancel}
	return Run(ctx, src, out, Options{
		Timeout: 10 * time.Millisecond,
		Format:  FormatJSON,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRunEmitsJSONRecord(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}
	var buf bytes.Buffer

	err := runScript(t, []step{{payload: payload, online: true}}, &buf)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}

	line := buf.Bytes()
	if len(line) == 0 || line[len(line)-1] != '\n' {
		t.Fatal("record is not newline-terminated")
	}

	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if rec.Size != uint64(len(payload)) || rec.Width != 320 || rec.Height != 240 {
		t.Errorf("record mismatch: %+v", rec)
	}
	if rec.Online != 1 {
		t.Errorf("online = %d, want 1", rec.Online)
	}
	if rec.Format != uint32(frame.FormatJPEG) {
		t.Errorf("format = %d, want %d", rec.Format, uint32(frame.FormatJPEG))
	}
	if rec.GrabTS != 10.0 || rec.EncodeBeginTS != 10.001 || rec.EncodeEndTS != 10.002 {
		t.Errorf("timestamps mismatch: %+v", rec)
	}

	decoded, err := base64.StdEncoding.DecodeString(rec.Data)
	if err != nil {
		t.Fatalf("bad base64: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Errorf("decoded payload = %v, want %v", decoded, payload)
	}
}

func TestRunRawConcatenatesPayloads(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		steps: []step{
			{payload: []byte("AAA")},
			{payload: []byte("BB")},
		},
		cancel: cancel,
	}
	err := Run(ctx, src, &buf, Options{
		Timeout: 10 * time.Millisecond,
		Format:  FormatRaw,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if buf.String() != "AAABB" {
		t.Errorf("output = %q, want raw concatenation", buf.String())
	}
}

func TestRunRetriesTimeouts(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		steps: []step{
			{err: memsink.ErrNoData},
			{err: memsink.ErrNoData},
			{payload: []byte("late")},
		},
		cancel: cancel,
	}
	err := Run(ctx, src, &buf, Options{
		Timeout: 10 * time.Millisecond,
		Format:  FormatRaw,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Run = %v, want clean shutdown", err)
	}
	if buf.String() != "late" {
		t.Errorf("output = %q", buf.String())
	}
	if src.reads < 3 {
		t.Errorf("loop gave up after %d reads", src.reads)
	}
}

func TestRunAbortsOnSinkError(t *testing.T) {
	err := runScript(t, []step{{err: errors.New("segment corrupted")}}, io.Discard)
	if err == nil {
		t.Fatal("Run returned nil on sink error")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run = %T, want *ExitError", err)
	}
	if ExitCode(err) != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode(err))
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestRunAbortsOnOutputError(t *testing.T) {
	err := runScript(t, []step{{payload: []byte("x")}}, failingWriter{})
	if err == nil {
		t.Fatal("Run returned nil on output error")
	}
	if ExitCode(err) != 2 {
		t.Errorf("ExitCode = %d, want 2", ExitCode(err))
	}
}

func TestRunConsumesWithoutOutput(t *testing.T) {
	err := runScript(t, []step{{payload: []byte("x")}}, nil)
	if err != nil {
		t.Errorf("Run = %v", err)
	}
}

func TestExitCodeMapping(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d", got)
	}
	if got := ExitCode(&ExitError{Code: -3}); got != 3 {
		t.Errorf("ExitCode(-3) = %d", got)
	}
	if got := ExitCode(errors.New("plain")); got != 1 {
		t.Errorf("ExitCode(plain) = %d", got)
	}
}
