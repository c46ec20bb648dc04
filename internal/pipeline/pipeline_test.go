package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/camkit/camsink/internal/dump"
	"github.com/camkit/camsink/internal/encoders"
	"github.com/camkit/camsink/internal/frame"
	"github.com/camkit/camsink/internal/memsink"
)

// fakeSource hands out grey frames of scripted widths, then cancels the
// context to stop Run.
type fakeSource struct {
	widths []int
	idx    int
	cancel context.CancelFunc
}

func (s *fakeSource) Name() string { return "cam0" }

func (s *fakeSource) Get(_ context.Context, f *frame.Frame, _ time.Duration) error {
	if s.idx >= len(s.widths) {
		s.cancel()
		return memsink.ErrNoData
	}
	w := s.widths[s.idx]
	s.idx++

	f.Width = uint32(w)
	f.Height = 8
	f.Format = frame.FormatGrey
	f.Stride = 0
	f.Online = true
	f.GrabTS = frame.Now()
	f.Ensure(w * 8)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runPipeline(t *testing.T, enc *encoders.Encoder, widths []int, workers int) *bytes.Buffer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{widths: widths, cancel: cancel}
	var buf bytes.Buffer
	err := Run(ctx, src, enc, &buf, Options{
		Timeout: 10 * time.Millisecond,
		Workers: workers,
		Format:  dump.FormatJSON,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	return &buf
}

func decodeWidths(t *testing.T, buf *bytes.Buffer) []int {
	t.Helper()
	var out []int
	scanner := bufio.NewScanner(buf)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var rec dump.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad record: %v", err)
		}
		payload, err := base64.StdEncoding.DecodeString(rec.Data)
		if err != nil {
			t.Fatalf("bad base64: %v", err)
		}
		img, err := jpeg.Decode(bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("emitted frame is not valid JPEG: %v", err)
		}
		out = append(out, img.Bounds().Dx())
	}
	return out
}

func countRecords(t *testing.T, buf *bytes.Buffer) int {
	t.Helper()
	n := 0
	scanner := bufio.NewScanner(buf)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var rec dump.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad record: %v", err)
		}
		n++
	}
	return n
}

func TestRunPreservesArrivalOrder(t *testing.T) {
	enc := encoders.New(testLogger(), nil)
	workers := enc.Prepare(3)
	defer enc.Destroy()

	widths := []int{8, 16, 24, 32, 40, 48, 56}
	buf := runPipeline(t, enc, widths, workers)

	got := decodeWidths(t, buf)
	if len(got) != len(widths) {
		t.Fatalf("emitted %d frames, want %d", len(got), len(widths))
	}
	for i := range widths {
		if got[i] != widths[i] {
			t.Errorf("frame %d: width %d, want %d (out of order)", i, got[i], widths[i])
		}
	}
}

type faultyInstance struct {
	fail bool
}

func (f *faultyInstance) PrepareLive(encoders.DeviceConfig, int) error { return nil }

func (f *faultyInstance) Compress(src, dst *frame.Frame) error {
	if f.fail {
		return errors.New("driver fault")
	}
	dst.CopyMetaFrom(src)
	dst.SetPayload([]byte{0xff, 0xd8, 0xff, 0xd9})
	dst.Format = frame.FormatJPEG
	return nil
}

func (f *faultyInstance) Close() error { return nil }

func TestRunSurvivesHardwareFallback(t *testing.T) {
	instances := []*faultyInstance{}
	encoders.Register(encoders.Descriptor{
		Name:         "pipeline-hw",
		MaxInstances: 4,
		New: func() (encoders.Instance, error) {
			inst := &faultyInstance{}
			instances = append(instances, inst)
			return inst, nil
		},
	})
	t.Cleanup(func() { encoders.Unregister("pipeline-hw") })

	enc := encoders.New(testLogger(), nil)
	if err := enc.SelectBackend("pipeline-hw"); err != nil {
		t.Fatal(err)
	}
	workers := enc.Prepare(2)
	defer enc.Destroy()

	// Slot 0 fails on its first frame; that frame is dropped and all
	// later frames go through software.
	instances[0].fail = true

	widths := []int{8, 16, 24, 32}
	buf := runPipeline(t, enc, widths, workers)

	// Frames racing the fallback may carry the fake hardware payload, so
	// only count records here instead of decoding them.
	if got := countRecords(t, buf); got != len(widths)-1 {
		t.Fatalf("emitted %d frames, want %d (one dropped)", got, len(widths)-1)
	}
	if enc.Active() != encoders.SoftwareName {
		t.Errorf("Active() = %q, want software", enc.Active())
	}
}
