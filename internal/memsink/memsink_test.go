//go:build linux

package memsink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/camkit/camsink/internal/frame"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Dir:          t.TempDir(),
		Capacity:     1 << 16,
		PollInterval: 200 * time.Microsecond,
	}
}

func newPair(t *testing.T) (*Sink, *Sink) {
	t.Helper()
	opts := testOptions(t)

	prod, err := Open("cam0", RoleProducer, opts)
	if err != nil {
		t.Fatalf("producer Open: %v", err)
	}
	t.Cleanup(func() { prod.Close() })

	cons, err := Open("cam0", RoleConsumer, opts)
	if err != nil {
		t.Fatalf("consumer Open: %v", err)
	}
	t.Cleanup(func() { cons.Close() })

	return prod, cons
}

func publish(t *testing.T, s *Sink, payload string, grabTS float64) {
	t.Helper()
	f := frame.New()
	f.Width = 640
	f.Height = 480
	f.Format = frame.FormatJPEG
	f.Stride = 0
	f.Online = true
	f.GrabTS = grabTS
	f.EncodeBeginTS = grabTS + 0.001
	f.EncodeEndTS = grabTS + 0.002
	f.SetPayload([]byte(payload))
	if err := s.Put(f); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	prod, cons := newPair(t)
	publish(t, prod, "frame-payload", 1.5)

	f := frame.New()
	if err := cons.Get(context.Background(), f, time.Second); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(f.Payload()) != "frame-payload" {
		t.Errorf("payload = %q", f.Payload())
	}
	if f.Width != 640 || f.Height != 480 || f.Format != frame.FormatJPEG {
		t.Errorf("metadata mismatch: %+v", f)
	}
	if !f.Online {
		t.Error("online flag lost")
	}
	if f.GrabTS != 1.5 || f.EncodeBeginTS != 1.501 || f.EncodeEndTS != 1.502 {
		t.Errorf("timestamps mismatch: %f %f %f", f.GrabTS, f.EncodeBeginTS, f.EncodeEndTS)
	}
	if f.Used > cap(f.Data) {
		t.Errorf("invariant violated: used %d > cap %d", f.Used, cap(f.Data))
	}
}

func TestLastWriteWins(t *testing.T) {
	prod, cons := newPair(t)

	publish(t, prod, "first", 1.0)
	publish(t, prod, "second", 2.0)
	publish(t, prod, "third", 3.0)

	f := frame.New()
	if err := cons.Get(context.Background(), f, time.Second); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(f.Payload()) != "third" {
		t.Errorf("got %q, want the newest frame", f.Payload())
	}

	// The same frame must not be delivered twice.
	err := cons.Get(context.Background(), f, 20*time.Millisecond)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("second Get = %v, want ErrNoData", err)
	}
}

func TestGetTimeoutWithAliveProducer(t *testing.T) {
	_, cons := newPair(t)

	f := frame.New()
	start := time.Now()
	err := cons.Get(context.Background(), f, 50*time.Millisecond)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Get = %v, want ErrNoData", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout window", elapsed)
	}
}

func TestProducerGone(t *testing.T) {
	opts := testOptions(t)

	prod, err := Open("cam0", RoleProducer, opts)
	if err != nil {
		t.Fatalf("producer Open: %v", err)
	}
	cons, err := Open("cam0", RoleConsumer, opts)
	if err != nil {
		t.Fatalf("consumer Open: %v", err)
	}
	defer cons.Close()

	if err := prod.Close(); err != nil {
		t.Fatalf("producer Close: %v", err)
	}

	f := frame.New()
	err = cons.Get(context.Background(), f, 10*time.Millisecond)
	if !errors.Is(err, ErrProducerGone) {
		t.Errorf("Get = %v, want ErrProducerGone", err)
	}
	if cons.Online() {
		t.Error("segment still marked online after producer close")
	}
}

func TestGetCancellation(t *testing.T) {
	_, cons := newPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	f := frame.New()
	err := cons.Get(ctx, f, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Get = %v, want context.Canceled", err)
	}
}

func TestBufferGrowsNeverShrinks(t *testing.T) {
	prod, cons := newPair(t)

	big := make([]byte, 8192)
	for i := range big {
		big[i] = byte(i)
	}
	bigFrame := frame.New()
	bigFrame.Online = true
	bigFrame.SetPayload(big)
	if err := prod.Put(bigFrame); err != nil {
		t.Fatalf("Put: %v", err)
	}

	f := frame.New()
	if err := cons.Get(context.Background(), f, time.Second); err != nil {
		t.Fatalf("Get: %v", err)
	}
	grownCap := cap(f.Data)

	publish(t, prod, "tiny", 2.0)
	if err := cons.Get(context.Background(), f, time.Second); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cap(f.Data) != grownCap {
		t.Errorf("buffer shrank from %d to %d", grownCap, cap(f.Data))
	}
	if f.Used != 4 {
		t.Errorf("Used = %d, want 4", f.Used)
	}
}

func TestSecondProducerRejected(t *testing.T) {
	opts := testOptions(t)

	prod, err := Open("cam0", RoleProducer, opts)
	if err != nil {
		t.Fatalf("producer Open: %v", err)
	}
	defer prod.Close()

	_, err = Open("cam0", RoleProducer, opts)
	if !errors.Is(err, ErrSinkBusy) {
		t.Errorf("second producer Open = %v, want ErrSinkBusy", err)
	}
}

func TestConsumerRequiresExistingSegment(t *testing.T) {
	_, err := Open("nope", RoleConsumer, testOptions(t))
	if err == nil {
		t.Fatal("Open succeeded for a missing segment")
	}
}

func TestConsumerRejectsForeignFile(t *testing.T) {
	opts := testOptions(t)
	path := filepath.Join(opts.Dir, "junk.sink")
	if err := os.WriteFile(path, make([]byte, headerSize+16), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open("junk", RoleConsumer, opts)
	if !errors.Is(err, ErrBadSegment) {
		t.Errorf("Open = %v, want ErrBadSegment", err)
	}
}

func TestPutTooLarge(t *testing.T) {
	opts := testOptions(t)
	opts.Capacity = 64

	prod, err := Open("cam0", RoleProducer, opts)
	if err != nil {
		t.Fatalf("producer Open: %v", err)
	}
	defer prod.Close()

	f := frame.New()
	f.SetPayload(make([]byte, 128))
	if err := prod.Put(f); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Put = %v, want ErrFrameTooLarge", err)
	}
}

func TestInvalidName(t *testing.T) {
	for _, name := range []string{"", "a/b"} {
		if _, err := Open(name, RoleConsumer, testOptions(t)); err == nil {
			t.Errorf("Open(%q) succeeded, want error", name)
		}
	}
}
