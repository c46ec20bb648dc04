//go:build linux

// Package memsink implements the named shared-memory channel that carries
// the newest frame from one producer to any number of consumers.
//
// The channel holds exactly one frame. The producer overwrites it on every
// publish (last-write-wins), so a consumer that polls slower than the
// producer publishes observes only the newest frame, never a backlog.
// Writes are coordinated with a seqlock rather than a shared mutex, which
// keeps consumers strictly read-only and immune to producer crashes
// mid-write.
package memsink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/camkit/camsink/internal/frame"
)

// Role selects which side of the channel Open attaches.
type Role int

const (
	// RoleProducer creates the segment and publishes frames.
	RoleProducer Role = iota
	// RoleConsumer attaches to an existing segment and reads frames.
	RoleConsumer
)

// DefaultDir is where sink segments live unless Options.Dir overrides it.
const DefaultDir = "/dev/shm"

// DefaultCapacity is the data area size for newly created segments.
const DefaultCapacity = 4 << 20

var (
	// ErrNoData reports that no new frame was published within the read
	// timeout. It is a normal condition, not a failure.
	ErrNoData = errors.New("memsink: no new frame within timeout")

	// ErrProducerGone reports that the producer no longer holds the
	// segment lock and the heartbeat is stale.
	ErrProducerGone = errors.New("memsink: producer is gone")

	// ErrSinkBusy reports that another producer already owns the segment.
	ErrSinkBusy = errors.New("memsink: sink already has a producer")

	// ErrBadSegment reports a magic or version mismatch, i.e. the named
	// file is not a compatible sink segment.
	ErrBadSegment = errors.New("memsink: incompatible segment")

	// ErrFrameTooLarge reports a publish attempt exceeding the segment
	// data area.
	ErrFrameTooLarge = errors.New("memsink: frame exceeds segment capacity")
)

// Options tunes Open. The zero value selects the defaults.
type Options struct {
	// Dir is the directory holding segment files. Default: /dev/shm.
	Dir string

	// Capacity is the data area size in bytes when creating a segment.
	// Producer only. Default: DefaultCapacity.
	Capacity int

	// PollInterval is how often a consumer re-checks the sequence while
	// waiting for a new frame. Default: 1ms.
	PollInterval time.Duration
}

// Sink is one attachment to a named shared-memory channel.
type Sink struct {
	name string
	role Role
	path string
	poll time.Duration

	file *os.File
	lock *flock.Flock
	seg  segment

	// lastSeq is the sequence of the frame this consumer saw last, so an
	// unchanged segment is skipped instead of re-delivered.
	lastSeq uint64

	closed bool
}

// Open attaches to the named channel. A producer creates (or truncates) the
// segment and takes an exclusive lock on it; a consumer requires the
// segment to already exist.
func Open(name string, role Role, opts Options) (*Sink, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return nil, fmt.Errorf("memsink: invalid sink name %q", name)
	}
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Millisecond
	}

	s := &Sink{
		name: name,
		role: role,
		path: filepath.Join(opts.Dir, name+".sink"),
		poll: opts.PollInterval,
	}

	var err error
	switch role {
	case RoleProducer:
		err = s.openProducer(opts.Capacity)
	case RoleConsumer:
		err = s.openConsumer()
	default:
		err = fmt.Errorf("memsink: unknown role %d", role)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) openProducer(capacity int) error {
	file, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("memsink: can't create segment %s: %w", s.path, err)
	}

	lock := flock.New(s.path)
	locked, err := lock.TryLock()
	if err != nil {
		file.Close()
		return fmt.Errorf("memsink: can't lock segment %s: %w", s.path, err)
	}
	if !locked {
		file.Close()
		return fmt.Errorf("%w: %s", ErrSinkBusy, s.path)
	}

	size := headerSize + capacity
	if err := file.Truncate(int64(size)); err != nil {
		lock.Unlock()
		file.Close()
		return fmt.Errorf("memsink: can't size segment to %d bytes: %w", size, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		lock.Unlock()
		file.Close()
		return fmt.Errorf("memsink: mmap failed: %w", err)
	}

	s.file = file
	s.lock = lock
	s.seg = segment{mem: mem}

	// Fresh segment: reset the seqlock before stamping the header so a
	// concurrent consumer never pairs old data with the new magic.
	s.seg.storeU64(offSeq, 0)
	s.seg.storeU64(offHeartbeat, uint64(time.Now().UnixNano()))
	s.seg.storeU32(offVersion, segmentVersion)
	s.seg.storeU64(offMagic, segmentMagic)
	return nil
}

func (s *Sink) openConsumer() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("memsink: can't attach sink %q: %w", s.name, err)
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("memsink: can't stat segment: %w", err)
	}
	if fi.Size() < headerSize {
		file.Close()
		return fmt.Errorf("%w: segment too small (%d bytes)", ErrBadSegment, fi.Size())
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return fmt.Errorf("memsink: mmap failed: %w", err)
	}

	seg := segment{mem: mem}
	if seg.loadU64(offMagic) != segmentMagic {
		unix.Munmap(mem)
		file.Close()
		return fmt.Errorf("%w: bad magic", ErrBadSegment)
	}
	if v := seg.loadU32(offVersion); v != segmentVersion {
		unix.Munmap(mem)
		file.Close()
		return fmt.Errorf("%w: version %d, want %d", ErrBadSegment, v, segmentVersion)
	}

	s.file = file
	s.seg = seg
	return nil
}

// Put publishes a frame, overwriting whatever the segment held before.
// Producer only.
func (s *Sink) Put(f *frame.Frame) error {
	if s.role != RoleProducer {
		return errors.New("memsink: Put on a consumer attachment")
	}
	if s.closed {
		return errors.New("memsink: Put on closed sink")
	}
	if f.Used > s.seg.capacity() {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, f.Used, s.seg.capacity())
	}

	seq := s.seg.loadU64(offSeq)
	s.seg.storeU64(offSeq, seq+1) // odd: write in progress

	s.seg.storeU32(offWidth, f.Width)
	s.seg.storeU32(offHeight, f.Height)
	s.seg.storeU32(offFormat, uint32(f.Format))
	s.seg.storeU32(offStride, f.Stride)
	s.seg.storeU32(offOnline, boolU32(f.Online))
	s.seg.storeF64(offGrabTS, f.GrabTS)
	s.seg.storeF64(offEncBegin, f.EncodeBeginTS)
	s.seg.storeF64(offEncEnd, f.EncodeEndTS)
	s.seg.storeU64(offUsed, uint64(f.Used))
	copy(s.seg.data(), f.Payload())

	s.seg.storeU64(offHeartbeat, uint64(time.Now().UnixNano()))
	s.seg.storeU64(offSeq, seq+2) // even: stable
	return nil
}

// Get waits up to timeout for a frame newer than the last one this
// attachment returned, then mutates f in place with its data and metadata.
// The frame buffer grows as needed and is never shrunk. Returns ErrNoData
// when the window elapses with an alive producer, ErrProducerGone when the
// producer is detectably dead, or ctx.Err() on cancellation.
func (s *Sink) Get(ctx context.Context, f *frame.Frame, timeout time.Duration) error {
	if s.role != RoleConsumer {
		return errors.New("memsink: Get on a producer attachment")
	}
	if s.closed {
		return errors.New("memsink: Get on closed sink")
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		ok, err := s.tryRead(f)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			if s.producerGone() {
				return ErrProducerGone
			}
			return ErrNoData
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryRead performs one seqlock read attempt. It reports false when there is
// no new stable frame, retrying internally on torn reads.
func (s *Sink) tryRead(f *frame.Frame) (bool, error) {
	for {
		before := s.seg.loadU64(offSeq)
		if before == 0 || before%2 != 0 || before == s.lastSeq {
			return false, nil
		}

		used := int(s.seg.loadU64(offUsed))
		if used > s.seg.capacity() {
			return false, fmt.Errorf("%w: used %d > capacity %d", ErrBadSegment, used, s.seg.capacity())
		}

		f.Width = s.seg.loadU32(offWidth)
		f.Height = s.seg.loadU32(offHeight)
		f.Format = frame.FourCC(s.seg.loadU32(offFormat))
		f.Stride = s.seg.loadU32(offStride)
		f.Online = s.seg.loadU32(offOnline) != 0
		f.GrabTS = s.seg.loadF64(offGrabTS)
		f.EncodeBeginTS = s.seg.loadF64(offEncBegin)
		f.EncodeEndTS = s.seg.loadF64(offEncEnd)
		f.Ensure(used)
		copy(f.Data, s.seg.data()[:used])

		after := s.seg.loadU64(offSeq)
		if after == before {
			s.lastSeq = before
			return true, nil
		}
		// Torn read: the producer republished mid-copy. Go around.
	}
}

// producerGone checks liveness: if this process can take the exclusive
// segment lock, no producer holds it.
func (s *Sink) producerGone() bool {
	probe := flock.New(s.path)
	locked, err := probe.TryLock()
	if err != nil {
		return false
	}
	if locked {
		probe.Unlock()
		return true
	}
	return false
}

// Online reports the producer liveness flag of the last published frame.
func (s *Sink) Online() bool {
	return s.seg.loadU32(offOnline) != 0
}

// Name returns the channel name this sink is attached to.
func (s *Sink) Name() string {
	return s.name
}

// Close releases the attachment. A producer marks the stream offline and
// drops its lock; a consumer never structurally mutates the segment.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.role == RoleProducer {
		s.seg.storeU32(offOnline, 0)
	}

	var first error
	if err := unix.Munmap(s.seg.mem); err != nil && first == nil {
		first = err
	}
	s.seg.mem = nil
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && first == nil {
			first = err
		}
	}
	if err := s.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
