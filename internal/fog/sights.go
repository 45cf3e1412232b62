package fog

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"fogofwar/internal/gpu"
)

// Binding names of the sight buffers.
const (
	PositionsName = "EyesightWorldPositions"
	RangesName    = "EyesightRanges"
)

const (
	positionStride = int(unsafe.Sizeof(mgl32.Vec2{}))
	rangeStride    = int(unsafe.Sizeof(int32(0)))
)

// SightSet mirrors a fixed number of visibility sources and keeps two device
// buffers in step with them. Positions are uploaded on every Sync; ranges
// only after they change.
//
// Slots are indexed in [0, Capacity()); any other index panics.
type SightSet struct {
	dev         gpu.Device
	positions   []mgl32.Vec2
	ranges      []int32
	rangesDirty bool
	positionBuf gpu.Buffer
	rangeBuf    gpu.Buffer
}

// NewSightSet allocates capacity slots, all inactive, and their buffers.
func NewSightSet(dev gpu.Device, capacity int) (*SightSet, error) {
	if capacity <= 0 || capacity%BatchSize != 0 {
		return nil, fmt.Errorf("%w: capacity %d must be a positive multiple of %d", ErrConfig, capacity, BatchSize)
	}
	positionBuf, err := dev.NewBuffer(capacity, positionStride)
	if err != nil {
		return nil, fmt.Errorf("allocating %s: %w", PositionsName, err)
	}
	rangeBuf, err := dev.NewBuffer(capacity, rangeStride)
	if err != nil {
		positionBuf.Release()
		return nil, fmt.Errorf("allocating %s: %w", RangesName, err)
	}
	return &SightSet{
		dev:         dev,
		positions:   make([]mgl32.Vec2, capacity),
		ranges:      make([]int32, capacity),
		rangesDirty: true,
		positionBuf: positionBuf,
		rangeBuf:    rangeBuf,
	}, nil
}

// Capacity is the number of slots, fixed at creation.
func (s *SightSet) Capacity() int { return len(s.positions) }

// SetRange sets the vision range of slot. Equal values are ignored so they
// do not trigger an upload.
func (s *SightSet) SetRange(slot int, value int32) {
	if s.ranges[slot] == value {
		return
	}
	s.ranges[slot] = value
	s.rangesDirty = true
}

// SetPosition sets the world X,Z position of slot.
func (s *SightSet) SetPosition(slot int, value mgl32.Vec2) {
	s.positions[slot] = value
}

// Range and Position return the host-side values, which may be ahead of the
// device copies until the next Sync.
func (s *SightSet) Range(slot int) int32         { return s.ranges[slot] }
func (s *SightSet) Position(slot int) mgl32.Vec2 { return s.positions[slot] }

// Dirty reports whether ranges changed since the last successful Sync.
func (s *SightSet) Dirty() bool { return s.rangesDirty }

// PositionBuffer and RangeBuffer are nil after Release.
func (s *SightSet) PositionBuffer() gpu.Buffer { return s.positionBuf }
func (s *SightSet) RangeBuffer() gpu.Buffer    { return s.rangeBuf }

// Sync uploads the slot data. It must run after the frame's Set calls and
// before any dispatch reading the buffers. Both buffers are checked before
// either is written, so a released buffer leaves the device copies as they
// were. The dirty flag is cleared only once both uploads succeeded, so a
// failed Sync is repeated in full.
func (s *SightSet) Sync() error {
	for _, b := range []gpu.Buffer{s.rangeBuf, s.positionBuf} {
		if b == nil || b.Released() {
			return fmt.Errorf("syncing sights: %w", gpu.ErrReleased)
		}
	}
	if s.rangesDirty {
		if err := s.dev.WriteInt32(s.rangeBuf, s.ranges); err != nil {
			return fmt.Errorf("uploading %s: %w", RangesName, err)
		}
	}
	flat := unsafe.Slice((*float32)(unsafe.Pointer(&s.positions[0])), 2*len(s.positions))
	if err := s.dev.WriteFloat32(s.positionBuf, flat); err != nil {
		return fmt.Errorf("uploading %s: %w", PositionsName, err)
	}
	s.rangesDirty = false
	return nil
}

// Release frees both buffers. The set must not be used afterwards.
func (s *SightSet) Release() {
	if s.positionBuf != nil {
		s.positionBuf.Release()
		s.positionBuf = nil
	}
	if s.rangeBuf != nil {
		s.rangeBuf.Release()
		s.rangeBuf = nil
	}
}
