// Package gpu is a thin compute-device layer: buffers, square RGBA8
// textures, named kernels with named bindings, and grid dispatches.
package gpu

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownKernel = errors.New("gpu: unknown kernel")
	ErrUnbound       = errors.New("gpu: kernel binding not set")
	ErrReleased      = errors.New("gpu: resource released")
	ErrSizeMismatch  = errors.New("gpu: data size mismatch")
	ErrUnavailable   = errors.New("gpu: backend unavailable")
)

// TexelBytes is the size of one RGBA8 texel.
const TexelBytes = 4

// FilterMode describes how a texture is sampled by consumers.
type FilterMode int

const (
	FilterPoint FilterMode = iota
	FilterBilinear
)

func (f FilterMode) String() string {
	switch f {
	case FilterPoint:
		return "point"
	case FilterBilinear:
		return "bilinear"
	}
	return "unknown"
}

// KernelID identifies a compute kernel resolved with Device.FindKernel.
type KernelID int

// PropertyID identifies a named binding or global parameter.
type PropertyID int

// TextureDesc describes a square RGBA8 texture.
type TextureDesc struct {
	Name        string
	Size        int
	Filter      FilterMode
	RandomWrite bool
	Mipmaps     bool
}

// Buffer is a fixed-size device buffer of Count elements of Stride bytes.
type Buffer interface {
	Count() int
	Stride() int
	// Released reports whether Release has been called.
	Released() bool
	Release()
}

// Texture is a square RGBA8 device texture.
type Texture interface {
	Name() string
	Size() int
	Filter() FilterMode
	Release()
}

// Device is a compute backend. A Device is owned by one goroutine; none of
// the methods are safe for concurrent use.
type Device interface {
	Name() string

	FindKernel(name string) (KernelID, error)
	PropertyID(name string) PropertyID

	NewBuffer(count, stride int) (Buffer, error)
	NewTexture(desc TextureDesc) (Texture, error)

	WriteFloat32(b Buffer, data []float32) error
	WriteInt32(b Buffer, data []int32) error
	ReadFloat32(b Buffer, dst []float32) error
	ReadInt32(b Buffer, dst []int32) error
	WriteTexture(t Texture, pix []byte) error
	ReadTexture(t Texture, dst []byte) error

	SetBuffer(k KernelID, p PropertyID, b Buffer) error
	SetTexture(k KernelID, p PropertyID, t Texture) error
	SetFloat(p PropertyID, v float32) error
	SetInt(p PropertyID, v int32) error
	SetVector(p PropertyID, v mgl32.Vec4) error

	// Dispatch enqueues kernel k over a grid of x*y*z thread groups. It does
	// not wait for completion.
	Dispatch(k KernelID, x, y, z int) error

	Release()
}

// propertyTable interns property names to stable ids.
type propertyTable struct {
	ids   map[string]PropertyID
	names []string
}

func (t *propertyTable) id(name string) PropertyID {
	if t.ids == nil {
		t.ids = make(map[string]PropertyID)
	}
	if id, ok := t.ids[name]; ok {
		return id
	}
	id := PropertyID(len(t.names))
	t.ids[name] = id
	t.names = append(t.names, name)
	return id
}

func (t *propertyTable) name(id PropertyID) string {
	if int(id) < 0 || int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

func validateTextureDesc(desc TextureDesc) error {
	if desc.Size <= 0 {
		return errors.New("gpu: texture size must be positive")
	}
	if desc.Mipmaps && desc.RandomWrite {
		return errors.New("gpu: random-write textures cannot have mipmaps")
	}
	return nil
}

// CLKernel describes the positional argument list of an OpenCL kernel. Args
// holds the binding name of each parameter; LocalSize is the work-group
// shape, one entry per grid dimension used.
type CLKernel struct {
	Args      []string
	LocalSize []int
}

// CLProgram is OpenCL C source plus the layout of each kernel it defines.
type CLProgram struct {
	Source  string
	Kernels map[string]CLKernel
}
