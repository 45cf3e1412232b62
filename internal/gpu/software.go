package gpu

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// SoftwareKernel is the Go body of a kernel executed by SoftwareDevice.
// Run is invoked once per thread group and loops over the group's threads.
type SoftwareKernel struct {
	GroupSize [3]int
	// Serial kernels run their groups one after another because groups
	// write overlapping memory.
	Serial bool
	// Bindings lists every buffer, texture or global the kernel reads.
	// Dispatch refuses to run while any of them is unset or released.
	Bindings []string
	Run      func(g *Group) error
}

// SoftwareProgram maps kernel names to their bodies.
type SoftwareProgram map[string]SoftwareKernel

// DispatchRecord is one entry of the software dispatch log.
type DispatchRecord struct {
	Kernel string
	Groups [3]int
}

// SoftwareDevice runs kernels on the CPU. Independent thread groups are
// spread over worker goroutines; Dispatch returns once all groups finish.
type SoftwareDevice struct {
	program    SoftwareProgram
	props      propertyTable
	kernels    []*softKernel
	kernelIDs  map[string]KernelID
	floats     map[PropertyID]float32
	ints       map[PropertyID]int32
	vectors    map[PropertyID]mgl32.Vec4
	workers    int
	dispatches []DispatchRecord
	released   bool
}

type softKernel struct {
	name     string
	def      SoftwareKernel
	buffers  map[PropertyID]*softBuffer
	textures map[PropertyID]*softTexture
}

type softBuffer struct {
	count    int
	stride   int
	words    []uint32
	writes   int
	released bool
}

func (b *softBuffer) Count() int     { return b.count }
func (b *softBuffer) Stride() int    { return b.stride }
func (b *softBuffer) Released() bool { return b.released }
func (b *softBuffer) Release() {
	b.released = true
	b.words = nil
}

type softTexture struct {
	desc     TextureDesc
	pix      []byte
	released bool
}

func (t *softTexture) Name() string       { return t.desc.Name }
func (t *softTexture) Size() int          { return t.desc.Size }
func (t *softTexture) Filter() FilterMode { return t.desc.Filter }
func (t *softTexture) Release() {
	t.released = true
	t.pix = nil
}

// NewSoftwareDevice returns a device executing program on the CPU.
func NewSoftwareDevice(program SoftwareProgram) *SoftwareDevice {
	return &SoftwareDevice{
		program:   program,
		kernelIDs: make(map[string]KernelID),
		floats:    make(map[PropertyID]float32),
		ints:      make(map[PropertyID]int32),
		vectors:   make(map[PropertyID]mgl32.Vec4),
		workers:   runtime.NumCPU(),
	}
}

// SetWorkers bounds the number of goroutines used per dispatch.
func (d *SoftwareDevice) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	d.workers = n
}

// Name reports "software".
func (d *SoftwareDevice) Name() string { return "software" }

// FindKernel resolves name against the program. The id is stable for the
// life of the device.
func (d *SoftwareDevice) FindKernel(name string) (KernelID, error) {
	if id, ok := d.kernelIDs[name]; ok {
		return id, nil
	}
	def, ok := d.program[name]
	if !ok || def.Run == nil {
		return -1, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	for i, n := range def.GroupSize {
		if n < 1 {
			def.GroupSize[i] = 1
		}
	}
	id := KernelID(len(d.kernels))
	d.kernels = append(d.kernels, &softKernel{
		name:     name,
		def:      def,
		buffers:  make(map[PropertyID]*softBuffer),
		textures: make(map[PropertyID]*softTexture),
	})
	d.kernelIDs[name] = id
	return id, nil
}

// PropertyID interns name. Unknown names are allocated, never rejected.
func (d *SoftwareDevice) PropertyID(name string) PropertyID { return d.props.id(name) }

// NewBuffer allocates count elements of stride bytes. Stride must be a
// multiple of 4.
func (d *SoftwareDevice) NewBuffer(count, stride int) (Buffer, error) {
	if d.released {
		return nil, ErrReleased
	}
	if count <= 0 || stride <= 0 || stride%4 != 0 {
		return nil, fmt.Errorf("gpu: invalid buffer shape %dx%d", count, stride)
	}
	return &softBuffer{
		count:  count,
		stride: stride,
		words:  make([]uint32, count*stride/4),
	}, nil
}

// NewTexture allocates a zeroed square RGBA8 texture.
func (d *SoftwareDevice) NewTexture(desc TextureDesc) (Texture, error) {
	if d.released {
		return nil, ErrReleased
	}
	if err := validateTextureDesc(desc); err != nil {
		return nil, err
	}
	return &softTexture{
		desc: desc,
		pix:  make([]byte, desc.Size*desc.Size*TexelBytes),
	}, nil
}

func (d *SoftwareDevice) buffer(b Buffer) (*softBuffer, error) {
	sb, ok := b.(*softBuffer)
	if !ok || sb == nil {
		return nil, errors.New("gpu: buffer does not belong to the software device")
	}
	if sb.released {
		return nil, ErrReleased
	}
	return sb, nil
}

func (d *SoftwareDevice) texture(t Texture) (*softTexture, error) {
	st, ok := t.(*softTexture)
	if !ok || st == nil {
		return nil, errors.New("gpu: texture does not belong to the software device")
	}
	if st.released {
		return nil, fmt.Errorf("%w: %s", ErrReleased, st.desc.Name)
	}
	return st, nil
}

// WriteFloat32 replaces the whole buffer; data must cover it exactly.
func (d *SoftwareDevice) WriteFloat32(b Buffer, data []float32) error {
	sb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(data) != len(sb.words) {
		return fmt.Errorf("%w: %d floats for %d words", ErrSizeMismatch, len(data), len(sb.words))
	}
	for i, v := range data {
		sb.words[i] = math.Float32bits(v)
	}
	sb.writes++
	return nil
}

// WriteInt32 replaces the whole buffer; data must cover it exactly.
func (d *SoftwareDevice) WriteInt32(b Buffer, data []int32) error {
	sb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(data) != len(sb.words) {
		return fmt.Errorf("%w: %d ints for %d words", ErrSizeMismatch, len(data), len(sb.words))
	}
	for i, v := range data {
		sb.words[i] = uint32(v)
	}
	sb.writes++
	return nil
}

// ReadFloat32 copies the whole buffer into dst.
func (d *SoftwareDevice) ReadFloat32(b Buffer, dst []float32) error {
	sb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(dst) != len(sb.words) {
		return ErrSizeMismatch
	}
	for i, w := range sb.words {
		dst[i] = math.Float32frombits(w)
	}
	return nil
}

// ReadInt32 copies the whole buffer into dst.
func (d *SoftwareDevice) ReadInt32(b Buffer, dst []int32) error {
	sb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(dst) != len(sb.words) {
		return ErrSizeMismatch
	}
	for i, w := range sb.words {
		dst[i] = int32(w)
	}
	return nil
}

// WriteTexture replaces every texel of t.
func (d *SoftwareDevice) WriteTexture(t Texture, pix []byte) error {
	st, err := d.texture(t)
	if err != nil {
		return err
	}
	if len(pix) != len(st.pix) {
		return fmt.Errorf("%w: %d bytes for %s", ErrSizeMismatch, len(pix), st.desc.Name)
	}
	copy(st.pix, pix)
	return nil
}

// ReadTexture copies every texel of t into dst.
func (d *SoftwareDevice) ReadTexture(t Texture, dst []byte) error {
	st, err := d.texture(t)
	if err != nil {
		return err
	}
	if len(dst) != len(st.pix) {
		return fmt.Errorf("%w: %d bytes for %s", ErrSizeMismatch, len(dst), st.desc.Name)
	}
	copy(dst, st.pix)
	return nil
}

func (d *SoftwareDevice) kernel(k KernelID) (*softKernel, error) {
	if int(k) < 0 || int(k) >= len(d.kernels) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownKernel, k)
	}
	return d.kernels[k], nil
}

// SetBuffer binds b to property p of kernel k, replacing any texture bound
// under the same name.
func (d *SoftwareDevice) SetBuffer(k KernelID, p PropertyID, b Buffer) error {
	kern, err := d.kernel(k)
	if err != nil {
		return err
	}
	sb, err := d.buffer(b)
	if err != nil {
		return err
	}
	delete(kern.textures, p)
	kern.buffers[p] = sb
	return nil
}

// SetTexture binds t to property p of kernel k, replacing any buffer bound
// under the same name.
func (d *SoftwareDevice) SetTexture(k KernelID, p PropertyID, t Texture) error {
	kern, err := d.kernel(k)
	if err != nil {
		return err
	}
	st, err := d.texture(t)
	if err != nil {
		return err
	}
	delete(kern.buffers, p)
	kern.textures[p] = st
	return nil
}

// SetFloat sets a global visible to every kernel.
func (d *SoftwareDevice) SetFloat(p PropertyID, v float32) error {
	d.floats[p] = v
	return nil
}

// SetInt sets a global visible to every kernel.
func (d *SoftwareDevice) SetInt(p PropertyID, v int32) error {
	d.ints[p] = v
	return nil
}

// SetVector sets a global visible to every kernel.
func (d *SoftwareDevice) SetVector(p PropertyID, v mgl32.Vec4) error {
	d.vectors[p] = v
	return nil
}

func (d *SoftwareDevice) checkBindings(kern *softKernel) error {
	for _, name := range kern.def.Bindings {
		id, ok := d.props.ids[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnbound, name)
		}
		if b, ok := kern.buffers[id]; ok {
			if b.released {
				return fmt.Errorf("%w: buffer %s", ErrReleased, name)
			}
			continue
		}
		if t, ok := kern.textures[id]; ok {
			if t.released {
				return fmt.Errorf("%w: texture %s", ErrReleased, name)
			}
			continue
		}
		_, isFloat := d.floats[id]
		_, isInt := d.ints[id]
		_, isVec := d.vectors[id]
		if !isFloat && !isInt && !isVec {
			return fmt.Errorf("%w: %s", ErrUnbound, name)
		}
	}
	return nil
}

// Dispatch runs kernel k over an x*y*z grid of groups and returns when all
// of them finished. Every binding the kernel declares must be set and live.
func (d *SoftwareDevice) Dispatch(k KernelID, x, y, z int) error {
	if d.released {
		return ErrReleased
	}
	kern, err := d.kernel(k)
	if err != nil {
		return err
	}
	if x < 1 || y < 1 || z < 1 {
		return fmt.Errorf("gpu: invalid dispatch grid %dx%dx%d for %s", x, y, z, kern.name)
	}
	if err := d.checkBindings(kern); err != nil {
		return fmt.Errorf("dispatching %s: %w", kern.name, err)
	}
	d.dispatches = append(d.dispatches, DispatchRecord{Kernel: kern.name, Groups: [3]int{x, y, z}})

	total := x * y * z
	group := func(i int) *Group {
		return &Group{
			ID:   [3]int{i % x, (i / x) % y, i / (x * y)},
			Size: kern.def.GroupSize,
			k:    kern,
			d:    d,
		}
	}
	workers := min(d.workers, total)
	if kern.def.Serial || workers <= 1 {
		for i := 0; i < total; i++ {
			if err := kern.def.Run(group(i)); err != nil {
				return fmt.Errorf("running %s: %w", kern.name, err)
			}
		}
		return nil
	}
	per := (total + workers - 1) / workers
	var eg errgroup.Group
	for start := 0; start < total; start += per {
		end := min(start+per, total)
		eg.Go(func() error {
			for i := start; i < end; i++ {
				if err := kern.def.Run(group(i)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("running %s: %w", kern.name, err)
	}
	return nil
}

// Dispatches returns a copy of the dispatch log.
func (d *SoftwareDevice) Dispatches() []DispatchRecord {
	out := make([]DispatchRecord, len(d.dispatches))
	copy(out, d.dispatches)
	return out
}

// ResetDispatches clears the dispatch log.
func (d *SoftwareDevice) ResetDispatches() { d.dispatches = d.dispatches[:0] }

// WriteCount reports how many uploads b has received.
func (d *SoftwareDevice) WriteCount(b Buffer) int {
	if sb, ok := b.(*softBuffer); ok {
		return sb.writes
	}
	return 0
}

// Release drops every binding. Resources created by the device must be
// released by their owners.
func (d *SoftwareDevice) Release() {
	d.released = true
	for _, k := range d.kernels {
		clear(k.buffers)
		clear(k.textures)
	}
}

// Group is the view a SoftwareKernel has of one thread group.
type Group struct {
	ID   [3]int
	Size [3]int
	k    *softKernel
	d    *SoftwareDevice
}

// Base returns the global id of the group's first thread.
func (g *Group) Base() [3]int {
	return [3]int{g.ID[0] * g.Size[0], g.ID[1] * g.Size[1], g.ID[2] * g.Size[2]}
}

func (g *Group) lookup(name string) (PropertyID, bool) {
	id, ok := g.d.props.ids[name]
	return id, ok
}

func (g *Group) Float(name string) float32 {
	id, ok := g.lookup(name)
	if !ok {
		return 0
	}
	return g.d.floats[id]
}

func (g *Group) Int(name string) int32 {
	id, ok := g.lookup(name)
	if !ok {
		return 0
	}
	return g.d.ints[id]
}

func (g *Group) Vector(name string) mgl32.Vec4 {
	id, ok := g.lookup(name)
	if !ok {
		return mgl32.Vec4{}
	}
	return g.d.vectors[id]
}

// Float32s returns the bound buffer as a float32 slice aliasing its memory.
func (g *Group) Float32s(name string) []float32 {
	id, ok := g.lookup(name)
	if !ok {
		return nil
	}
	b := g.k.buffers[id]
	if b == nil || len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.words[0])), len(b.words))
}

// Int32s returns the bound buffer as an int32 slice aliasing its memory.
func (g *Group) Int32s(name string) []int32 {
	id, ok := g.lookup(name)
	if !ok {
		return nil
	}
	b := g.k.buffers[id]
	if b == nil || len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.words[0])), len(b.words))
}

// Texels returns the bound texture's RGBA8 memory and side length.
func (g *Group) Texels(name string) ([]byte, int) {
	id, ok := g.lookup(name)
	if !ok {
		return nil, 0
	}
	t := g.k.textures[id]
	if t == nil {
		return nil, 0
	}
	return t.pix, t.desc.Size
}
