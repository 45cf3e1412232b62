//go:build opencl

package gpu

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jgillich/go-opencl/cl"
)

type openCLDevice struct {
	context    *cl.Context
	queue      *cl.CommandQueue
	program    *cl.Program
	layouts    map[string]CLKernel
	deviceName string
	props      propertyTable
	kernels    []*clKernel
	kernelIDs  map[string]KernelID
	globals    map[PropertyID]any
}

type clKernel struct {
	name   string
	kernel *cl.Kernel
	layout CLKernel
	args   []PropertyID
	bound  []clResource
}

// clResource is whatever currently backs a kernel argument. Scalars are
// recorded as clScalar so Dispatch can tell set arguments from unset ones.
type clResource interface {
	isReleased() bool
}

type clScalar struct{}

func (clScalar) isReleased() bool { return false }

type clBuffer struct {
	mem      *cl.MemObject
	count    int
	stride   int
	released bool
}

func (b *clBuffer) Count() int       { return b.count }
func (b *clBuffer) Stride() int      { return b.stride }
func (b *clBuffer) Released() bool   { return b.released }
func (b *clBuffer) isReleased() bool { return b.released }
func (b *clBuffer) Release() {
	if b.mem != nil {
		b.mem.Release()
		b.mem = nil
	}
	b.released = true
}

// clTexture is an RGBA8 texture stored as a uchar4 buffer in row-major order.
type clTexture struct {
	mem      *cl.MemObject
	desc     TextureDesc
	released bool
}

func (t *clTexture) Name() string       { return t.desc.Name }
func (t *clTexture) Size() int          { return t.desc.Size }
func (t *clTexture) Filter() FilterMode { return t.desc.Filter }
func (t *clTexture) isReleased() bool   { return t.released }
func (t *clTexture) Release() {
	if t.mem != nil {
		t.mem.Release()
		t.mem = nil
	}
	t.released = true
}

// NewOpenCLDevice compiles prog on the first GPU device found, falling back
// to a CPU device.
func NewOpenCLDevice(prog CLProgram) (Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no OpenCL platforms available", ErrUnavailable)
	}
	device := pickDevice(platforms, cl.DeviceTypeGPU)
	if device == nil {
		device = pickDevice(platforms, cl.DeviceTypeCPU)
	}
	if device == nil {
		return nil, fmt.Errorf("%w: no suitable OpenCL devices found", ErrUnavailable)
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	program, err := context.CreateProgramWithSource([]string{prog.Source})
	if err != nil {
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		program.Release()
		queue.Release()
		context.Release()
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	return &openCLDevice{
		context:    context,
		queue:      queue,
		program:    program,
		layouts:    prog.Kernels,
		deviceName: device.Name(),
		kernelIDs:  make(map[string]KernelID),
		globals:    make(map[PropertyID]any),
	}, nil
}

func pickDevice(platforms []*cl.Platform, kind cl.DeviceType) *cl.Device {
	for _, p := range platforms {
		devices, err := p.GetDevices(kind)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0]
		}
	}
	return nil
}

func (d *openCLDevice) Name() string { return "opencl: " + d.deviceName }

func (d *openCLDevice) FindKernel(name string) (KernelID, error) {
	if id, ok := d.kernelIDs[name]; ok {
		return id, nil
	}
	layout, ok := d.layouts[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	kernel, err := d.program.CreateKernel(name)
	if err != nil {
		return -1, fmt.Errorf("creating kernel %s: %w", name, err)
	}
	k := &clKernel{
		name:   name,
		kernel: kernel,
		layout: layout,
		args:   make([]PropertyID, len(layout.Args)),
		bound:  make([]clResource, len(layout.Args)),
	}
	for i, arg := range layout.Args {
		k.args[i] = d.props.id(arg)
	}
	id := KernelID(len(d.kernels))
	d.kernels = append(d.kernels, k)
	d.kernelIDs[name] = id
	for p, v := range d.globals {
		if err := d.setGlobal(k, p, v); err != nil {
			return -1, err
		}
	}
	return id, nil
}

func (d *openCLDevice) PropertyID(name string) PropertyID { return d.props.id(name) }

func (d *openCLDevice) NewBuffer(count, stride int) (Buffer, error) {
	if count <= 0 || stride <= 0 {
		return nil, fmt.Errorf("gpu: invalid buffer shape %dx%d", count, stride)
	}
	mem, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, count*stride)
	if err != nil {
		return nil, fmt.Errorf("allocating buffer: %w", err)
	}
	return &clBuffer{mem: mem, count: count, stride: stride}, nil
}

func (d *openCLDevice) NewTexture(desc TextureDesc) (Texture, error) {
	if err := validateTextureDesc(desc); err != nil {
		return nil, err
	}
	flags := cl.MemReadOnly
	if desc.RandomWrite {
		flags = cl.MemReadWrite
	}
	mem, err := d.context.CreateEmptyBuffer(flags, desc.Size*desc.Size*TexelBytes)
	if err != nil {
		return nil, fmt.Errorf("allocating texture %s: %w", desc.Name, err)
	}
	return &clTexture{mem: mem, desc: desc}, nil
}

func (d *openCLDevice) buffer(b Buffer) (*clBuffer, error) {
	cb, ok := b.(*clBuffer)
	if !ok || cb == nil {
		return nil, errors.New("gpu: buffer does not belong to the OpenCL device")
	}
	if cb.released {
		return nil, ErrReleased
	}
	return cb, nil
}

func (d *openCLDevice) texture(t Texture) (*clTexture, error) {
	ct, ok := t.(*clTexture)
	if !ok || ct == nil {
		return nil, errors.New("gpu: texture does not belong to the OpenCL device")
	}
	if ct.released {
		return nil, fmt.Errorf("%w: %s", ErrReleased, ct.desc.Name)
	}
	return ct, nil
}

// write uploads host memory with a blocking copy; the driver owns the data
// once it returns, so callers may reuse their slices immediately.
func (d *openCLDevice) write(mem *cl.MemObject, want, got int, ptr unsafe.Pointer) error {
	if want != got {
		return fmt.Errorf("%w: %d bytes for %d", ErrSizeMismatch, got, want)
	}
	if _, err := d.queue.EnqueueWriteBuffer(mem, true, 0, got, ptr, nil); err != nil {
		return fmt.Errorf("writing buffer: %w", err)
	}
	return nil
}

func (d *openCLDevice) read(mem *cl.MemObject, want, got int, ptr unsafe.Pointer) error {
	if want != got {
		return fmt.Errorf("%w: %d bytes for %d", ErrSizeMismatch, got, want)
	}
	if _, err := d.queue.EnqueueReadBuffer(mem, true, 0, got, ptr, nil); err != nil {
		return fmt.Errorf("reading buffer: %w", err)
	}
	return nil
}

func (d *openCLDevice) WriteFloat32(b Buffer, data []float32) error {
	cb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrSizeMismatch
	}
	return d.write(cb.mem, cb.count*cb.stride, len(data)*4, unsafe.Pointer(&data[0]))
}

func (d *openCLDevice) WriteInt32(b Buffer, data []int32) error {
	cb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrSizeMismatch
	}
	return d.write(cb.mem, cb.count*cb.stride, len(data)*4, unsafe.Pointer(&data[0]))
}

func (d *openCLDevice) ReadFloat32(b Buffer, dst []float32) error {
	cb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return ErrSizeMismatch
	}
	return d.read(cb.mem, cb.count*cb.stride, len(dst)*4, unsafe.Pointer(&dst[0]))
}

func (d *openCLDevice) ReadInt32(b Buffer, dst []int32) error {
	cb, err := d.buffer(b)
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return ErrSizeMismatch
	}
	return d.read(cb.mem, cb.count*cb.stride, len(dst)*4, unsafe.Pointer(&dst[0]))
}

func (d *openCLDevice) WriteTexture(t Texture, pix []byte) error {
	ct, err := d.texture(t)
	if err != nil {
		return err
	}
	if len(pix) == 0 {
		return ErrSizeMismatch
	}
	size := ct.desc.Size * ct.desc.Size * TexelBytes
	return d.write(ct.mem, size, len(pix), unsafe.Pointer(&pix[0]))
}

func (d *openCLDevice) ReadTexture(t Texture, dst []byte) error {
	ct, err := d.texture(t)
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return ErrSizeMismatch
	}
	size := ct.desc.Size * ct.desc.Size * TexelBytes
	return d.read(ct.mem, size, len(dst), unsafe.Pointer(&dst[0]))
}

func (d *openCLDevice) kernel(k KernelID) (*clKernel, error) {
	if int(k) < 0 || int(k) >= len(d.kernels) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownKernel, k)
	}
	return d.kernels[k], nil
}

func (k *clKernel) argIndex(p PropertyID) int {
	for i, id := range k.args {
		if id == p {
			return i
		}
	}
	return -1
}

func (d *openCLDevice) SetBuffer(k KernelID, p PropertyID, b Buffer) error {
	kern, err := d.kernel(k)
	if err != nil {
		return err
	}
	cb, err := d.buffer(b)
	if err != nil {
		return err
	}
	idx := kern.argIndex(p)
	if idx < 0 {
		return fmt.Errorf("kernel %s has no argument %s", kern.name, d.props.name(p))
	}
	if err := kern.kernel.SetArgBuffer(idx, cb.mem); err != nil {
		return fmt.Errorf("binding %s to %s: %w", d.props.name(p), kern.name, err)
	}
	kern.bound[idx] = cb
	return nil
}

func (d *openCLDevice) SetTexture(k KernelID, p PropertyID, t Texture) error {
	kern, err := d.kernel(k)
	if err != nil {
		return err
	}
	ct, err := d.texture(t)
	if err != nil {
		return err
	}
	idx := kern.argIndex(p)
	if idx < 0 {
		return fmt.Errorf("kernel %s has no argument %s", kern.name, d.props.name(p))
	}
	if err := kern.kernel.SetArgBuffer(idx, ct.mem); err != nil {
		return fmt.Errorf("binding %s to %s: %w", d.props.name(p), kern.name, err)
	}
	kern.bound[idx] = ct
	return nil
}

func (d *openCLDevice) setGlobal(k *clKernel, p PropertyID, v any) error {
	idx := k.argIndex(p)
	if idx < 0 {
		return nil
	}
	var err error
	switch val := v.(type) {
	case float32:
		err = k.kernel.SetArgFloat32(idx, val)
	case int32:
		err = k.kernel.SetArgInt32(idx, val)
	case mgl32.Vec4:
		err = k.kernel.SetArgUnsafe(idx, int(unsafe.Sizeof(val)), unsafe.Pointer(&val[0]))
	default:
		err = fmt.Errorf("unsupported global type %T", v)
	}
	if err != nil {
		return fmt.Errorf("setting %s on %s: %w", d.props.name(p), k.name, err)
	}
	k.bound[idx] = clScalar{}
	return nil
}

func (d *openCLDevice) setGlobalAll(p PropertyID, v any) error {
	d.globals[p] = v
	for _, k := range d.kernels {
		if err := d.setGlobal(k, p, v); err != nil {
			return err
		}
	}
	return nil
}

func (d *openCLDevice) SetFloat(p PropertyID, v float32) error     { return d.setGlobalAll(p, v) }
func (d *openCLDevice) SetInt(p PropertyID, v int32) error         { return d.setGlobalAll(p, v) }
func (d *openCLDevice) SetVector(p PropertyID, v mgl32.Vec4) error { return d.setGlobalAll(p, v) }

func (d *openCLDevice) Dispatch(k KernelID, x, y, z int) error {
	kern, err := d.kernel(k)
	if err != nil {
		return err
	}
	for i, res := range kern.bound {
		if res == nil {
			return fmt.Errorf("dispatching %s: %w: %s", kern.name, ErrUnbound, kern.layout.Args[i])
		}
		if res.isReleased() {
			return fmt.Errorf("dispatching %s: %w: %s", kern.name, ErrReleased, kern.layout.Args[i])
		}
	}
	groups := []int{x, y, z}
	local := kern.layout.LocalSize
	global := make([]int, len(local))
	for i := range local {
		global[i] = groups[i] * local[i]
	}
	for i := len(local); i < len(groups); i++ {
		if groups[i] != 1 {
			return fmt.Errorf("gpu: kernel %s is %d-dimensional, got %d groups in dim %d", kern.name, len(local), groups[i], i)
		}
	}
	if _, err := d.queue.EnqueueNDRangeKernel(kern.kernel, nil, global, local, nil); err != nil {
		return fmt.Errorf("enqueueing %s: %w", kern.name, err)
	}
	return nil
}

func (d *openCLDevice) Release() {
	for _, k := range d.kernels {
		if k.kernel != nil {
			k.kernel.Release()
			k.kernel = nil
		}
	}
	d.kernels = nil
	if d.program != nil {
		d.program.Release()
		d.program = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.context != nil {
		d.context.Release()
		d.context = nil
	}
}
