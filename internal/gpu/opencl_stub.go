//go:build !opencl

package gpu

import "fmt"

// NewOpenCLDevice is unavailable without the opencl build tag.
func NewOpenCLDevice(CLProgram) (Device, error) {
	return nil, fmt.Errorf("%w: OpenCL support is not enabled; rebuild with -tags opencl", ErrUnavailable)
}
