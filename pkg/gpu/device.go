package gpu

import (
	"image"

	"dvr/pkg/volume"
)

// Device abstracts the compute backend. The volume is uploaded once; result
// buffers hold one packed RGBA word per pixel.
type Device interface {
	// UploadVolume copies the intensity grid and the optional label grid
	UploadVolume(vol, labels *volume.Grid) error

	// AllocResult creates a width x height result buffer
	AllocResult(width, height int) (Handle, error)

	// FreeResult releases a result buffer
	FreeResult(h Handle)

	// Dispatch runs the ray casting kernel with in bound as the previous
	// frame and out as the target
	Dispatch(in, out Handle, p *KernelParams) error

	// Release frees every device resource
	Release()
}

// ResultReader is implemented by devices that can copy a result buffer back
// to host memory
type ResultReader interface {
	ReadResult(h Handle, dst *image.RGBA) error
}

// Storage buffer bindings shared by the kernel and the display pass
const (
	BindingPrevious = 1
	BindingCurrent  = 2
	BindingVolume   = 3
	BindingLabels   = 4
)
