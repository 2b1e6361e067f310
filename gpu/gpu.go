// Package gpu describes the rendering device the asset library uploads to.
//
// The device itself is outside this module. Code here only needs a way to
// create and destroy buffers and images, so that is all Device exposes. Every
// call is synchronous and may fail.
package gpu

//go:generate mockgen -destination=mocks/device.go -package=mocks github.com/ndlib/assetdb/gpu Device

import (
	"fmt"
)

// BufferUsage says how a buffer will be bound.
type BufferUsage int

const (
	VertexBuffer BufferUsage = iota
	IndexBuffer
	UniformBuffer
)

func (u BufferUsage) String() string {
	switch u {
	case VertexBuffer:
		return "vertex"
	case IndexBuffer:
		return "index"
	case UniformBuffer:
		return "uniform"
	}
	return fmt.Sprintf("BufferUsage(%d)", int(u))
}

// Format is a pixel format for images.
type Format int

const (
	RGBA8 Format = iota
	RGBA8SRGB
	R8
	RGBA32F
)

// BytesPerPixel returns the size of one pixel in the format.
func (f Format) BytesPerPixel() int {
	switch f {
	case RGBA8, RGBA8SRGB:
		return 4
	case R8:
		return 1
	case RGBA32F:
		return 16
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case RGBA8:
		return "rgba8"
	case RGBA8SRGB:
		return "rgba8-srgb"
	case R8:
		return "r8"
	case RGBA32F:
		return "rgba32f"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Usage BufferUsage
	Size  int
}

// ImageDesc describes an image to create.
type ImageDesc struct {
	Label  string
	Width  int
	Height int
	Format Format
}

// Size returns the number of bytes of pixel data the image needs.
func (d ImageDesc) Size() int {
	return d.Width * d.Height * d.Format.BytesPerPixel()
}

// Buffer is an opaque handle to a device buffer. The zero value is not a
// valid buffer.
type Buffer struct {
	ID   uint64
	Size int
}

// Image is an opaque handle to a device image. The zero value is not a valid
// image.
type Image struct {
	ID     uint64
	Width  int
	Height int
}

// Device creates and destroys resources. A Device must outlive every
// library or cache holding handles it created.
type Device interface {
	MakeBuffer(desc BufferDesc, data []byte) (Buffer, error)
	MakeImage(desc ImageDesc, pixels []byte) (Image, error)
	DestroyBuffer(b Buffer) error
	DestroyImage(img Image) error
}
