package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBadSize means the data given to a Make call does not match the size in
// its description.
var ErrBadSize = errors.New("gpu: data does not match description")

// ErrNoSuchResource means a Destroy call named a handle which is not live.
var ErrNoSuchResource = errors.New("gpu: no such resource")

var _ Device = &Headless{}

// Headless is a Device that keeps resources in process memory only. It is
// used for dry runs of the upload path and in tests. It counts the live
// resources and their bytes so leaks are visible. A Headless is safe for
// concurrent use.
type Headless struct {
	// MaxBytes, if not zero, is a budget. Creating a resource which would
	// go over it fails, which mimics a device running out of memory.
	MaxBytes int

	m       sync.Mutex
	nextID  uint64
	buffers map[uint64]int
	images  map[uint64]int
	bytes   int
}

// NewHeadless returns an empty device with no memory budget.
func NewHeadless() *Headless {
	return &Headless{
		buffers: make(map[uint64]int),
		images:  make(map[uint64]int),
	}
}

// MakeBuffer records a new buffer. The data must be exactly desc.Size bytes.
func (h *Headless) MakeBuffer(desc BufferDesc, data []byte) (Buffer, error) {
	if len(data) != desc.Size {
		return Buffer{}, fmt.Errorf("%w: buffer %q has %d bytes, want %d", ErrBadSize, desc.Label, len(data), desc.Size)
	}
	h.m.Lock()
	defer h.m.Unlock()
	if err := h.reserve(desc.Size); err != nil {
		return Buffer{}, err
	}
	h.nextID++
	h.buffers[h.nextID] = desc.Size
	return Buffer{ID: h.nextID, Size: desc.Size}, nil
}

// MakeImage records a new image. The pixel data must match the size implied
// by the description.
func (h *Headless) MakeImage(desc ImageDesc, pixels []byte) (Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 || len(pixels) != desc.Size() {
		return Image{}, fmt.Errorf("%w: image %q has %d bytes, want %d", ErrBadSize, desc.Label, len(pixels), desc.Size())
	}
	h.m.Lock()
	defer h.m.Unlock()
	if err := h.reserve(len(pixels)); err != nil {
		return Image{}, err
	}
	h.nextID++
	h.images[h.nextID] = len(pixels)
	return Image{ID: h.nextID, Width: desc.Width, Height: desc.Height}, nil
}

func (h *Headless) reserve(n int) error {
	if h.buffers == nil {
		h.buffers = make(map[uint64]int)
		h.images = make(map[uint64]int)
	}
	if h.MaxBytes > 0 && h.bytes+n > h.MaxBytes {
		return fmt.Errorf("gpu: out of memory, %d bytes in use, %d requested", h.bytes, n)
	}
	h.bytes += n
	return nil
}

// DestroyBuffer frees b. Destroying an unknown buffer returns
// ErrNoSuchResource.
func (h *Headless) DestroyBuffer(b Buffer) error {
	h.m.Lock()
	defer h.m.Unlock()
	n, ok := h.buffers[b.ID]
	if !ok {
		return fmt.Errorf("buffer %d: %w", b.ID, ErrNoSuchResource)
	}
	h.bytes -= n
	delete(h.buffers, b.ID)
	return nil
}

// DestroyImage frees img. Destroying an unknown image returns
// ErrNoSuchResource.
func (h *Headless) DestroyImage(img Image) error {
	h.m.Lock()
	defer h.m.Unlock()
	n, ok := h.images[img.ID]
	if !ok {
		return fmt.Errorf("image %d: %w", img.ID, ErrNoSuchResource)
	}
	h.bytes -= n
	delete(h.images, img.ID)
	return nil
}

// Live returns the number of buffers and images currently allocated.
func (h *Headless) Live() (buffers, images int) {
	h.m.Lock()
	defer h.m.Unlock()
	return len(h.buffers), len(h.images)
}

// Bytes returns the number of bytes currently allocated.
func (h *Headless) Bytes() int {
	h.m.Lock()
	defer h.m.Unlock()
	return h.bytes
}
