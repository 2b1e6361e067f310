package assets

import (
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/facebookgo/clock"
	"github.com/facebookgo/stats"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/gpu"
	"github.com/ndlib/assetdb/rdb"
	"github.com/ndlib/assetdb/rescache"
)

var (
	// ErrUpload means the device refused to create a resource.
	ErrUpload = errors.New("assets: upload failed")

	// ErrNotAcquired means a release had no matching acquire.
	ErrNotAcquired = errors.New("assets: resource was not acquired")

	// ErrNoDevice is returned by NewLibrary when given a nil device.
	ErrNoDevice = errors.New("assets: no device")
)

// DefaultUnloadDelay is how long an unreferenced resource stays on the
// device before a Sweep may destroy it.
const DefaultUnloadDelay = 2 * time.Second

// DeviceGeometry is a Geometry uploaded to a device.
type DeviceGeometry struct {
	Vertices   gpu.Buffer
	Indices    gpu.Buffer
	IndexCount int
	Material   string
}

// A Library uploads geometry and images from a store to a device on first
// use and shares them between users. Each resource is counted. After the
// last user releases it, it stays on the device for UnloadDelay so a quick
// reacquire does not pay for a new upload. Sweep destroys the resources
// whose delay has passed.
//
// A Library is not safe for concurrent use. It should be owned by the
// goroutine that drives the device. The device and the store must outlive
// the library.
type Library struct {
	// How long released resources stay loaded. Changing it only affects
	// later releases.
	UnloadDelay time.Duration

	// Clock gives the time used for unload deadlines.
	Clock clock.Clock

	// Stats, if not nil, receives upload and eviction counts.
	Stats stats.Client

	device   gpu.Device
	src      rdb.Source
	log      *logger.L
	geometry *rescache.Cache[*DeviceGeometry]
	images   *rescache.Cache[gpu.Image]
}

// NewLibrary returns a library reading records from src and creating
// resources on device. The library does not own either one.
func NewLibrary(device gpu.Device, src rdb.Source) (*Library, error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	return &Library{
		UnloadDelay: DefaultUnloadDelay,
		Clock:       clock.New(),
		device:      device,
		src:         src,
		log:         logger.New("assets"),
		geometry:    rescache.New[*DeviceGeometry](),
		images:      rescache.New[gpu.Image](),
	}, nil
}

// AcquireGeometry returns the device geometry for the entry called name,
// uploading it if this is the first reference. Each successful call must be
// balanced by a call to ReleaseGeometry.
func (lib *Library) AcquireGeometry(name string) (*DeviceGeometry, error) {
	return lib.geometry.InsertOrIncrement(name, func() (*DeviceGeometry, error) {
		g, err := rdb.Fetch[Geometry](lib.src, name)
		if err != nil {
			return nil, err
		}
		return lib.uploadGeometry(name, &g)
	})
}

func (lib *Library) uploadGeometry(name string, g *Geometry) (*DeviceGeometry, error) {
	vdata := g.VertexBytes()
	vb, err := lib.device.MakeBuffer(gpu.BufferDesc{
		Label: name,
		Usage: gpu.VertexBuffer,
		Size:  len(vdata),
	}, vdata)
	if err != nil {
		return nil, lib.uploadFailed(name, err)
	}
	idata := g.IndexBytes()
	ib, err := lib.device.MakeBuffer(gpu.BufferDesc{
		Label: name,
		Usage: gpu.IndexBuffer,
		Size:  len(idata),
	}, idata)
	if err != nil {
		lib.destroyFailed(name, lib.device.DestroyBuffer(vb))
		return nil, lib.uploadFailed(name, err)
	}
	stats.BumpSum(lib.Stats, "assets.upload", 1)
	stats.BumpSum(lib.Stats, "assets.upload.bytes", float64(len(vdata)+len(idata)))
	lib.log.Debugf("uploaded geometry %s: %d vertices %d indices", name, len(g.Vertices), len(g.Indices))
	return &DeviceGeometry{
		Vertices:   vb,
		Indices:    ib,
		IndexCount: len(g.Indices),
		Material:   g.Material,
	}, nil
}

// AcquireImage returns the device image for the entry called name,
// uploading it if this is the first reference. Each successful call must be
// balanced by a call to ReleaseImage.
func (lib *Library) AcquireImage(name string) (gpu.Image, error) {
	return lib.images.InsertOrIncrement(name, func() (gpu.Image, error) {
		img, err := rdb.Fetch[Image](lib.src, name)
		if err != nil {
			return gpu.Image{}, err
		}
		result, err := lib.device.MakeImage(gpu.ImageDesc{
			Label:  name,
			Width:  img.Width,
			Height: img.Height,
			Format: img.Format,
		}, img.Pixels)
		if err != nil {
			return gpu.Image{}, lib.uploadFailed(name, err)
		}
		stats.BumpSum(lib.Stats, "assets.upload", 1)
		stats.BumpSum(lib.Stats, "assets.upload.bytes", float64(len(img.Pixels)))
		lib.log.Debugf("uploaded image %s: %dx%d", name, img.Width, img.Height)
		return result, nil
	})
}

func (lib *Library) uploadFailed(name string, err error) error {
	stats.BumpSum(lib.Stats, "assets.upload.error", 1)
	lib.log.Errorf("upload %s: %s", name, err)
	return errors.Wrapf(ErrUpload, "%s: %s", name, err)
}

// destroyFailed reports a device which refused to destroy a resource. The
// resource is forgotten either way. A nil err is ignored.
func (lib *Library) destroyFailed(name string, err error) {
	if err == nil {
		return
	}
	stats.BumpSum(lib.Stats, "assets.destroy.error", 1)
	lib.log.Errorf("destroy %s: %s", name, err)
	raven.CaptureError(err, map[string]string{"resource": name})
}

// ReleaseGeometry drops one reference to the geometry called name.
func (lib *Library) ReleaseGeometry(name string) error {
	return lib.release("geometry", name, lib.geometry.Decrement)
}

// ReleaseImage drops one reference to the image called name.
func (lib *Library) ReleaseImage(name string) error {
	return lib.release("image", name, lib.images.Decrement)
}

func (lib *Library) release(kind, name string, decrement func(string, time.Time) (int, bool)) error {
	_, ok := decrement(name, lib.Clock.Now().Add(lib.UnloadDelay))
	if !ok {
		err := errors.Wrapf(ErrNotAcquired, "%s %s", kind, name)
		lib.log.Errorf("%s", err)
		raven.CaptureError(err, map[string]string{"kind": kind})
		return err
	}
	return nil
}

// Sweep destroys every resource whose unload delay has passed and returns
// how many were destroyed.
func (lib *Library) Sweep() int {
	now := lib.Clock.Now()
	return lib.destroy(lib.geometry.DrainExpired(now), lib.images.DrainExpired(now))
}

// Close destroys every resource, including ones still referenced. The
// library must not be used afterwards.
func (lib *Library) Close() {
	n := lib.destroy(lib.geometry.DrainAll(), lib.images.DrainAll())
	lib.log.Infof("closed, destroyed %d resources", n)
}

func (lib *Library) destroy(geometry []rescache.Evicted[*DeviceGeometry], images []rescache.Evicted[gpu.Image]) int {
	for _, ev := range geometry {
		lib.destroyFailed(ev.Key, lib.device.DestroyBuffer(ev.Payload.Vertices))
		lib.destroyFailed(ev.Key, lib.device.DestroyBuffer(ev.Payload.Indices))
		lib.log.Debugf("evicted geometry %s", ev.Key)
	}
	for _, ev := range images {
		lib.destroyFailed(ev.Key, lib.device.DestroyImage(ev.Payload))
		lib.log.Debugf("evicted image %s", ev.Key)
	}
	n := len(geometry) + len(images)
	if n > 0 {
		stats.BumpSum(lib.Stats, "assets.evict", float64(n))
	}
	return n
}

// Loaded returns the number of geometry and image resources on the device,
// including ones waiting to be swept.
func (lib *Library) Loaded() (geometry, images int) {
	return lib.geometry.Len(), lib.images.Len()
}
