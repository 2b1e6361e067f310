package server

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/facebookgo/httpdown"
	"github.com/facebookgo/stats"
	raven "github.com/getsentry/raven-go"
	"github.com/golang/groupcache/singleflight"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/assets"
	"github.com/ndlib/assetdb/gpu"
	"github.com/ndlib/assetdb/journal"
	"github.com/ndlib/assetdb/rdb"
	"github.com/ndlib/assetdb/util"
)

// Version is reported by the welcome page.
var Version = "0.4.0"

// RESTServer serves a store file over HTTP and runs terrain builds against
// it.
//
// Set the public fields and then call Run. Run will listen on the given
// address and handle requests. Do not change any fields after calling Run.
//
// Reads are served from a memory map of the store file. Builds and op
// imports load the file into memory, change it, save it, and then remap it.
// Geometry requests upload through an asset library to Device, so repeated
// requests within UnloadDelay reuse what is already loaded.
type RESTServer struct {
	// Address to listen on. defaults to ":14000"
	Listen string

	// StorePath is the store file. It must exist.
	StorePath string

	// The most requests handled at once. The rest wait.
	MaxRequests int

	UnloadDelay    time.Duration
	SweepInterval  time.Duration
	ReloadInterval time.Duration // zero means never check the file

	// --- The following fields are optional. ---

	// Validator decodes the X-Api-Key header. If nil every request is
	// treated as coming from an admin.
	Validator TokenDecoder

	// Journal, if not nil, records every build batch.
	Journal journal.Journal

	// Device receives geometry uploads. If nil a headless device is used.
	Device gpu.Device

	// Stats receives counters. If nil they are published through expvar.
	Stats stats.Client

	log     *logger.L
	mu      sync.RWMutex // protects view, modtime and lib
	view    *rdb.View
	modtime time.Time
	lib     *assets.Library
	libmu   sync.Mutex // a Library is used by one goroutine at a time

	buildmu sync.Mutex        // one writer of the store file at a time
	builds  singleflight.Group // keyed by project and request
	uploads singleflight.Group // keyed by entry name

	gate   *util.Gate
	server httpdown.Server // used to close our listening socket
	stop   chan struct{}   // closed to stop the background goroutines
	wg     sync.WaitGroup
}

// ErrNoStore is returned when StorePath does not name a store file.
var ErrNoStore = errors.New("server: no store file")

// init sets the defaults and opens the store. It is separate from Run so
// tests can serve the routes without listening.
func (s *RESTServer) init() error {
	s.log = logger.New("server")
	if s.Listen == "" {
		s.Listen = ":14000"
	}
	if s.MaxRequests < 1 {
		s.MaxRequests = 10
	}
	if s.UnloadDelay == 0 {
		s.UnloadDelay = assets.DefaultUnloadDelay
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = time.Second
	}
	if s.Validator == nil {
		s.log.Infof("no validator given")
		s.Validator = NewNobodyDecoder()
	}
	if s.Device == nil {
		s.Device = gpu.NewHeadless()
	}
	if s.Stats == nil {
		s.Stats = expvarStats{}
	}
	if s.StorePath == "" {
		return ErrNoStore
	}
	s.gate = util.NewGate(s.MaxRequests)
	s.stop = make(chan struct{})
	return s.reload()
}

// Run initializes the server and starts the background goroutines. It then
// blocks listening for and handling http requests.
func (s *RESTServer) Run() error {
	if err := s.init(); err != nil {
		return err
	}
	s.log.Infof("starting version %s", Version)
	s.log.Infof("store = %s", s.StorePath)

	s.startBackground()

	s.log.Infof("listening on %s", s.Listen)
	h := httpdown.HTTP{}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    s.Listen,
		Handler: s.addRoutes(),
	})
	if err != nil {
		s.log.Errorf("listen: %s", err)
		return err
	}
	return s.server.Wait()
}

// Stop shuts the server down and returns when the background goroutines have
// exited and the socket is closed. Every loaded resource is destroyed.
func (s *RESTServer) Stop() error {
	close(s.stop)
	s.gate.Stop()
	s.wg.Wait()
	var err error
	if s.server != nil {
		err = s.server.Stop()
	}
	s.mu.Lock()
	s.closeStore()
	s.mu.Unlock()
	return err
}

func (s *RESTServer) startBackground() {
	s.wg.Add(1)
	go s.sweeper()
	if s.ReloadInterval > 0 {
		s.wg.Add(1)
		go s.watcher()
	}
}

// sweeper destroys released resources once their delay has passed.
func (s *RESTServer) sweeper() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *RESTServer) sweep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.libmu.Lock()
	defer s.libmu.Unlock()
	return s.lib.Sweep()
}

// watcher remaps the store when another program replaces the file.
func (s *RESTServer) watcher() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.ReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		fi, err := os.Stat(s.StorePath)
		if err != nil {
			s.log.Warnf("stat %s: %s", s.StorePath, err)
			continue
		}
		s.mu.RLock()
		changed := !fi.ModTime().Equal(s.modtime)
		s.mu.RUnlock()
		if !changed {
			continue
		}
		if err := s.reload(); err != nil {
			s.log.Errorf("reload: %s", err)
			raven.CaptureError(err, map[string]string{"store": s.StorePath})
		}
	}
}

// reload maps the store file again and replaces the library, since the old
// one reads from the old map.
func (s *RESTServer) reload() error {
	fi, err := os.Stat(s.StorePath)
	if err != nil {
		return errors.Wrap(ErrNoStore, err.Error())
	}
	view, err := rdb.Open(s.StorePath)
	if err != nil {
		return err
	}
	lib, err := assets.NewLibrary(s.Device, view)
	if err != nil {
		view.Close()
		return err
	}
	lib.UnloadDelay = s.UnloadDelay
	lib.Stats = s.Stats

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeStore()
	s.view = view
	s.lib = lib
	s.modtime = fi.ModTime()
	s.log.Infof("mapped %s: %d entries, %d bytes", s.StorePath, view.Len(), view.Size())
	return nil
}

// closeStore releases the current library and map. s.mu must be held.
func (s *RESTServer) closeStore() {
	if s.lib != nil {
		s.libmu.Lock()
		s.lib.Close()
		s.libmu.Unlock()
		s.lib = nil
	}
	if s.view != nil {
		if err := s.view.Close(); err != nil {
			s.log.Errorf("unmap: %s", err)
		}
		s.view = nil
	}
}

// withView calls f with the current store map held open.
func (s *RESTServer) withView(f func(v *rdb.View) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return f(s.view)
}

// modify loads the store file, applies f to it, and saves and remaps the
// file if f reports a change.
func (s *RESTServer) modify(f func(b *rdb.Builder) (bool, error)) error {
	s.buildmu.Lock()
	defer s.buildmu.Unlock()
	b, err := rdb.Load(s.StorePath)
	if err != nil {
		return err
	}
	changed, err := f(b)
	if err != nil || !changed {
		return err
	}
	if err := b.Save(s.StorePath); err != nil {
		return err
	}
	return s.reload()
}
