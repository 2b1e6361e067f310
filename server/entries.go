package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/rdb"
	"github.com/ndlib/assetdb/util"
)

// ListEntriesHandler returns the metadata of every entry as JSON. The query
// parameter "prefix" limits the list to names starting with it.
func (s *RESTServer) ListEntriesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	prefix := r.URL.Query().Get("prefix")
	var result []rdb.EntryInfo
	s.withView(func(v *rdb.View) error {
		result = rdb.EntriesWithPrefix(v, prefix)
		return nil
	})
	if result == nil {
		result = []rdb.EntryInfo{}
	}
	writeJSON(w, result)
}

// EntryHandler returns the raw payload of one entry. The type tag is in the
// X-Type-Tag header and the ETag is the xxhash of the payload.
func (s *RESTServer) EntryHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// the star parameter in httprouter returns the leading slash
	name := strings.TrimPrefix(ps.ByName("name"), "/")
	err := s.withView(func(v *rdb.View) error {
		info, data, err := v.Lookup(name)
		if err != nil {
			return err
		}
		hw := util.NewHashWriterPlain()
		hw.Write(data)
		etag := fmt.Sprintf(`"%016x"`, hw.Sum64())
		w.Header().Set("ETag", etag)
		w.Header().Set("X-Type-Tag", fmt.Sprintf("%08x", info.TypeTag))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
		if r.Method == "HEAD" {
			return nil
		}
		// the slice is only valid while the view is held
		_, err = w.Write(data)
		return err
	})
	if errors.Is(err, rdb.ErrNotFound) {
		writeError(w, 404, err)
	} else if err != nil {
		s.log.Warnf("entry %s: %s", name, err)
	}
}
