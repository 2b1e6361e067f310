package server

import (
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // for pprof server

	"github.com/julienschmidt/httprouter"
)

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		// raw store access
		{"GET", "/entries", RoleRead, s.ListEntriesHandler},
		{"GET", "/entry/*name", RoleRead, s.EntryHandler},
		{"HEAD", "/entry/*name", RoleRead, s.EntryHandler},

		// device uploads through the asset library
		{"GET", "/geometry/*name", RoleRead, s.GeometryHandler},
		{"GET", "/model/*name", RoleRead, s.ModelHandler},
		{"GET", "/library", RoleRead, s.LibraryHandler},

		// terrain
		{"GET", "/terrain/:project/artifacts", RoleRead, s.ArtifactsHandler},
		{"GET", "/terrain/:project/state/:coord", RoleRead, s.ChunkStateHandler},
		{"GET", "/terrain/:project/journal", RoleRead, s.JournalHandler},
		{"POST", "/terrain/:project/build", RoleBuild, s.BuildHandler},
		{"POST", "/terrain/:project/ops", RoleBuild, s.ImportOpsHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			s.logWrapper(s.gateWrapper(s.authzWrapper(route.handler, route.role))))
	}
	return r
}

// General route handlers and convenience functions

// WelcomeHandler reports the server version.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "assetdb (%s)\n", Version)
}

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// this code is taken from the stdlib expvar package.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

func writeJSON(w http.ResponseWriter, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(val)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	fmt.Fprintln(w, err.Error())
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenDecode(token)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if role < leastRole {
			w.WriteHeader(401)
			fmt.Fprintln(w, "Forbidden")
			return
		}
		// replace any username the client sent
		for i := range ps {
			if ps[i].Key == "username" {
				ps[i].Value = user
				handler(w, r, ps)
				return
			}
		}
		ps = append(ps, httprouter.Param{Key: "username", Value: user})
		handler(w, r, ps)
	}
}

// gateWrapper limits the number of handlers running at once.
func (s *RESTServer) gateWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !s.gate.Enter() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "Shutting down")
			return
		}
		defer s.gate.Leave()
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func (s *RESTServer) logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.log.Infof("%s %s", r.Method, r.URL)
		handler(w, r, ps)
	}
}
