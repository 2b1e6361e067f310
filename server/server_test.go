package server

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ndlib/assetdb/assets"
	"github.com/ndlib/assetdb/fixtures"
	"github.com/ndlib/assetdb/journal"
	"github.com/ndlib/assetdb/rdb"
	"github.com/ndlib/assetdb/terrain"
)

var (
	testServer *httptest.Server
	testREST   *RESTServer
)

func TestMain(m *testing.M) {
	fixtures.SetupTestLogger("server")
	dir, err := ioutil.TempDir("", "server")
	if err != nil {
		panic(err)
	}
	testREST = setupServer(dir, nil)
	testServer = httptest.NewServer(testREST.addRoutes())
	rc := m.Run()
	testServer.Close()
	testREST.Stop()
	os.RemoveAll(dir)
	fixtures.TeardownTestLogger()
	os.Exit(rc)
}

// setupServer writes a store with the default assets, a model and a small
// terrain project into dir.
func setupServer(dir string, validator TokenDecoder) *RESTServer {
	b := rdb.NewBuilder()
	if err := assets.SeedDefaults(b); err != nil {
		panic(err)
	}
	err := b.Add(assets.ModelKey("crate"), assets.Model{
		Name: "crate",
		Parts: []assets.Part{
			{Name: "box", Parent: -1, Geometry: assets.GeometryKey("default/cube"), Material: assets.MaterialKey("default"), Transform: assets.Identity},
			{Name: "lid", Parent: 0, Geometry: assets.GeometryKey("default/quad"), Transform: assets.Identity},
		},
	})
	if err != nil {
		panic(err)
	}
	s := terrain.DefaultSettings("isle")
	s.TilesPerChunk = 4
	s.WorldBounds = terrain.Rect{Min: [2]float32{-8, -8}, Max: [2]float32{8, 8}}
	if err := terrain.SaveSettings(b, "isle", s); err != nil {
		panic(err)
	}
	if _, err := terrain.InitProject(b, "isle"); err != nil {
		panic(err)
	}
	path := filepath.Join(dir, "assets.rdb")
	if err := b.Save(path); err != nil {
		panic(err)
	}
	j, err := journal.Open("memory", "")
	if err != nil {
		panic(err)
	}
	rest := &RESTServer{
		StorePath:   path,
		Journal:     j,
		Validator:   validator,
		UnloadDelay: time.Millisecond,
	}
	if err := rest.init(); err != nil {
		panic(err)
	}
	return rest
}

func TestWelcome(t *testing.T) {
	text := getbody(t, "GET", "/", 200)
	if !strings.HasPrefix(text, "assetdb (") {
		t.Errorf("Received %q", text)
	}
	checkStatus(t, "GET", "/debug/vars", 200)
}

func TestEntries(t *testing.T) {
	var list []rdb.EntryInfo
	getjson(t, "GET", "/entries?prefix=geometry/default/", &list)
	if len(list) != 3 {
		t.Fatalf("Received %d entries, expected 3", len(list))
	}
	for _, e := range list {
		if !strings.HasPrefix(e.Name, "geometry/default/") {
			t.Errorf("Received %s", e.Name)
		}
	}
	getjson(t, "GET", "/entries?prefix=nothing/", &list)
	if len(list) != 0 {
		t.Errorf("Received %v, expected none", list)
	}
}

func TestEntry(t *testing.T) {
	resp := checkRoute(t, "GET", "/entry/geometry/default/quad", 200)
	if resp == nil {
		return
	}
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	etag := resp.Header.Get("ETag")
	if etag == "" || resp.Header.Get("X-Type-Tag") == "" {
		t.Errorf("Missing headers %v", resp.Header)
	}
	var want []byte
	testREST.withView(func(v *rdb.View) error {
		data, err := v.EntryBytes("geometry/default/quad")
		want = append(want, data...)
		return err
	})
	if string(body) != string(want) {
		t.Errorf("Received %d bytes, expected %d", len(body), len(want))
	}

	req, _ := http.NewRequest("GET", testServer.URL+"/entry/geometry/default/quad", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 304 {
		t.Errorf("Received %d, expected 304", resp.StatusCode)
	}

	checkStatus(t, "HEAD", "/entry/geometry/default/quad", 200)
	checkStatus(t, "GET", "/entry/geometry/default/qua", 404)
	checkStatus(t, "GET", "/entry/nothing", 404)
}

func TestGeometry(t *testing.T) {
	var info GeometryInfo
	getjson(t, "GET", "/geometry/geometry/default/quad", &info)
	if info.IndexCount != 6 || info.VertexBytes != 4*assets.VertexSize || info.IndexBytes != 24 {
		t.Errorf("Received %+v", info)
	}
	var lib LibraryInfo
	getjson(t, "GET", "/library", &lib)
	if lib.Geometry == 0 {
		t.Errorf("Received %+v, expected a loaded geometry", lib)
	}

	// released resources go away after the unload delay
	time.Sleep(5 * time.Millisecond)
	testREST.sweep()
	getjson(t, "GET", "/library", &lib)
	if lib.Geometry != 0 || lib.Images != 0 {
		t.Errorf("Received %+v, expected nothing loaded", lib)
	}

	checkStatus(t, "GET", "/geometry/geometry/none", 404)
	checkStatus(t, "GET", "/geometry/material/default", 400)
}

func TestModel(t *testing.T) {
	var info ModelInfo
	getjson(t, "GET", "/model/model/crate", &info)
	if len(info.Parts) != 2 {
		t.Fatalf("Received %+v", info)
	}
	if info.Parts[0].Name != "box" || info.Parts[0].Geometry.IndexCount != 36 {
		t.Errorf("Received %+v", info.Parts[0])
	}
	if info.Parts[1].Parent != 0 || info.Parts[1].Material != "default" {
		t.Errorf("Received %+v", info.Parts[1])
	}
	checkStatus(t, "GET", "/model/model/none", 404)
}

func TestBuild(t *testing.T) {
	var report terrain.BuildReport
	postjson(t, "/terrain/isle/build", `{"chunks": [{"x": 0, "y": 0}, {"x": 1, "y": 0, "lod": 1}]}`, 200, &report)
	if report.BuiltChunks != 2 {
		t.Errorf("Received %+v", report)
	}
	postjson(t, "/terrain/isle/build", `{"chunks": [{"x": 0, "y": 0}]}`, 200, &report)
	if report.BuiltChunks != 0 || report.SkippedChunks != 1 {
		t.Errorf("Received %+v", report)
	}

	var artifacts []ArtifactInfo
	getjson(t, "GET", "/terrain/isle/artifacts", &artifacts)
	if len(artifacts) != 2 {
		t.Errorf("Received %+v", artifacts)
	}

	var st terrain.ChunkState
	getjson(t, "GET", "/terrain/isle/state/0_0", &st)
	if st.IsDirty() || len(st.LastBuiltHashes) != 1 {
		t.Errorf("Received %+v", st)
	}
	checkStatus(t, "GET", "/terrain/isle/state/5_5", 404)
	checkStatus(t, "GET", "/terrain/isle/state/here", 400)

	var entries []journal.Entry
	getjson(t, "GET", "/terrain/isle/journal?limit=1", &entries)
	if len(entries) != 1 || entries[0].SkippedChunks != 1 {
		t.Errorf("Received %+v", entries)
	}
	checkStatus(t, "GET", "/terrain/isle/journal?limit=x", 400)

	postjson(t, "/terrain/nowhere/build", `{"chunks": [{"x": 0, "y": 0}]}`, 404, nil)
	postjson(t, "/terrain/isle/build", `{"chunks": [{"y": 0}]}`, 400, nil)
	postjson(t, "/terrain/isle/build", `not json`, 400, nil)
	postjson(t, "/terrain/isle/build", `{"all": true, "lod": 300}`, 400, nil)
	postjson(t, "/terrain/isle/build", `{"all": true, "lod": -1}`, 400, nil)
}

func TestBuildAll(t *testing.T) {
	var report terrain.BuildReport
	postjson(t, "/terrain/isle/build", `{"all": true, "lod": 2}`, 200, &report)
	// the world is four chunks wide
	if report.BuiltChunks+report.SkippedChunks != 16 {
		t.Errorf("Received %+v", report)
	}
}

func TestImportOps(t *testing.T) {
	postjson(t, "/terrain/isle/build", `{"chunks": [{"x": -1, "y": -1}]}`, 200, nil)

	var report terrain.ImportReport
	postjson(t, "/terrain/isle/ops", `{"layer": "base", "ops": [
		{"kind": "sphere_add", "center": [-2, 0, -2], "radius": 1, "strength": 2}]}`, 200, &report)
	if report.Imported != 1 || report.Dirtied != 1 {
		t.Errorf("Received %+v", report)
	}
	var st terrain.ChunkState
	getjson(t, "GET", "/terrain/isle/state/-1_-1", &st)
	if st.DirtyFlags&terrain.DirtyMutation == 0 {
		t.Errorf("Received %+v, expected dirty", st)
	}

	var built terrain.BuildReport
	postjson(t, "/terrain/isle/build", `{"chunks": [{"x": -1, "y": -1}]}`, 200, &built)
	if built.BuiltChunks != 1 {
		t.Errorf("Received %+v", built)
	}

	postjson(t, "/terrain/isle/ops", `{"layer": "nope", "ops": [
		{"kind": "smooth", "center": [0, 0, 0], "radius": 1}]}`, 404, nil)
	postjson(t, "/terrain/isle/ops", `{"ops": []}`, 400, nil)
}

func TestAuthorization(t *testing.T) {
	dir, err := ioutil.TempDir("", "server")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	d, _ := NewListDecoder(strings.NewReader("ann build 1234\nbob read 5678\n"))
	rest := setupServer(dir, d)
	defer rest.Stop()
	ts := httptest.NewServer(rest.addRoutes())
	defer ts.Close()

	var table = []struct {
		method string
		route  string
		key    string
		status int
	}{
		{"GET", "/", "", 200},
		{"GET", "/entries", "", 401},
		{"GET", "/entries", "0000", 401},
		{"GET", "/entries", "5678", 200},
		{"POST", "/terrain/isle/build", "5678", 401},
		{"POST", "/terrain/isle/build", "1234", 200},
	}
	for _, tab := range table {
		req, _ := http.NewRequest(tab.method, ts.URL+tab.route, strings.NewReader(`{"chunks": [{"x": 0, "y": 0}]}`))
		req.Header.Set("X-Api-Key", tab.key)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tab.status {
			t.Errorf("%s %s with %q: received %d, expected %d", tab.method, tab.route, tab.key, resp.StatusCode, tab.status)
		}
	}
}

func TestRequestKey(t *testing.T) {
	a := requestKey("isle", []terrain.BuildRequest{{Coord: terrain.ChunkCoord{X: 1}}, {LOD: 2}})
	b := requestKey("isle", []terrain.BuildRequest{{LOD: 2}, {Coord: terrain.ChunkCoord{X: 1}}})
	c := requestKey("dunes", []terrain.BuildRequest{{LOD: 2}, {Coord: terrain.ChunkCoord{X: 1}}})
	if a != b || a == c {
		t.Errorf("Received %q %q %q", a, b, c)
	}
}

func postjson(t *testing.T, route string, body string, expstatus int, out interface{}) {
	req, err := http.NewRequest("POST", testServer.URL+route, strings.NewReader(body))
	if err != nil {
		t.Fatal("Problem creating request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(route, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != expstatus {
		text, _ := ioutil.ReadAll(resp.Body)
		t.Errorf("%s: Expected status %d and received %d: %s", route, expstatus, resp.StatusCode, text)
		return
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Errorf("%s: %s", route, err)
		}
	}
}

func getjson(t *testing.T, verb, route string, out interface{}) {
	resp := checkRoute(t, verb, route, 200)
	if resp == nil {
		return
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Errorf("%s: %s", route, err)
	}
}

func getbody(t *testing.T, verb, route string, expstatus int) string {
	resp := checkRoute(t, verb, route, expstatus)
	if resp != nil {
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(route, err)
		}
		resp.Body.Close()
		return string(body)
	}
	return ""
}

func checkStatus(t *testing.T, verb, route string, expstatus int) {
	resp := checkRoute(t, verb, route, expstatus)
	if resp != nil {
		resp.Body.Close()
	}
}

func checkRoute(t *testing.T, verb, route string, expstatus int) *http.Response {
	req, err := http.NewRequest(verb, testServer.URL+route, nil)
	if err != nil {
		t.Fatal("Problem creating request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(route, err)
		return nil
	}
	if resp.StatusCode != expstatus {
		t.Errorf("%s: Expected status %d and received %d",
			route,
			expstatus,
			resp.StatusCode)
		resp.Body.Close()
		return nil
	}
	return resp
}
