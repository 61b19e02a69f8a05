package asset

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalRelativeResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "materials"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scene.obj"), []byte("o box"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "materials", "box.mtl"), []byte("newmtl box"), 0o644); err != nil {
		t.Fatal(err)
	}

	sceneRes, err := NewResource(filepath.Join(dir, "scene.obj"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sceneRes.Close()

	matRes, err := NewResource("materials/box.mtl", sceneRes)
	if err != nil {
		t.Fatal(err)
	}
	defer matRes.Close()

	data, err := io.ReadAll(matRes)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "newmtl box" {
		t.Fatalf("expected to read material library contents; got %q", data)
	}
	if matRes.Name() != "box.mtl" {
		t.Fatalf("expected resource name to be box.mtl; got %s", matRes.Name())
	}
}

func TestRemoteRelativeResources(t *testing.T) {
	serverHits := 0
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHits++
		switch r.URL.Path {
		case "/foo/scene.obj", "/foo/lib/scene.mtl":
			w.Write([]byte("OK"))
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	res1, err := NewResource(server.URL+"/foo/scene.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res1.Close()
	if !res1.IsRemote() {
		t.Fatal("expected resource to be remote")
	}

	res2, err := NewResource("lib/scene.mtl", res1)
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Close()

	_, err = NewResource("missing.png", res1)
	if !errors.Is(err, ErrFetch) || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected a 404 fetch error; got %v", err)
	}

	if serverHits != 3 {
		t.Fatalf("expected server to receive 3 requests; got %d", serverHits)
	}
}

func TestUnsupportedResourceScheme(t *testing.T) {
	_, err := NewResource("gopher://digging.go", nil)
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected to get ErrUnsupportedScheme; got %v", err)
	}
}

func TestResourceFromStream(t *testing.T) {
	res := NewResourceFromStream("embedded.obj", strings.NewReader("v 0 0 0"))
	defer res.Close()

	if res.IsRemote() {
		t.Fatal("expected stream resource to be local")
	}
	if res.Path() != "embedded.obj" {
		t.Fatalf("expected path to be embedded.obj; got %s", res.Path())
	}
}
