package reader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/achilleasa/rtdenoise/asset"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
)

const triangleObj = `
o testObj
v 0 0 0
v 1 0 0
v 0 1 0
vn 1 0 0
vt 0 0
vn 0 1 0
vt 0 1
vn 0 1 0
vt 1 0
vn 0 0 1
# Comment
f 1/1/1 2/2/2 -1/-1/-1
`

func mockResource(payload string) *asset.Resource {
	return asset.NewResourceFromStream("embedded", strings.NewReader(payload))
}

func TestFloat32Parser(t *testing.T) {
	expError := "unsupported syntax for 'v'; expected 1 argument; got 0"
	_, err := parseFloat32([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseFloat32([]string{"v", "not-a-float"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseFloat32([]string{"v", "3.14"})
	if err != nil {
		t.Fatal(err)
	}
	if v != 3.14 {
		t.Fatalf("expected parsed value to be 3.14; got %f", v)
	}
}

func TestVec2Parser(t *testing.T) {
	expError := "unsupported syntax for 'v'; expected 2 arguments; got 0"
	_, err := parseVec2([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	v, err := parseVec2([]string{"v", "3.14", "0"})
	if err != nil {
		t.Fatal(err)
	}
	expVal := types.Vec2{3.14, 0}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestVec3Parser(t *testing.T) {
	expError := "unsupported syntax for 'v'; expected 3 arguments; got 0"
	_, err := parseVec3([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseVec3([]string{"v", "not-a-float", "2", "3"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseVec3([]string{"v", "3.14", "0", "0.4"})
	if err != nil {
		t.Fatal(err)
	}
	expVal := types.Vec3{3.14, 0, 0.4}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestSelectFaceCoordinate(t *testing.T) {
	expError := "index out of bounds"
	type spec struct {
		in       string
		listLen  int
		out      int
		expError string
	}
	specs := []spec{
		{"2", 1, -1, expError},
		{"-2", 1, -1, expError},
		{"1", 10, 0, ""}, // indices are 1-based
		{"-1", 10, 9, ""},
	}

	for idx, s := range specs {
		v, err := selectFaceCoordIndex(s.in, s.listLen)
		if s.expError != "" && (err == nil || err.Error() != s.expError) {
			t.Fatalf("[spec %d] expected error %s; got %v", idx, s.expError, err)
		} else if v != s.out {
			t.Fatalf("[spec %d] expected index to be %d; got %d", idx, s.out, v)
		}
	}
}

func TestParseSingleFacedObject(t *testing.T) {
	sc, err := Read(mockResource(triangleObj))
	if err != nil {
		t.Fatal(err)
	}

	if len(sc.Meshes) != 1 {
		t.Fatalf("expected 1 mesh to be parsed; got %d", len(sc.Meshes))
	}
	mesh0 := sc.Meshes[0]
	if mesh0.Name != "testObj" {
		t.Fatalf("expected mesh[0] name to be 'testObj'; got %s", mesh0.Name)
	}
	if len(mesh0.Indices) != 3 {
		t.Fatalf("expected mesh[0] to contain 1 triangle; got %d indices", len(mesh0.Indices))
	}
	if len(sc.Materials) != 1 {
		t.Fatalf("expected scene to contain 1 default material; got %d", len(sc.Materials))
	}

	expPoints := []types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	expNormals := []types.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	expUVs := []types.Vec2{{0, 0}, {0, 1}, {1, 0}}
	for idx := range expPoints {
		v := mesh0.Vertices[mesh0.Indices[idx]]
		if !reflect.DeepEqual(v.Position, expPoints[idx]) {
			t.Fatalf("expected vertex %d to be %v; got %v", idx, expPoints[idx], v.Position)
		}
		if !reflect.DeepEqual(v.Normal, expNormals[idx]) {
			t.Fatalf("expected normal %d to be %v; got %v", idx, expNormals[idx], v.Normal)
		}
		if !reflect.DeepEqual(v.TexC, expUVs[idx]) {
			t.Fatalf("expected uv %d to be %v; got %v", idx, expUVs[idx], v.TexC)
		}
	}

	if len(sc.Items) != 1 || sc.Items[0].World != mgl32.Ident4() {
		t.Fatalf("expected a single default instance with an identity transform; got %d items", len(sc.Items))
	}
	if sc.Camera == nil {
		t.Fatal("expected a camera framing the scene")
	}
	if err = sc.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestMeshInstancing(t *testing.T) {
	payload := triangleObj + `
# Mesh instances
instance testObj 	1 0 1	0 0 0 	1 1 1
instance testObj 	0 0 0	0 90 0 	1 1 1
instance testObj 	0 1 0	90 0 0	10 10 10
`
	sc, err := Read(mockResource(payload))
	if err != nil {
		t.Fatal(err)
	}

	if len(sc.Items) != 3 {
		t.Fatalf("expected 3 render items to be generated; got %d", len(sc.Items))
	}

	type spec struct {
		instance   int
		in, expOut mgl32.Vec3
	}
	specs := []spec{
		{0, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1}},
		{0, mgl32.Vec3{-1, 0, -1}, mgl32.Vec3{0, 0, 0}},
		{1, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{1, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}},
		{2, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 10}},
	}
	for idx, s := range specs {
		out := mgl32.TransformCoordinate(s.in, sc.Items[s.instance].World)
		if !out.ApproxEqualThreshold(s.expOut, 1e-3) {
			t.Fatalf("[spec %d] expected transformed point with instance %d matrix to be %v; got %v", idx, s.instance, s.expOut, out)
		}
	}
}

func TestUnknownInstanceMesh(t *testing.T) {
	_, err := Read(mockResource(triangleObj + "instance nope 0 0 0 0 0 0 1 1 1\n"))
	expError := "[embedded: 15] error: unknown mesh with name 'nope'"
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestQuadFacesAreTriangulated(t *testing.T) {
	payload := `
v 0 0 0
v 1 0 0
v 1 0 -1
v 0 0 -1
f 1 2 3 4
`
	sc, err := Read(mockResource(payload))
	if err != nil {
		t.Fatal(err)
	}
	mesh := sc.Meshes[0]
	if len(mesh.Indices) != 6 {
		t.Fatalf("expected quad to produce 2 triangles; got %d indices", len(mesh.Indices))
	}
	// Missing normals are generated from the winding.
	for idx, v := range mesh.Vertices {
		if !types.ApproxEqual(v.Normal, types.XYZ(0, 1, 0), 1e-5) {
			t.Fatalf("expected generated normal %d to point up; got %v", idx, v.Normal)
		}
	}
}

func TestObjectsSplitByMaterial(t *testing.T) {
	dir := t.TempDir()
	mtl := `
newmtl red
Kd 1 0 0
newmtl blue
Kd 0 0 1
`
	obj := `
mtllib scene.mtl
v 0 0 0
v 1 0 0
v 0 1 0
o thing
usemtl red
f 1 2 3
usemtl blue
f 1 3 2
`
	if err := os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(mtl), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scene.obj"), []byte(obj), 0o644); err != nil {
		t.Fatal(err)
	}

	sc, err := ReadFile(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Meshes) != 2 {
		t.Fatalf("expected one mesh per material; got %d", len(sc.Meshes))
	}
	if sc.Meshes[1].Name != "thing/blue" {
		t.Fatalf("expected second mesh to be named thing/blue; got %s", sc.Meshes[1].Name)
	}
	if len(sc.Items) != 2 {
		t.Fatalf("expected an item per mesh; got %d", len(sc.Items))
	}
	if mat := sc.Materials[sc.Items[1].MaterialIndex]; mat.Name != "blue" {
		t.Fatalf("expected item 1 to use material blue; got %s", mat.Name)
	}
}

func TestMaterialLoaderMissingNewMaterialCommand(t *testing.T) {
	err := newWavefrontReader().parseMaterials(mockResource(`Kd 1.0 1.0 1.0`))

	expError := "[embedded: 1] error: got 'Kd' without a 'newmtl'"
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderInvalidVec3Param(t *testing.T) {
	payload := `
	newmtl foo
	Kd 1.0`
	err := newWavefrontReader().parseMaterials(mockResource(payload))

	expError := "[embedded: 3] error: unsupported syntax for 'Kd'; expected 3 arguments; got 1"
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderSuccess(t *testing.T) {
	payload := `
	# comment
	newmtl foo
	Kd 1.0 1.0 1.0
	Ni 1.5
	Nr 0.25
	Pm 1
	newmtl bar
	Ks 0.1 0.2 0.3`
	r := newWavefrontReader()
	if err := r.parseMaterials(mockResource(payload)); err != nil {
		t.Fatal(err)
	}

	if len(r.sceneGraph.Materials) != 2 {
		t.Fatalf("expected to parse 2 materials; got %d", len(r.sceneGraph.Materials))
	}

	mat := r.sceneGraph.Materials[0]
	if mat.Name != "foo" {
		t.Fatalf("expected material name to be 'foo'; got %s", mat.Name)
	}
	if !reflect.DeepEqual(mat.Albedo, types.Vec3{1, 1, 1}) {
		t.Fatalf("expected albedo to be (1, 1, 1); got %v", mat.Albedo)
	}
	if !types.ApproxEqual(mat.FresnelR0, types.XYZ(0.04, 0.04, 0.04), 1e-5) {
		t.Fatalf("expected fresnel derived from IOR to be 0.04; got %v", mat.FresnelR0)
	}
	if mat.Roughness != 0.25 || mat.Metalness != 1 {
		t.Fatalf("expected roughness 0.25 and metalness 1; got %f and %f", mat.Roughness, mat.Metalness)
	}

	mat = r.sceneGraph.Materials[1]
	if !reflect.DeepEqual(mat.FresnelR0, types.Vec3{0.1, 0.2, 0.3}) {
		t.Fatalf("expected Ks to be (0.1, 0.2, 0.3); got %v", mat.FresnelR0)
	}
}

func TestMaterialLoaderWithRemoteTexture(t *testing.T) {
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				img.Set(x, y, color.NRGBA{G: 255, A: 255})
			}
		}
		var buf bytes.Buffer
		png.Encode(&buf, img)
		w.Write(buf.Bytes())
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	payload := `
newmtl foo
Kd 0.5 0.5 0.5
map_Kd SERVER/kd.png
`
	r := newWavefrontReader()
	if err := r.parseMaterials(mockResource(strings.Replace(payload, "SERVER", server.URL, -1))); err != nil {
		t.Fatal(err)
	}

	exp := types.XYZ(0, 0.5, 0)
	if !types.ApproxEqual(r.sceneGraph.Materials[0].Albedo, exp, 1e-3) {
		t.Fatalf("expected albedo to be modulated to %v; got %v", exp, r.sceneGraph.Materials[0].Albedo)
	}
}

func TestMaterialLoaderWithMissingTextures(t *testing.T) {
	dir := t.TempDir()
	mtlPath := filepath.Join(dir, "scene.mtl")
	if err := os.WriteFile(mtlPath, []byte("newmtl foo\nmap_Kd invalid.png\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := asset.NewResource(mtlPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	r := newWavefrontReader()
	if err = r.parseMaterials(res); err != nil {
		t.Fatal(err)
	}
	if len(r.sceneGraph.Materials) != 1 {
		t.Fatalf("expected material to be parsed; got %d", len(r.sceneGraph.Materials))
	}
}
