package reader

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/rtdenoise/asset"
	"github.com/achilleasa/rtdenoise/asset/texture"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
)

// Faces of an object are grouped into one mesh per material since render
// items carry a single material.
type meshKey struct {
	object   string
	material uint32
}

type instanceDef struct {
	object    string
	transform mgl32.Mat4
}

type cameraDef struct {
	set  bool
	fov  float32
	eye  types.Vec3
	look types.Vec3
	up   types.Vec3
}

type wavefrontSceneReader struct {
	logger log.Logger

	// The parsed scene.
	sceneGraph *scene.Scene

	// A map of material names to material index.
	matNameToIndex map[string]uint32

	// Currently selected material index
	curMaterial int32

	// Currently selected object.
	curObject string

	meshes      map[meshKey]*scene.Mesh
	meshObjects []string
	instances   []instanceDef
	camera      cameraDef

	// List of vertices, normals and uv coords.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new wavefront scene reader.
func newWavefrontReader() *wavefrontSceneReader {
	return &wavefrontSceneReader{
		logger:         log.New("wavefront reader"),
		sceneGraph:     scene.NewScene(),
		matNameToIndex: make(map[string]uint32),
		curMaterial:    -1,
		curObject:      "default",
		meshes:         make(map[meshKey]*scene.Mesh),
		camera: cameraDef{
			fov:  45.0,
			look: types.XYZ(0, 0, -1),
			up:   types.XYZ(0, 1, 0),
		},
	}
}

// ReadFile parses a wavefront scene from a local path or an http(s) URL.
func ReadFile(pathToScene string) (*scene.Scene, error) {
	res, err := asset.NewResource(pathToScene, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	return Read(res)
}

// Read parses a wavefront scene from a resource. Referenced material
// libraries and included files are resolved relative to it.
func Read(res *asset.Resource) (*scene.Scene, error) {
	return newWavefrontReader().Read(res)
}

// Read scene definition.
func (r *wavefrontSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	r.logger.Noticef("parsing scene from %s", sceneRes.Path())
	start := time.Now()

	if err := r.parse(sceneRes); err != nil {
		return nil, err
	}
	if len(r.meshObjects) == 0 {
		return nil, r.emitError(sceneRes.Path(), 0, "scene does not define any faces")
	}

	// If no mesh instances are defined, create instances for each defined mesh
	if len(r.instances) == 0 {
		r.createDefaultMeshInstances()
	}
	if err := r.buildRenderItems(); err != nil {
		return nil, err
	}
	r.setupCamera()

	r.logger.Noticef("parsed scene in %d ms: %d meshes, %d materials, %d items",
		time.Since(start).Nanoseconds()/1000000,
		len(r.sceneGraph.Meshes), len(r.sceneGraph.Materials), len(r.sceneGraph.Items),
	)
	return r.sceneGraph, nil
}

// Generate a mesh instance with an identity transformation for each defined object.
func (r *wavefrontSceneReader) createDefaultMeshInstances() {
	seen := make(map[string]bool)
	for _, object := range r.meshObjects {
		if seen[object] {
			continue
		}
		seen[object] = true
		r.instances = append(r.instances, instanceDef{object: object, transform: mgl32.Ident4()})
	}
}

func (r *wavefrontSceneReader) buildRenderItems() error {
	for _, mesh := range r.sceneGraph.Meshes {
		if !r.hasNormals(mesh) {
			mesh.GenerateNormals()
		}
	}
	for instIndex, inst := range r.instances {
		for meshIndex, mesh := range r.sceneGraph.Meshes {
			if r.meshObjects[meshIndex] != inst.object {
				continue
			}
			item := &scene.RenderItem{
				Name:          fmt.Sprintf("%s#%d", mesh.Name, instIndex),
				Geometry:      mesh,
				MaterialIndex: r.meshMaterial(mesh),
				World:         inst.transform,
			}
			if err := r.sceneGraph.AddItem(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *wavefrontSceneReader) meshMaterial(mesh *scene.Mesh) uint32 {
	for key, m := range r.meshes {
		if m == mesh {
			return key.material
		}
	}
	return 0
}

// Faces without explicit normals get a zero normal while parsing.
func (r *wavefrontSceneReader) hasNormals(mesh *scene.Mesh) bool {
	for _, v := range mesh.Vertices {
		if v.Normal == (types.Vec3{}) {
			return false
		}
	}
	return true
}

// Attach a camera to the scene. Without explicit camera settings the camera
// frames the scene bounds.
func (r *wavefrontSceneReader) setupCamera() {
	cam := scene.NewCamera(r.camera.fov)
	cam.Up = mgl32.Vec3(r.camera.up)
	if r.camera.set {
		cam.Position = mgl32.Vec3(r.camera.eye)
		cam.LookAt = mgl32.Vec3(r.camera.look)
		r.sceneGraph.SetCamera(cam)
		return
	}

	bbox := r.sceneBBox()
	center := bbox[0].Add(bbox[1]).Mul(0.5)
	extent := bbox[1].Sub(bbox[0]).Len()
	if extent == 0 {
		extent = 1
	}
	cam.LookAt = mgl32.Vec3(center)
	cam.Position = mgl32.Vec3(center.Add(types.XYZ(0, 0.35*extent, extent)))
	cam.FarZ = 10 * extent
	r.sceneGraph.SetCamera(cam)
}

func (r *wavefrontSceneReader) sceneBBox() [2]types.Vec3 {
	var bbox [2]types.Vec3
	for i, item := range r.sceneGraph.Items {
		mb := item.Geometry.BBox()
		for corner := 0; corner < 8; corner++ {
			p := mgl32.Vec3{mb[corner&1][0], mb[(corner>>1)&1][1], mb[(corner>>2)&1][2]}
			wp := types.Vec3(mgl32.TransformCoordinate(p, item.World))
			if i == 0 && corner == 0 {
				bbox = [2]types.Vec3{wp, wp}
				continue
			}
			bbox[0] = types.MinVec3(bbox[0], wp)
			bbox[1] = types.MaxVec3(bbox[1], wp)
		}
	}
	return bbox
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = strings.Trim(
			fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	} else {
		errMsg = strings.Trim(
			fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	}

	return errors.New(errMsg)
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Create and select a default material for surfaces not using one.
func (r *wavefrontSceneReader) defaultMaterial() (int32, error) {
	matName := ""

	matIndex, exists := r.matNameToIndex[matName]
	if !exists {
		var err error
		if matIndex, err = r.sceneGraph.AddMaterial(scene.DefaultMaterial()); err != nil {
			return -1, err
		}
		r.matNameToIndex[matName] = matIndex
	}
	r.curMaterial = int32(matIndex)
	return r.curMaterial, nil
}

// Return the mesh collecting faces for the current object and material.
func (r *wavefrontSceneReader) currentMesh() (*scene.Mesh, error) {
	if r.curMaterial < 0 {
		if _, err := r.defaultMaterial(); err != nil {
			return nil, err
		}
	}
	key := meshKey{object: r.curObject, material: uint32(r.curMaterial)}
	if mesh, exists := r.meshes[key]; exists {
		return mesh, nil
	}

	name := r.curObject
	for _, object := range r.meshObjects {
		if object == r.curObject {
			name = fmt.Sprintf("%s/%s", r.curObject, r.sceneGraph.Materials[key.material].Name)
			break
		}
	}
	mesh := &scene.Mesh{Name: name}
	if err := r.sceneGraph.AddMesh(mesh); err != nil {
		return nil, err
	}
	r.meshes[key] = mesh
	r.meshObjects = append(r.meshObjects, r.curObject)
	return mesh, nil
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for '%s'; expected 1 argument; got %d", lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for 'usemtl'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			matName := lineTokens[1]
			matIndex, exists := r.matNameToIndex[matName]
			if !exists {
				return r.emitError(res.Path(), lineNum, "undefined material with name '%s'", matName)
			}
			r.curMaterial = int32(matIndex)
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.uvList = append(r.uvList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for '%s'; expected 1 argument for object name; got %d", lineTokens[0], len(lineTokens)-1)
			}
			r.curObject = lineTokens[1]
		case "f":
			if err = r.parseFace(lineTokens); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "camera_fov":
			r.camera.fov, err = parseFloat32(lineTokens)
		case "camera_eye":
			r.camera.eye, err = parseVec3(lineTokens)
			r.camera.set = true
		case "camera_look":
			r.camera.look, err = parseVec3(lineTokens)
			r.camera.set = true
		case "camera_up":
			r.camera.up, err = parseVec3(lineTokens)
		case "instance":
			var inst instanceDef
			if inst, err = r.parseMeshInstance(lineTokens); err == nil {
				r.instances = append(r.instances, inst)
			}
		case "s", "l", "p":
			// Smoothing groups, lines and points are not rendered.
		default:
			r.logger.Debugf("%s:%d: ignoring unsupported statement '%s'", res.Path(), lineNum, lineTokens[0])
		}

		if err != nil {
			return r.emitError(res.Path(), lineNum, "%s", err.Error())
		}
	}

	return scanner.Err()
}

// Parse mesh instance definition. Definitions use the following format:
// instance object_name tX tY tZ yaw pitch roll sX sY sZ
// where:
// - tX, tY, tZ       : translation vector
// - yaw, pitch, roll : rotation angles in degrees around the X, Y and Z axis
// - sX, sY, sZ	      : scale
func (r *wavefrontSceneReader) parseMeshInstance(lineTokens []string) (instanceDef, error) {
	if len(lineTokens) != 11 {
		return instanceDef{}, fmt.Errorf("unsupported syntax for 'instance'; expected 10 arguments: object_name tX tY tZ yaw pitch roll sX sY sZ; got %d", len(lineTokens)-1)
	}

	objectName := lineTokens[1]
	found := false
	for _, object := range r.meshObjects {
		if object == objectName {
			found = true
			break
		}
	}
	if !found {
		return instanceDef{}, fmt.Errorf("unknown mesh with name '%s'", objectName)
	}

	var params [9]float32
	for index := range params {
		v, err := strconv.ParseFloat(lineTokens[index+2], 32)
		if err != nil {
			return instanceDef{}, err
		}
		params[index] = float32(v)
	}

	// M = T * R * S
	rotMat := mgl32.HomogRotate3DZ(mgl32.DegToRad(params[5])).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(params[4]))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(params[3])))
	scaleMat := mgl32.Scale3D(params[6], params[7], params[8])
	transMat := mgl32.Translate3D(params[0], params[1], params[2])

	return instanceDef{
		object:    objectName,
		transform: transMat.Mul4(rotMat).Mul4(scaleMat),
	}, nil
}

// Parse face definition. Each face definitions consists of 3 or more
// arguments, one for each vertex. Each one of the vertex arguments is
// comprised of 1, 2 or 3 args separated by a slash character. The following
// formats are supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate
// an offset off the end of the vertex/uv list.
//
// Polygons are triangulated as a fan around their first vertex so they
// must be convex.
func (r *wavefrontSceneReader) parseFace(lineTokens []string) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf("unsupported syntax for 'f'; expected at least 3 arguments; got %d", len(lineTokens)-1)
	}

	numVerts := len(lineTokens) - 1
	vertices := make([]scene.Vertex, numVerts)
	expIndices := 0
	for arg := 0; arg < numVerts; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList))
		if err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		vertices[arg].Position = r.vertexList[vOffset]

		// Parse UV coords if specified
		if len(vTokens) > 1 && vTokens[1] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[1], len(r.uvList))
			if err != nil {
				return fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
			vertices[arg].TexC = r.uvList[vOffset]
		}

		// Parse normal coords if specified
		if len(vTokens) > 2 && vTokens[2] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[2], len(r.normalList))
			if err != nil {
				return fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			vertices[arg].Normal = r.normalList[vOffset].Normalize()
		}
	}

	mesh, err := r.currentMesh()
	if err != nil {
		return err
	}
	for i := 1; i+1 < numVerts; i++ {
		base := uint32(len(mesh.Vertices))
		mesh.Vertices = append(mesh.Vertices, vertices[0], vertices[i], vertices[i+1])
		mesh.Indices = append(mesh.Indices, base, base+1, base+2)
	}
	return nil
}

// Parse a wavefront material library.
func (r *wavefrontSceneReader) parseMaterials(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	scanner := bufio.NewScanner(res)

	var curMaterial *scene.Material = nil
	var hasSpecular bool

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for 'newmtl'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			matName := lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, "material '%s' already defined", matName)
			}

			curMaterial = scene.DefaultMaterial()
			curMaterial.Name = matName
			hasSpecular = false
			if r.matNameToIndex[matName], err = r.sceneGraph.AddMaterial(curMaterial); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		default:
			if curMaterial == nil {
				return r.emitError(res.Path(), lineNum, "got '%s' without a 'newmtl'", lineTokens[0])
			}

			switch lineTokens[0] {
			case "Kd":
				curMaterial.Albedo, err = parseVec3(lineTokens)
			case "Ks":
				curMaterial.FresnelR0, err = parseVec3(lineTokens)
				hasSpecular = true
			case "Ni":
				var ior float32
				if ior, err = parseFloat32(lineTokens); err == nil && !hasSpecular {
					r0 := (ior - 1) / (ior + 1)
					curMaterial.FresnelR0 = types.XYZ(r0*r0, r0*r0, r0*r0)
				}
			case "Nr", "Pr":
				curMaterial.Roughness, err = parseFloat32(lineTokens)
			case "Pm":
				curMaterial.Metalness, err = parseFloat32(lineTokens)
			case "map_Kd":
				if len(lineTokens) < 2 {
					err = fmt.Errorf("unsupported syntax for 'map_Kd'; expected 1 argument; got 0")
					break
				}
				err = r.modulateAlbedo(curMaterial, lineTokens[len(lineTokens)-1], res)
			default:
				r.logger.Debugf("%s:%d: ignoring unsupported material parameter '%s'", res.Path(), lineNum, lineTokens[0])
			}

			// Report any errors
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		}
	}

	return scanner.Err()
}

// Surfaces are shaded without texture lookups so a diffuse map contributes
// its mean color to the material albedo.
func (r *wavefrontSceneReader) modulateAlbedo(mat *scene.Material, texPath string, relTo *asset.Resource) error {
	imgRes, err := asset.NewResource(texPath, relTo)
	if err != nil {
		// Ignore missing textures
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warningf("ignoring missing texture %s", texPath)
			return nil
		}
		return err
	}
	defer imgRes.Close()

	tex, err := texture.New(imgRes)
	if err != nil {
		return err
	}

	var mean types.Vec3
	for y := 0; y < int(tex.Height); y++ {
		for x := 0; x < int(tex.Width); x++ {
			c := tex.At(x, y)
			mean = mean.Add(types.XYZ(c[0], c[1], c[2]))
		}
	}
	mean = mean.Mul(1 / float32(tex.Width*tex.Height))
	mat.Albedo = mat.Albedo.MulVec(mean)
	return nil
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = int(index - 1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf("unsupported syntax for '%s'; expected 1 argument; got %d", lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf("unsupported syntax for '%s'; expected 3 arguments; got %d", lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf("unsupported syntax for '%s'; expected 2 arguments; got %d", lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
