package renderer

import (
	"errors"
	"testing"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/scene"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.FrameW = 24
	opts.FrameH = 16
	opts.Workers = 4
	opts.DebugLayer = true
	opts.IBL.EnvironmentWidth = 32
	opts.IBL.IrradianceWidth = 8
	opts.IBL.PrefilteredWidth = 16
	opts.IBL.PrefilteredLevels = 3
	opts.IBL.BRDFLUTSize = 8
	return opts
}

func newTestRenderer(t *testing.T) *Renderer {
	r, err := New(scene.DefaultScene(), testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestNewWithoutScene(t *testing.T) {
	if _, err := New(nil, testOptions()); err != ErrSceneNotDefined {
		t.Fatalf("expected ErrSceneNotDefined; got %v", err)
	}

	if _, err := New(scene.NewScene(), testOptions()); err != ErrCameraNotDefined {
		t.Fatalf("expected ErrCameraNotDefined; got %v", err)
	}
}

func TestNewWithUnknownAdapter(t *testing.T) {
	opts := testOptions()
	opts.Adapter = "^Nonexistent"
	if _, err := New(scene.DefaultScene(), opts); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter; got %v", err)
	}
}

func TestNewFailsWhenOutOfMemory(t *testing.T) {
	opts := testOptions()
	opts.MemoryBudget = 4096
	if _, err := New(scene.DefaultScene(), opts); !errors.Is(err, device.ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}
}

func TestRenderFrames(t *testing.T) {
	r := newTestRenderer(t)
	for frame := 0; frame < 3; frame++ {
		if err := r.Render(1.0 / 60); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}

	stats := r.Stats()
	if stats.Frame != 2 {
		t.Fatalf("expected stats for frame 2; got %d", stats.Frame)
	}
	if stats.RayDispatches != 2 {
		t.Fatalf("expected 2 ray dispatches; got %d", stats.RayDispatches)
	}
	seen := make(map[string]bool)
	for _, pass := range stats.Passes {
		seen[pass.Name] = true
	}
	for _, name := range []string{"gbuffer", "rtao", "reflection"} {
		if !seen[name] {
			t.Fatalf("missing timing for pass %q in %v", name, stats.Passes)
		}
	}

	nd := r.GBuffer().NormalDepth.Resource.Resource()
	ao := r.AOCoefficient().Resource.Resource()
	refl := r.Reflection().Resource.Resource()
	geometry := 0
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			if nd.Load(x, y)[3] <= 0 {
				continue
			}
			geometry++
			if v := ao.Load(x, y)[0]; v < 0 || v > 1.001 {
				t.Fatalf("AO at (%d, %d) out of range: %f", x, y, v)
			}
			color := refl.Load(x, y)
			for c, v := range color[:3] {
				if v < 0 {
					t.Fatalf("negative reflection channel %d at (%d, %d): %f", c, x, y, v)
				}
			}
		}
	}
	if geometry == 0 {
		t.Fatal("expected the default scene to cover some pixels")
	}

	if b := r.AOImage().Bounds(); b.Dx() != 24 || b.Dy() != 16 {
		t.Fatalf("unexpected AO image bounds %v", b)
	}
	if b := r.ReflectionImage(1).Bounds(); b.Dx() != 24 || b.Dy() != 16 {
		t.Fatalf("unexpected reflection image bounds %v", b)
	}
}

func TestOnResize(t *testing.T) {
	r := newTestRenderer(t)
	if err := r.Render(0); err != nil {
		t.Fatal(err)
	}

	before := r.AOCoefficient().Resource.Resource()
	live := r.Device().LiveResources()
	if err := r.OnResize(24, 16); err != nil {
		t.Fatal(err)
	}
	if r.AOCoefficient().Resource.Resource() != before {
		t.Fatal("resizing to the current size reallocated the AO output")
	}

	if err := r.OnResize(12, 8); err != nil {
		t.Fatal(err)
	}
	if got := r.Device().LiveResources(); got != live {
		t.Fatalf("expected %d live resources after resize; got %d", live, got)
	}
	if w := r.GBuffer().Position.Resource.Resource().Width(); w != 12 {
		t.Fatalf("expected resized G-buffer width 12; got %d", w)
	}
	if err := r.Render(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if w := r.ReflectionImage(1).Bounds().Dx(); w != 12 {
		t.Fatalf("expected reflection width 12; got %d", w)
	}
}

func TestClose(t *testing.T) {
	r, err := New(scene.DefaultScene(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	r.Close()

	if n := r.Device().LiveResources(); n != 0 {
		t.Fatalf("expected no live resources after Close; got %d", n)
	}
	if err := r.Render(0); err != ErrClosed {
		t.Fatalf("expected ErrClosed; got %v", err)
	}
	if err := r.OnResize(1, 1); err != ErrClosed {
		t.Fatalf("expected ErrClosed; got %v", err)
	}
}
