package ibl

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/asset"
	"github.com/achilleasa/rtdenoise/asset/texture"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
)

// Radiance returns the incoming light from a world space direction.
type Radiance func(dir types.Vec3) types.Vec3

// Radiance blends from the horizon to the zenith above the horizon and
// fades to the ground color below it.
func (s Sky) Radiance(dir types.Vec3) types.Vec3 {
	y := dir.Normalize()[1]
	if y >= 0 {
		return s.Horizon.Lerp(s.Zenith, math32.Sqrt(y))
	}
	return s.Horizon.Lerp(s.Ground, math32.Min(1, -y*4))
}

// DirectionToUV maps a unit direction to equirectangular coordinates. -Z
// maps to the center of the image and +Y to the top row.
func DirectionToUV(dir types.Vec3) (float32, float32) {
	u := 0.5 + math32.Atan2(dir[0], -dir[2])/(2*math32.Pi)
	v := math32.Acos(types.Clamp(dir[1], -1, 1)) / math32.Pi
	return u, v
}

// UVToDirection is the inverse of DirectionToUV.
func UVToDirection(u, v float32) types.Vec3 {
	phi := (u - 0.5) * 2 * math32.Pi
	theta := v * math32.Pi
	sinTheta := math32.Sin(theta)
	return types.XYZ(sinTheta*math32.Sin(phi), math32.Cos(theta), -sinTheta*math32.Cos(phi))
}

// TextureRadiance samples an equirectangular texture.
func TextureRadiance(tex *texture.Texture) Radiance {
	return func(dir types.Vec3) types.Vec3 {
		u, v := DirectionToUV(dir.Normalize())
		c := tex.Sample(u, v)
		return types.XYZ(c[0], c[1], c[2])
	}
}

// LoadEnvironment resolves the environment source of opts.
func LoadEnvironment(opts Options) (Radiance, error) {
	var radiance Radiance = opts.Sky.Radiance
	if opts.Environment != "" {
		res, err := asset.NewResource(opts.Environment, nil)
		if err != nil {
			return nil, fmt.Errorf("ibl: %w", err)
		}
		defer res.Close()
		tex, err := texture.New(res)
		if err != nil {
			return nil, fmt.Errorf("ibl: %w", err)
		}
		logger.Infof("using environment %s (%dx%d)", res.Path(), tex.Width, tex.Height)
		radiance = TextureRadiance(tex)
	}
	if opts.Intensity == 1 {
		return radiance, nil
	}
	return func(dir types.Vec3) types.Vec3 {
		return radiance(dir).Mul(opts.Intensity)
	}, nil
}
