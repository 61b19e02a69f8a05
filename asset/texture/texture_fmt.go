package texture

type Format uint32

const (
	Luminance32F Format = iota
	Rgba32F
)

func (f Format) Channels() int {
	if f == Luminance32F {
		return 1
	}
	return 4
}
