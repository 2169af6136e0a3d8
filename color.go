package homie

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColorFormat is the $format of a color property.
type ColorFormat string

const (
	ColorRGB ColorFormat = "rgb"
	ColorHSV ColorFormat = "hsv"
)

// Color holds three channels in the 0-255 range.
type Color struct {
	R, G, B float64
}

// FromRGBString parses an "r,g,b" payload.
func FromRGBString(s string) (Color, error) {
	ch, err := parseChannels(s, [3]int{255, 255, 255})
	if err != nil {
		return Color{}, err
	}
	return Color{R: float64(ch[0]), G: float64(ch[1]), B: float64(ch[2])}, nil
}

// FromHSVString parses an "h,s,v" payload (hue 0-360, saturation and value 0-100).
func FromHSVString(s string) (Color, error) {
	ch, err := parseChannels(s, [3]int{360, 100, 100})
	if err != nil {
		return Color{}, err
	}
	return hsvToColor(float64(ch[0]), float64(ch[1])/100, float64(ch[2])/100), nil
}

// ParseColor parses a payload in the given format.
func ParseColor(s string, format ColorFormat) (Color, error) {
	switch format {
	case ColorRGB:
		return FromRGBString(s)
	case ColorHSV:
		return FromHSVString(s)
	}
	return Color{}, fmt.Errorf("%w: color format %q", ErrInvalidConfiguration, string(format))
}

func (c Color) RGBString() string {
	return fmt.Sprintf("%d,%d,%d", round(c.R), round(c.G), round(c.B))
}

func (c Color) HSVString() string {
	h, s, v := c.hsv()
	return fmt.Sprintf("%d,%d,%d", round(h), round(s*100), round(v*100))
}

// Format renders c in the given format.
func (c Color) Format(format ColorFormat) string {
	if format == ColorHSV {
		return c.HSVString()
	}
	return c.RGBString()
}

// ValidateColorPayload checks a payload against the channel ranges of format.
func ValidateColorPayload(payload string, format ColorFormat) error {
	_, err := ParseColor(payload, format)
	return err
}

func parseChannels(s string, limits [3]int) ([3]int, error) {
	var ch [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return ch, fmt.Errorf("%w: color %q needs three channels", ErrInvalidValue, s)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if !IsInteger(p) {
			return ch, fmt.Errorf("%w: color channel %q is not an integer", ErrInvalidValue, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return ch, fmt.Errorf("%w: color channel %q out of range 0-%d", ErrInvalidValue, p, limits[i])
		}
		ch[i] = n
	}
	return ch, nil
}

// hsvToColor uses the chroma / hue-prime formula. s and v are 0-1.
func hsvToColor(h, s, v float64) Color {
	c := v * s
	hp := math.Mod(h, 360) / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := v - c
	return Color{R: (r + m) * 255, G: (g + m) * 255, B: (b + m) * 255}
}

// hsv returns hue in degrees and saturation/value in 0-1.
func (c Color) hsv() (h, s, v float64) {
	r, g, b := c.R/255, c.G/255, c.B/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	chroma := hi - lo

	// achromatic: hue stays 0
	if chroma > 0 {
		switch hi {
		case r:
			h = 60 * math.Mod((g-b)/chroma, 6)
		case g:
			h = 60 * ((b-r)/chroma + 2)
		default:
			h = 60 * ((r-g)/chroma + 4)
		}
		if h < 0 {
			h += 360
		}
	}

	v = hi
	// black: saturation stays 0
	if v > 0 {
		s = chroma / v
	}
	return h, s, v
}

func round(f float64) int {
	return int(math.Round(f))
}
