package side

import (
	"regexp"
	"strconv"
)

// DominanceMargin is how far a channel must exceed the other two
const DominanceMargin = 30

var rgbRe = regexp.MustCompile(`rgba?\(\s*(\d+)[\s,]+(\d+)[\s,]+(\d+)`)

// RGB is a parsed color
type RGB struct{ R, G, B int }

// ParseRGB reads "rgb(r, g, b)", "rgba(r, g, b, a)" or "rgb(r g b)"
func ParseRGB(s string) (RGB, bool) {
	m := rgbRe.FindStringSubmatch(s)
	if m == nil {
		return RGB{}, false
	}
	r, _ := strconv.Atoi(m[1])
	g, _ := strconv.Atoi(m[2])
	b, _ := strconv.Atoi(m[3])
	return RGB{R: r, G: g, B: b}, true
}

// GreenDominant is the active-Up band
func (c RGB) GreenDominant(margin int) bool {
	return c.G > c.R+margin && c.G > c.B+margin
}

// RedDominant is the active-Down band
func (c RGB) RedDominant(margin int) bool {
	return c.R > c.G+margin && c.R > c.B+margin
}

// IsGreen parses s and checks the green band
func IsGreen(s string, margin int) bool {
	c, ok := ParseRGB(s)
	return ok && c.GreenDominant(margin)
}

// IsRed parses s and checks the red band
func IsRed(s string, margin int) bool {
	c, ok := ParseRGB(s)
	return ok && c.RedDominant(margin)
}
