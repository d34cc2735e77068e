// Package tonemap implements the HDR tone-mapping compute kernel from
// spec.md section 4.F: PQ decode, Rec.2020→Rec.709, per-mode
// normalization and exposure, one of eight tone curves, and sRGB encode.
//
// colorpipeline.go is a pure, GPU-independent re-expression of every
// numbered step in scalar Go, grounded the way gviegas-neo3 keeps its
// conv_test.go matrix/format-conversion helpers host-testable
// independently of the Vulkan driver that ultimately consumes them. This
// file is the reference the compute shader in assets/tonemap.comp must
// match line for line; kernel.go dispatches the compiled shader, this
// file only verifies the math.
package tonemap

import "math"

// Mode selects one of the eight tone-curve operators (spec.md section 4,
// data model: "mode ∈ {0..7}").
type Mode uint32

const (
	ModeReinhard Mode = iota
	ModeACESNarkowicz
	ModeACESHill
	ModeACESDay
	ModeACESFullRRT
	ModeHable
	ModeReinhardExtended
	ModeUchimura
)

// String names a mode the way --tonemap's help text lists it.
func (m Mode) String() string {
	switch m {
	case ModeReinhard:
		return "reinhard"
	case ModeACESNarkowicz:
		return "aces-narkowicz"
	case ModeACESHill:
		return "aces-hill"
	case ModeACESDay:
		return "aces-day"
	case ModeACESFullRRT:
		return "aces-full-rrt"
	case ModeHable:
		return "hable"
	case ModeReinhardExtended:
		return "reinhard-extended"
	case ModeUchimura:
		return "uchimura"
	default:
		return "unknown"
	}
}

// normalizeFactor is the mode-dependent cd/m² divisor from spec.md
// section 4.F step 4.
func (m Mode) normalizeFactor() float64 {
	switch m {
	case ModeReinhard:
		return 100
	case ModeACESNarkowicz, ModeACESHill, ModeACESDay, ModeACESFullRRT:
		return 80
	case ModeHable:
		return 200
	case ModeReinhardExtended:
		return 120
	case ModeUchimura:
		return 400
	default:
		return 100
	}
}

// PQ (SMPTE ST.2084) constants, spec.md section 4.F step 2.
const (
	pqM1 = 0.1593017578125
	pqM2 = 78.84375
	pqC1 = 0.8359375
	pqC2 = 18.8515625
	pqC3 = 18.6875
)

// clampPow raises a possibly-negative base to an exponent after clamping
// the base to 0, per spec.md section 4.F's "any pow on a possibly
// negative base clamps the base to 0".
func clampPow(base, exp float64) float64 {
	if base < 0 {
		base = 0
	}
	return math.Pow(base, exp)
}

// pqInverseDecode converts one PQ-encoded sample in [0,1] to cd/m² in
// [0,10000] (spec.md section 4.F step 2).
func pqInverseDecode(x float64) float64 {
	if x < 0 {
		x = 0
	} else if x > 1 {
		x = 1
	}
	p := clampPow(x, 1/pqM2)
	d := math.Max(p-pqC1, 0)
	d2 := pqC2 - pqC3*p
	if d2 < 1e-7 {
		d2 = 1e-7
	}
	return clampPow(d/d2, 1/pqM1) * 10000
}

// pqForwardEncode is the analytical inverse of pqInverseDecode, used only
// by tests to verify the roundtrip invariant in spec.md section 8.
func pqForwardEncode(linearCdM2 float64) float64 {
	y := linearCdM2 / 10000
	if y < 0 {
		y = 0
	}
	ym1 := clampPow(y, pqM1)
	num := pqC1 + pqC2*ym1
	den := 1 + pqC3*ym1
	return clampPow(num/den, pqM2)
}

// mat3 is a row-major 3x3 matrix (spec.md stores them column-major on
// the shader side; colorpipeline.go uses row-major since Go has no
// native vector-times-matrix operator to match either convention, and
// row-major reads left to right the way the coefficients below are
// transcribed).
type mat3 [3][3]float64

// apply returns m*v for a column vector v.
func (m mat3) apply(v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Canonical double-precision primary-conversion matrices, per spec.md
// section 9's numerical caveat ("reimplementations should use canonical
// double-precision constants"), rather than the four-decimal truncated
// values the original sample used.
var (
	rec2020ToRec709 = mat3{
		{1.6604910021, -0.5876411388, -0.0728498633},
		{-0.1245504745, 1.1328998971, -0.0083494226},
		{-0.0181507634, -0.1005788980, 1.1187296614},
	}
	rec709ToRec2020 = mat3{
		{0.6274038959, 0.3292830384, 0.0433130657},
		{0.0690972894, 0.9195403951, 0.0113623156},
		{0.0163914389, 0.0880133079, 0.8955952532},
	}

	ap0ToAP1 = mat3{
		{1.4514393161, -0.2365107469, -0.2149285693},
		{-0.0765537733, 1.1762296998, -0.0996759265},
		{0.0083161484, -0.0060324498, 0.9977163014},
	}
	ap1ToAP0 = mat3{
		{0.6954522414, 0.1406786965, 0.1638690622},
		{0.0447945634, 0.8596711185, 0.0955343182},
		{-0.0055258826, 0.0040252103, 1.0015006723},
	}

	ap1ToRec709 = mat3{
		{1.7050509927, -0.6217921207, -0.0832588720},
		{-0.1302564175, 1.1408047366, -0.0105483191},
		{-0.0240033568, -0.1289689761, 1.1529723329},
	}
	rec709ToAP1 = mat3{
		{0.6130974024, 0.3395231462, 0.0473794514},
		{0.0701937225, 0.9163538791, 0.0134523985},
		{0.0206155929, 0.1095697729, 0.8698146342},
	}
)

// Rec709Weights are the luminance weights from spec.md section 4.F's
// closing paragraph.
var Rec709Weights = [3]float64{0.2126729, 0.7151522, 0.0721750}

// luminance computes the Rec.709-weighted luminance of an RGB triple.
func luminance(c [3]float64) float64 {
	return Rec709Weights[0]*c[0] + Rec709Weights[1]*c[1] + Rec709Weights[2]*c[2]
}

// saturation is `(max(c) - min(c)) / max(max(c), 0.01)`, guarded against
// division by zero (spec.md section 4.F).
func saturation(c [3]float64) float64 {
	mx := math.Max(c[0], math.Max(c[1], c[2]))
	mn := math.Min(c[0], math.Min(c[1], c[2]))
	denom := math.Max(mx, 0.01)
	return (mx - mn) / denom
}

// srgbEncode applies the sRGB OETF per channel (spec.md section 4.F step 8).
func srgbEncode(x float64) float64 {
	if x <= 0.0031308 {
		return 12.92 * x
	}
	return 1.055*clampPow(x, 1/2.4) - 0.055
}

// srgbDecode is the sRGB EOTF, the inverse of srgbEncode, used only by
// tests to verify the roundtrip invariant in spec.md section 8.
func srgbDecode(x float64) float64 {
	if x <= 0.04045 {
		return x / 12.92
	}
	return clampPow((x+0.055)/1.055, 2.4)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clamp01v(v [3]float64) [3]float64 {
	return [3]float64{clamp01(v[0]), clamp01(v[1]), clamp01(v[2])}
}

// reinhard applies `x/(x+1)` per channel (spec.md section 4.F step 6).
func reinhard(c [3]float64) [3]float64 {
	return [3]float64{c[0] / (c[0] + 1), c[1] / (c[1] + 1), c[2] / (c[2] + 1)}
}

// reinhardExtended applies `x(1+x/16)/(1+x)` per channel, white = 4.
func reinhardExtended(c [3]float64) [3]float64 {
	f := func(x float64) float64 { return x * (1 + x/16) / (1 + x) }
	return [3]float64{f(c[0]), f(c[1]), f(c[2])}
}

// hableUncharted2 is the raw Uncharted-2 filmic curve with the constants
// from spec.md section 4.F step 6.
func hableUncharted2(x float64) float64 {
	const a, b, c, d, e, f = 0.15, 0.50, 0.10, 0.20, 0.02, 0.30
	return ((x*(a*x+c*b) + d*e) / (x*(a*x+b) + d*f)) - e/f
}

// hable evaluates the curve at 2x per channel and normalizes by the
// curve at W=11.2.
func hable(c [3]float64) [3]float64 {
	const w = 11.2
	white := hableUncharted2(w)
	f := func(x float64) float64 { return hableUncharted2(2 * x) / white }
	return [3]float64{f(c[0]), f(c[1]), f(c[2])}
}

// smoothstep is GLSL's smoothstep.
func smoothstep(edge0, edge1, x float64) float64 {
	t := clamp01((x - edge0) / (edge1 - edge0))
	return t * t * (3 - 2*t)
}

// uchimura implements the piecewise toe/linear/shoulder curve with the
// (P,a,m,l,c,b) constants from spec.md section 4.F step 6.
func uchimuraScalar(x float64) float64 {
	const p, a, m, l, c, b = 1.0, 1.0, 0.22, 0.4, 1.33, 0.0
	l0 := (p - m) * l / a
	s0 := m + l0
	s1 := m + a*l0
	c2 := a * p / (p - s1)
	clEnc := m - m/c2
	_ = clEnc

	w0 := 1 - smoothstep(0, m, x)
	w2 := 0
	if x >= s0 {
		w2 = 1
	}
	w1 := 1 - w0 - float64(w2)

	toe := m * clampPow(x/m, c) + b
	linear := m + a*(x-m)
	shoulder := p - (p-s1)*math.Exp(-(c2*(x-s0))/(p-s1))

	return toe*w0 + linear*w1 + shoulder*float64(w2)
}

func uchimura(c [3]float64) [3]float64 {
	return [3]float64{uchimuraScalar(c[0]), uchimuraScalar(c[1]), uchimuraScalar(c[2])}
}

// acesNarkowicz applies the Narkowicz fit in AP1 space.
func acesNarkowiczScalar(x float64) float64 {
	const a, b, c, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
	return clamp01((x * (a*x + b)) / (x*(c*x+d) + e))
}

func acesNarkowicz(c [3]float64) [3]float64 {
	ap1 := rec709ToAP1.apply(c)
	mapped := [3]float64{acesNarkowiczScalar(ap1[0]), acesNarkowiczScalar(ap1[1]), acesNarkowiczScalar(ap1[2])}
	return ap1ToRec709.apply(mapped)
}

// acesHillScalar applies the Hill fit.
func acesHillScalar(x float64) float64 {
	num := x*(x+0.0245786) - 0.000090537
	den := x*(0.983729*x+0.4329510) + 0.238081
	return num / den
}

func acesHill(c [3]float64) [3]float64 {
	ap1 := rec709ToAP1.apply(c)
	mapped := [3]float64{acesHillScalar(ap1[0]), acesHillScalar(ap1[1]), acesHillScalar(ap1[2])}
	return ap1ToRec709.apply(clamp01v(mapped))
}

// acesDay pre-scales by 0.6 before the same rational the Narkowicz fit
// uses (spec.md section 4.F step 6: "pre-scale by 0.6, apply clamped
// rational").
func acesDay(c [3]float64) [3]float64 {
	ap1 := rec709ToAP1.apply(c)
	scaled := [3]float64{ap1[0] * 0.6, ap1[1] * 0.6, ap1[2] * 0.6}
	mapped := [3]float64{acesNarkowiczScalar(scaled[0]), acesNarkowiczScalar(scaled[1]), acesNarkowiczScalar(scaled[2])}
	return ap1ToRec709.apply(mapped)
}

// acesFullRRT implements the multi-stage RRT approximation from spec.md
// section 4.F step 6: AP1->AP0 with negatives clamped, back to AP1, a
// glow module, a rational tone-scale, and a brightness-dependent global
// desaturation, before converting back to Rec.709.
func acesFullRRT(c [3]float64) [3]float64 {
	ap1 := rec709ToAP1.apply(c)

	ap0 := ap1ToAP0.apply(ap1)
	for i := range ap0 {
		if ap0[i] < 0 {
			ap0[i] = 0
		}
	}
	work := ap0ToAP1.apply(ap0)

	sat := saturation(work)
	s := 1 / (1 + math.Exp(-(sat-0.4)/0.2))
	glowGain := 1 + 0.05*s
	work = [3]float64{work[0] * glowGain, work[1] * glowGain, work[2] * glowGain}

	const a, b, cc, d, e = 278.5085, 10.7772, 293.6045, 88.7122, 80.6889
	scale := func(x float64) float64 {
		return (x * (a*x + b)) / (x*(cc*x+d) + e)
	}
	work = [3]float64{scale(work[0]), scale(work[1]), scale(work[2])}

	lum := luminance(work)
	deSat := clamp01(smoothstep(0.18, 2.0, lum))
	for i := range work {
		work[i] = work[i] + (lum-work[i])*deSat
	}

	return clamp01v(ap1ToRec709.apply(work))
}

// toneCurve dispatches to the operator named by mode, matching spec.md
// section 4.F step 6's "Every operator maps R+^3 -> [0,1]^3".
func toneCurve(mode Mode, c [3]float64) [3]float64 {
	switch mode {
	case ModeReinhard:
		return clamp01v(reinhard(c))
	case ModeReinhardExtended:
		return clamp01v(reinhardExtended(c))
	case ModeHable:
		return clamp01v(hable(c))
	case ModeUchimura:
		return clamp01v(uchimura(c))
	case ModeACESNarkowicz:
		return clamp01v(acesNarkowicz(c))
	case ModeACESHill:
		return acesHill(c)
	case ModeACESDay:
		return clamp01v(acesDay(c))
	case ModeACESFullRRT:
		return acesFullRRT(c)
	default:
		return clamp01v(reinhard(c))
	}
}

// Pixel is one sample's worth of pipeline state: PQ-encoded input in
// [0,1] per channel, with alpha carried through untouched (spec.md
// section 4.F step 9: "store with preserved alpha").
type Pixel struct {
	R, G, B, A float64
}

// Apply runs the full nine-step pipeline in spec.md section 4.F on one
// pixel and returns the sRGB-encoded 8-bit-equivalent [0,1] result.
// exposure must be > 0; mode selects the tone curve.
func Apply(p Pixel, exposure float64, mode Mode) Pixel {
	in := [3]float64{clamp01(p.R), clamp01(p.G), clamp01(p.B)}

	cdm2 := [3]float64{pqInverseDecode(in[0]), pqInverseDecode(in[1]), pqInverseDecode(in[2])}
	rec709 := rec2020ToRec709.apply(cdm2)

	factor := mode.normalizeFactor()
	scene := [3]float64{rec709[0] / factor, rec709[1] / factor, rec709[2] / factor}
	exposed := [3]float64{scene[0] * exposure, scene[1] * exposure, scene[2] * exposure}

	mapped := toneCurve(mode, exposed)
	mapped = clamp01v(mapped)

	return Pixel{
		R: srgbEncode(mapped[0]),
		G: srgbEncode(mapped[1]),
		B: srgbEncode(mapped[2]),
		A: p.A,
	}
}
