package environment

import (
	"math"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/chewxy/math32"
)

// Default resolution of the baked physical sky.
const (
	SkyWidth  = 512
	SkyHeight = 256
)

// Atmosphere model in meters. The observer stands one meter above the ground.
const (
	earthRadius      = 6360e3
	atmosphereRadius = 6420e3
	rayleighHeight   = 7994
	mieHeight        = 1200
	mieG             = 0.76
	mieExtinction    = 1.1
	viewSamples      = 16
	lightSamples     = 8
)

var (
	betaRayleigh = [3]float64{5.802e-6, 13.558e-6, 33.1e-6}
	betaMie      = 21e-6
)

type sun struct {
	dir   [3]float64
	color [3]float64
}

// BakeSky integrates single Rayleigh and Mie scattering of the directional lights over the
// sphere of directions and returns an RGBE encoded equirectangular map.
//
// Parameters:
//   - lights: the scene lights, only directional ones contribute
//   - w, h: the map size
//   - pool: runs rows in parallel, nil for serial
//
// Returns:
//   - []byte: w*h RGBA8 texels, tightly packed
func BakeSky(lights []light.Light, w, h int, pool compute_pool.ComputePool) []byte {
	var suns []sun
	for _, l := range lights {
		if l.Kind != light.KindDirectional {
			continue
		}
		color := l.Color
		if l.Angle != 0 {
			// Directional colors are stored per unit solid angle of the disk.
			tan := math32.Tan(l.Angle)
			color = common.Scale3(color, math32.Pi*tan*tan)
		}
		d := common.Normalize3(l.Direction)
		suns = append(suns, sun{
			dir:   [3]float64{float64(d[0]), float64(d[1]), float64(d[2])},
			color: [3]float64{float64(color[0]), float64(color[1]), float64(color[2])},
		})
	}

	out := make([]byte, w*h*4)
	if len(suns) == 0 {
		return out
	}

	compute_pool.Or(pool).ForEach(h, func(y int) {
		theta := math.Pi * float64(y) / float64(h)
		sinTheta, cosTheta := math.Sincos(theta)
		for x := 0; x < w; x++ {
			phi := 2 * math.Pi * float64(x) / float64(w)
			sinPhi, cosPhi := math.Sincos(phi)
			dir := [3]float64{sinTheta * cosPhi, cosTheta, sinTheta * sinPhi}

			var c [3]float64
			for _, s := range suns {
				r := scatter(dir, s.dir)
				for i := range c {
					c[i] += r[i] * s.color[i]
				}
			}
			rgbe := common.RGBToRGBE([3]float32{float32(c[0]), float32(c[1]), float32(c[2])})
			copy(out[4*(y*w+x):], rgbe[:])
		}
	})
	return out
}

// scatter returns the in-scattered radiance along dir for a unit sun arriving from sunDir.
// Planet scale intersections need float64.
func scatter(dir, sunDir [3]float64) [3]float64 {
	origin := [3]float64{0, earthRadius + 1, 0}

	tMax, ok := raySphere(origin, dir, atmosphereRadius, false)
	if !ok {
		return [3]float64{}
	}
	if tGround, hit := raySphere(origin, dir, earthRadius, true); hit {
		tMax = min(tMax, tGround)
	}

	mu := dot(dir, sunDir)
	phaseR := 3 / (16 * math.Pi) * (1 + mu*mu)
	g2 := mieG * mieG
	phaseM := 3 / (8 * math.Pi) * ((1 - g2) * (1 + mu*mu)) / ((2 + g2) * math.Pow(1+g2-2*mieG*mu, 1.5))

	seg := tMax / viewSamples
	var sumR, sumM [3]float64
	var depthR, depthM float64
	for i := 0; i < viewSamples; i++ {
		t := (float64(i) + 0.5) * seg
		p := add(origin, scale(dir, t))
		height := length(p) - earthRadius
		hr := math.Exp(-height/rayleighHeight) * seg
		hm := math.Exp(-height/mieHeight) * seg
		depthR += hr
		depthM += hm

		lightR, lightM, lit := lightDepth(p, sunDir)
		if !lit {
			continue
		}
		for c := 0; c < 3; c++ {
			tau := betaRayleigh[c]*(depthR+lightR) + betaMie*mieExtinction*(depthM+lightM)
			att := math.Exp(-tau)
			sumR[c] += att * hr
			sumM[c] += att * hm
		}
	}

	var out [3]float64
	for c := range out {
		out[c] = sumR[c]*betaRayleigh[c]*phaseR + sumM[c]*betaMie*phaseM
	}
	return out
}

// lightDepth integrates the Rayleigh and Mie optical depth from p toward the sun. lit is false
// when the planet blocks the sun.
func lightDepth(p, sunDir [3]float64) (rayleigh, mie float64, lit bool) {
	if _, hit := raySphere(p, sunDir, earthRadius, true); hit {
		return 0, 0, false
	}
	tMax, ok := raySphere(p, sunDir, atmosphereRadius, false)
	if !ok {
		return 0, 0, true
	}
	seg := tMax / lightSamples
	for i := 0; i < lightSamples; i++ {
		q := add(p, scale(sunDir, (float64(i)+0.5)*seg))
		height := length(q) - earthRadius
		rayleigh += math.Exp(-height/rayleighHeight) * seg
		mie += math.Exp(-height/mieHeight) * seg
	}
	return rayleigh, mie, true
}

// raySphere intersects a ray with a sphere centered at the origin. near selects the first
// positive hit, otherwise the far one.
func raySphere(o, d [3]float64, radius float64, near bool) (float64, bool) {
	b := dot(o, d)
	c := dot(o, o) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	s := math.Sqrt(disc)
	t := -b + s
	if near {
		t = -b - s
	}
	if t <= 0 {
		return 0, false
	}
	return t, true
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func add(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func scale(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

func length(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}
