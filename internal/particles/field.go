// Package particles simulates the decorative particle field drawn behind the
// canvas. It reads node positions and selection, never writes them.
package particles

import (
	"cmp"
	"image/color"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/fogleman/gg"
)

// Options tunes density, topology and appearance.
type Options struct {
	AreaPerParticle float64 // screen px² per particle
	MaxParticles    int
	MinLinks        int
	MaxLinks        int
	LinkRadius      float64
	Speed           float64 // drift, px per second
	InfluenceRadius float64 // attractor reach, px
	EnergyThreshold float64
	Seed            uint64
	Color           color.RGBA
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		AreaPerParticle: 9000,
		MaxParticles:    400,
		MinLinks:        2,
		MaxLinks:        4,
		LinkRadius:      140,
		Speed:           12,
		InfluenceRadius: 220,
		EnergyThreshold: 0.5,
		Seed:            1,
		Color:           color.RGBA{0x93, 0xc5, 0xfd, 0xff},
	}
}

// Smoothing is the per-frame weight kept from the previous energy.
const Smoothing = 0.95

// Particle is one point of the field in screen space.
type Particle struct {
	X, Y   float64
	VX, VY float64
	Radius float64
	Energy float64
}

// Link is a fixed connection between two particles. Pulse is the position
// of the travelling glow along the link, in [0,1).
type Link struct {
	A, B    int
	Opacity float64
	Pulse   float64
}

// Attractor is a screen-space point that energises nearby particles.
type Attractor struct {
	X, Y     float64
	Strength float64
}

// Field is the particle simulation for one canvas size.
type Field struct {
	W, H      float64
	Particles []Particle
	Links     []Link
	opts      Options
}

// New scatters particles over a w×h area and builds the link topology, which
// stays fixed for the lifetime of the field.
func New(w, h float64, opts Options) *Field {
	f := &Field{W: w, H: h, opts: opts}
	if w <= 0 || h <= 0 || opts.AreaPerParticle <= 0 {
		return f
	}
	n := int(w * h / opts.AreaPerParticle)
	if opts.MaxParticles > 0 {
		n = min(n, opts.MaxParticles)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	f.Particles = make([]Particle, n)
	for i := range f.Particles {
		angle := rng.Float64() * 2 * math.Pi
		speed := opts.Speed * (0.5 + rng.Float64())
		f.Particles[i] = Particle{
			X:      rng.Float64() * w,
			Y:      rng.Float64() * h,
			VX:     math.Cos(angle) * speed,
			VY:     math.Sin(angle) * speed,
			Radius: 1 + rng.Float64()*1.5,
		}
	}
	f.Links = f.link(rng)
	return f
}

type neighbour struct {
	idx  int
	dist float64
}

// link connects each particle to its nearest in-range neighbours until it
// has between MinLinks and MaxLinks links. Links made by earlier particles
// count toward that number, and a particle that already has MaxLinks takes
// no more.
func (f *Field) link(rng *rand.Rand) []Link {
	lo, hi := max(f.opts.MinLinks, 0), max(f.opts.MaxLinks, f.opts.MinLinks)
	seen := map[[2]int]bool{}
	degree := make([]int, len(f.Particles))
	var links []Link
	for i, p := range f.Particles {
		var near []neighbour
		for j, q := range f.Particles {
			if i == j {
				continue
			}
			if d := math.Hypot(p.X-q.X, p.Y-q.Y); d <= f.opts.LinkRadius {
				near = append(near, neighbour{j, d})
			}
		}
		slices.SortFunc(near, func(a, b neighbour) int { return cmp.Compare(a.dist, b.dist) })
		want := lo + rng.IntN(hi-lo+1)
		for _, nb := range near {
			if degree[i] >= want {
				break
			}
			key := [2]int{min(i, nb.idx), max(i, nb.idx)}
			if seen[key] || degree[nb.idx] >= hi {
				continue
			}
			seen[key] = true
			degree[i]++
			degree[nb.idx]++
			links = append(links, Link{A: key[0], B: key[1], Pulse: rng.Float64()})
		}
	}
	return links
}

// Update advances the simulation by dt seconds.
func (f *Field) Update(dt float64, attractors []Attractor) {
	for i := range f.Particles {
		p := &f.Particles[i]
		target := f.target(p.X, p.Y, attractors)
		p.Energy = p.Energy*Smoothing + target*(1-Smoothing)

		boost := 1 + p.Energy
		p.X = wrap(p.X+p.VX*dt*boost, f.W)
		p.Y = wrap(p.Y+p.VY*dt*boost, f.H)
	}
	for i := range f.Links {
		l := &f.Links[i]
		a, b := f.Particles[l.A], f.Particles[l.B]
		energy := (a.Energy + b.Energy) / 2
		closeness := 1 - math.Hypot(a.X-b.X, a.Y-b.Y)/f.opts.LinkRadius
		if closeness < 0 {
			closeness = 0
		}
		l.Opacity = clamp01(closeness * (0.15 + 0.7*energy))
		l.Pulse = math.Mod(l.Pulse+dt*(0.2+energy), 1)
	}
}

// target is the strongest attractor influence at (x, y), in [0,1].
func (f *Field) target(x, y float64, attractors []Attractor) float64 {
	best := 0.0
	for _, a := range attractors {
		d := math.Hypot(a.X-x, a.Y-y)
		if d >= f.opts.InfluenceRadius {
			continue
		}
		if v := a.Strength * (1 - d/f.opts.InfluenceRadius); v > best {
			best = v
		}
	}
	return clamp01(best)
}

// Render draws links first, then particles.
func (f *Field) Render(dc *gg.Context) {
	c := f.opts.Color
	r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255

	dc.SetLineWidth(1)
	for _, l := range f.Links {
		if l.Opacity < 0.01 {
			continue
		}
		a, q := f.Particles[l.A], f.Particles[l.B]
		dc.SetRGBA(r, g, b, l.Opacity)
		dc.DrawLine(a.X, a.Y, q.X, q.Y)
		dc.Stroke()

		px, py := a.X+(q.X-a.X)*l.Pulse, a.Y+(q.Y-a.Y)*l.Pulse
		glow(dc, px, py, 4, c, l.Opacity)
	}

	for _, p := range f.Particles {
		alpha := 0.35 + 0.4*p.Energy
		if p.Energy > f.opts.EnergyThreshold {
			alpha = 1
		}
		glow(dc, p.X, p.Y, p.Radius*(3+4*p.Energy), c, alpha*0.6)
		dc.SetRGBA(r, g, b, alpha)
		dc.DrawCircle(p.X, p.Y, p.Radius)
		dc.Fill()
	}
}

func glow(dc *gg.Context, x, y, radius float64, c color.RGBA, alpha float64) {
	grad := gg.NewRadialGradient(x, y, 0, x, y, radius)
	grad.AddColorStop(0, color.NRGBA{c.R, c.G, c.B, uint8(255 * clamp01(alpha))})
	grad.AddColorStop(1, color.NRGBA{c.R, c.G, c.B, 0})
	dc.SetFillStyle(grad)
	dc.DrawCircle(x, y, radius)
	dc.Fill()
}

// MeanEnergy is the average particle energy.
func (f *Field) MeanEnergy() float64 {
	if len(f.Particles) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range f.Particles {
		sum += p.Energy
	}
	return sum / float64(len(f.Particles))
}

func wrap(v, size float64) float64 {
	if size <= 0 {
		return 0
	}
	v = math.Mod(v, size)
	if v < 0 {
		v += size
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
