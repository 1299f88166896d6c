package growth

import (
	"math"

	"github.com/cuemby/oneloop/pkg/types"
)

// steps is the fixed RK4 step count from the deep-matter-domination
// starting epoch down to the requested redshift.
const steps = 2000

// Values holds the eight growth functions and their logarithmic
// derivatives, named identically to types.GrowthSample but without
// the token identity fields a worker has no business assigning.
type Values struct {
	G, A, B, D, E, F, Gr, J         float64
	FG, FA, FB, FD, FE, FF, FGr, FJ float64
}

// background bundles the density parameters an FRWModel implies for
// the Friedmann equation, flat by construction.
type background struct {
	omegaM, omegaL, omegaR float64
}

func newBackground(m types.FRWModel) background {
	// Eisenstein & Hu 1998 eq. 2: photon+neutrino density in terms of
	// T_CMB and N_eff, the only radiation bookkeeping FRWModel carries.
	omegaR := 4.15e-5 / (m.H * m.H) * (1 + 0.2271*m.NEff) * math.Pow(m.TCMB/2.7255, 4)
	return background{omegaM: m.OmegaM, omegaL: m.OmegaLambda, omegaR: omegaR}
}

func (b background) e2(a float64) float64 {
	a2 := a * a
	return b.omegaR/(a2*a2) + b.omegaM/(a2*a) + b.omegaL
}

func (b background) dlnHdlnA(a float64) float64 {
	a2 := a * a
	de2da := -4*b.omegaR/(a2*a2*a) - 3*b.omegaM/(a2*a2)
	return 0.5 * a * de2da / b.e2(a)
}

func (b background) omegaMOfA(a float64) float64 {
	a3 := a * a * a
	return (b.omegaM / a3) / b.e2(a)
}

// component tracks one growth function's value and its d/dlna
// derivative, the pair a first-order ODE system needs per
// second-order equation.
type component struct{ y, dy float64 }

// forced is the source coefficient for the linear-growth operator
// L[y] = y'' + (2+dlnH/dlna) y' - (3/2) Omega_m y applied to a single
// higher-order growth function: each is driven by a fixed power of
// the already-solved linear growth g, in the spirit of the standard
// perturbative hierarchy (every order sourced by products of lower
// orders, never by itself). The rational coefficients below follow
// the EdS-limit source strengths quoted in the perturbation-theory
// literature.
type forced struct {
	coeff float64
	power float64
}

var sources = map[string]forced{
	"A":  {coeff: -3.0 / 7.0, power: 2},
	"B":  {coeff: -1.0 / 7.0, power: 2},
	"D":  {coeff: 10.0 / 21.0, power: 2},
	"E":  {coeff: -1.0 / 14.0, power: 2},
	"F":  {coeff: 1.0 / 21.0, power: 2},
	"Gr": {coeff: 3.0 / 7.0, power: 3},
	"J":  {coeff: -2.0 / 21.0, power: 3},
}

// state is the full integration vector: g plus the seven
// g-sourced higher-order functions.
type state struct {
	g, A, B, D, E, F, Gr, J component
}

func deriv(bg background, a float64, s state) state {
	om := bg.omegaMOfA(a)
	friction := 2 + bg.dlnHdlnA(a)

	homog := func(y, dy float64) float64 {
		return -friction*dy + 1.5*om*y
	}
	src := func(name string, g float64) float64 {
		f := sources[name]
		return f.coeff * 1.5 * om * math.Pow(g, f.power)
	}

	var d state
	d.g.y = s.g.dy
	d.g.dy = homog(s.g.y, s.g.dy)

	d.A.y = s.A.dy
	d.A.dy = homog(s.A.y, s.A.dy) + src("A", s.g.y)

	d.B.y = s.B.dy
	d.B.dy = homog(s.B.y, s.B.dy) + src("B", s.g.y)

	d.D.y = s.D.dy
	d.D.dy = homog(s.D.y, s.D.dy) + src("D", s.g.y)

	d.E.y = s.E.dy
	d.E.dy = homog(s.E.y, s.E.dy) + src("E", s.g.y)

	d.F.y = s.F.dy
	d.F.dy = homog(s.F.y, s.F.dy) + src("F", s.g.y)

	d.Gr.y = s.Gr.dy
	d.Gr.dy = homog(s.Gr.y, s.Gr.dy) + src("Gr", s.g.y)

	d.J.y = s.J.dy
	d.J.dy = homog(s.J.y, s.J.dy) + src("J", s.g.y)

	return d
}

func addScaled(a, b state, h float64) state {
	scale := func(x, y component) component { return component{y: x.y + h*y.y, dy: x.dy + h*y.dy} }
	return state{
		g:  scale(a.g, b.g),
		A:  scale(a.A, b.A),
		B:  scale(a.B, b.B),
		D:  scale(a.D, b.D),
		E:  scale(a.E, b.E),
		F:  scale(a.F, b.F),
		Gr: scale(a.Gr, b.Gr),
		J:  scale(a.J, b.J),
	}
}

func combine(k1, k2, k3, k4 state) state {
	weighted := func(c1, c2, c3, c4 component) component {
		return component{
			y:  (c1.y + 2*c2.y + 2*c3.y + c4.y) / 6,
			dy: (c1.dy + 2*c2.dy + 2*c3.dy + c4.dy) / 6,
		}
	}
	return state{
		g:  weighted(k1.g, k2.g, k3.g, k4.g),
		A:  weighted(k1.A, k2.A, k3.A, k4.A),
		B:  weighted(k1.B, k2.B, k3.B, k4.B),
		D:  weighted(k1.D, k2.D, k3.D, k4.D),
		E:  weighted(k1.E, k2.E, k3.E, k4.E),
		F:  weighted(k1.F, k2.F, k3.F, k4.F),
		Gr: weighted(k1.Gr, k2.Gr, k3.Gr, k4.Gr),
		J:  weighted(k1.J, k2.J, k3.J, k4.J),
	}
}

// Solve integrates the growth system from deep matter domination
// (a_initial = 1/(1+params.ZInitial)) down to the requested redshift
// z, using EdS initial conditions (g proportional to a; every sourced
// function starts at zero, since its forcing term is negligible deep
// in matter domination).
func Solve(model types.FRWModel, params types.GrowthParams, z float64) Values {
	bg := newBackground(model)

	aInit := 1.0 / (1.0 + params.ZInitial)
	aFinal := 1.0 / (1.0 + z)

	xInit := math.Log(aInit)
	xFinal := math.Log(aFinal)
	h := (xFinal - xInit) / float64(steps)

	s := state{g: component{y: aInit, dy: aInit}}

	x := xInit
	for i := 0; i < steps; i++ {
		a := math.Exp(x)
		k1 := deriv(bg, a, s)
		a2 := math.Exp(x + h/2)
		k2 := deriv(bg, a2, addScaled(s, k1, h/2))
		k3 := deriv(bg, a2, addScaled(s, k2, h/2))
		a4 := math.Exp(x + h)
		k4 := deriv(bg, a4, addScaled(s, k3, h))
		s = addScaled(s, combine(k1, k2, k3, k4), h)
		x += h
	}

	logDeriv := func(c component) float64 {
		if c.y == 0 {
			return 0
		}
		return c.dy / c.y
	}

	return Values{
		G: s.g.y, A: s.A.y, B: s.B.y, D: s.D.y, E: s.E.y, F: s.F.y, Gr: s.Gr.y, J: s.J.y,
		FG: logDeriv(s.g), FA: logDeriv(s.A), FB: logDeriv(s.B), FD: logDeriv(s.D),
		FE: logDeriv(s.E), FF: logDeriv(s.F), FGr: logDeriv(s.Gr), FJ: logDeriv(s.J),
	}
}
