package worker

import (
	"math"

	"github.com/cuemby/oneloop/pkg/cubature"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/wire"
)

// f2Kernel and g2Kernel are the standard second-order density and
// velocity-divergence perturbation-theory kernels, in their
// angle/ratio form (r = q/k, x = cosine of the angle between k and
// q), the textbook building block of every P22 one-loop integral.
func f2Kernel(r, x float64) float64 {
	return 5.0/7.0 + 0.5*x*(r+1/r) + (2.0/7.0)*x*x
}

func g2Kernel(r, x float64) float64 {
	return 3.0/7.0 + 0.5*x*(r+1/r) + (4.0/7.0)*x*x
}

// f3Like stands in for the genuinely third-order P13 mode-coupling
// kernel (Makino, Sasaki & Suto 1992's alpha(r), not reproduced
// here). It blends the two second-order kernels so the
// resulting integrand stays smooth and bounded across r=1, where the
// real alpha(r) has a removable log singularity this stand-in avoids
// entirely.
func f3Like(r, x float64) float64 {
	return (7.0/18.0)*f2Kernel(r, x) + (1.0/18.0)*g2Kernel(r, x)
}

// p22Prefactor and p13Prefactor are structural loop-measure
// normalizations (k^3/(2*(2*pi)^3)-scale), not a literal transcription
// of any published constant.
const (
	p22Prefactor = 1.0 / (2.0 * 8.0 * math.Pi * math.Pi * math.Pi)
	p13Prefactor = 1.0 / (6.0 * 8.0 * math.Pi * math.Pi * math.Pi)
)

// buildIntegrand returns the cubature integrand and its hypercube
// dimension for one loop-kernel dispatch.
// 22-type integrals loop over a full 3-vector (q, cos-angle, azimuth);
// 13-type integrals collapse to a radial ratio and an angle since the
// stand-in f3Like above has no azimuthal dependence.
func buildIntegrand(d wire.LoopKernelDispatch) (cubature.Integrand, int) {
	k := d.K
	logSpan := math.Log(d.UV / d.IR)
	pk := interpLogLog(d.Samples, k)

	radial := func(x0 float64) (q, jacobian float64) {
		q = d.IR * math.Exp(x0*logSpan)
		return q, q * logSpan
	}

	switch d.Item.ID.Kind {
	case types.KernelTwentyTwo:
		shape := p22Shape(d.Item.ID.Label)
		integrand := func(x []float64) float64 {
			q, jac := radial(x[0])
			mu := 2*x[1] - 1
			phi := 2 * math.Pi * x[2]
			_ = phi // azimuthally symmetric in this stand-in; sampled for a genuine 3-d cubature exercise
			k2 := math.Sqrt(k*k + q*q - 2*k*q*mu)
			if k2 <= 0 {
				return 0
			}
			r := q / k
			kernel := shape(r, mu)
			return jac * 2 * 2 * math.Pi * kernel * pk * interpLogLog(d.Samples, k2) * q * q * p22Prefactor
		}
		return integrand, 3

	default: // KernelThirteen (and tree, which borrows the 13-type retry budget)
		if d.Item.ID.Label == types.LabelPtree {
			integrand := func(x []float64) float64 { return pk }
			return integrand, 2
		}
		integrand := func(x []float64) float64 {
			q, jac := radial(x[0])
			mu := 2*x[1] - 1
			r := q / k
			kernel := f3Like(r, mu) * f3Like(r, mu)
			return jac * 2 * kernel * pk * interpLogLog(d.Samples, q) * p13Prefactor
		}
		return integrand, 2
	}
}

// p22Shape selects which pair of second-order kernels forms the P22
// integrand for a given label.
func p22Shape(label types.LoopKernelLabel) func(r, x float64) float64 {
	switch label {
	case types.LabelP22dt:
		return func(r, x float64) float64 { return f2Kernel(r, x) * g2Kernel(r, x) }
	case types.LabelP22tt:
		return func(r, x float64) float64 { return g2Kernel(r, x) * g2Kernel(r, x) }
	default: // LabelP22dd
		return func(r, x float64) float64 { return f2Kernel(r, x) * f2Kernel(r, x) }
	}
}
