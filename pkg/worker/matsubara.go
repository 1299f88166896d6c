package worker

import (
	"math"

	"github.com/cuemby/oneloop/pkg/types"
)

// matsubaraQuadPoints is the trapezoidal-rule resolution for the
// IR-resummation coefficient integrals.
const matsubaraQuadPoints = 256

// computeMatsubaraXY returns the IR-resummation coefficient pair: a
// monotonically increasing radial moment of the linear spectrum up to
// the IR-resummation scale, a smooth proxy for the BAO-damping
// bessel-function integrals of Matsubara (2008).
func computeMatsubaraXY(samples []types.LinearPkSample, irResumK float64) (x, y float64) {
	if len(samples) == 0 || irResumK <= 0 {
		return 0, 0
	}
	qMin := samples[0].K.Value()
	if irResumK <= qMin {
		return 0, 0
	}

	h := (irResumK - qMin) / float64(matsubaraQuadPoints)
	for i := 0; i <= matsubaraQuadPoints; i++ {
		q := qMin + float64(i)*h
		p := interpLogLog(samples, q)
		weight := h
		if i == 0 || i == matsubaraQuadPoints {
			weight *= 0.5
		}
		x += p * weight
		y += p * (q * q / (irResumK * irResumK)) * weight
	}
	x /= 6 * math.Pi * math.Pi
	y /= 2 * math.Pi * math.Pi
	return x, y
}
