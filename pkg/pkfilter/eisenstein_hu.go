package pkfilter

import (
	"math"

	"github.com/cuemby/oneloop/pkg/types"
)

// zeroBaryonTransfer implements the Eisenstein & Hu (1998) eqs. 29-31
// "zero baryon" approximation to the matter transfer function, the
// one that needs only Omega_m, h and T_CMB, which is all an FRWModel
// carries.
func zeroBaryonTransfer(m types.FRWModel, kMpc float64) float64 {
	theta := m.TCMB / 2.7 // CMB temperature in units of 2.7K

	// Shape parameter of eq. 30-31 with f_baryon -> 0.
	gammaEff := m.OmegaM * m.H

	q := kMpc * theta * theta / gammaEff

	l0 := math.Log(2*math.E + 1.8*q)
	c0 := 14.2 + 731.0/(1+62.5*q)
	return l0 / (l0 + c0*q*q)
}

// approxPk builds the Eisenstein-Hu broadband spectrum normalized to
// match the tabulated linear spectrum at its lowest-k sample, where
// baryon acoustic wiggles are negligible.
func approxPk(m types.FRWModel, samples []types.LinearPkSample) func(kMpc float64) float64 {
	norm := 1.0
	if len(samples) > 0 {
		kMin := samples[0].K.Value()
		t := zeroBaryonTransfer(m, kMin)
		shape := kMin * t * t
		if shape > 0 {
			norm = samples[0].P / shape
		}
	}
	return func(kMpc float64) float64 {
		t := zeroBaryonTransfer(m, kMpc)
		return norm * kMpc * t * t
	}
}
