// Package pkfilter computes the Eisenstein-Hu no-wiggle broadband
// spectrum and the wiggle/no-wiggle decomposition of a tabulated
// linear power spectrum. The no-wiggle part is the broadband
// approximation scaled by the ratio P(k)/P_approx(k) smoothed, in log
// space, with a normalized Gaussian kernel in log10(k) by trapezoidal
// quadrature over the tabulated samples: the integral is genuinely
// one-dimensional, so pkg/cubature.Driver is reserved for the
// loop-kernel integrals that are not.
//
// Rescale maps a final-epoch spectrum onto the initial spectrum's
// normalization with the squared ratio of the linear growth factors
// at the two epochs; the scheduler applies it before the final table
// joins one-loop assembly.
package pkfilter
