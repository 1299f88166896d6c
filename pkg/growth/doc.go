// Package growth solves the coupled ODE system for the eight
// perturbation-theory growth functions (g, A, B, D, E, F, G, J) and
// their logarithmic derivatives carried by types.GrowthSample. Solve
// drives a fixed-step RK4 integrator from deep matter domination down
// to the requested redshift.
package growth
