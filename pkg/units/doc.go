// Package units implements compile-time dimensioned quantities.
//
// A Quantity[D] wraps a plain float64 tagged by a phantom dimension
// marker D. Because D carries no fields, Quantity[D] has exactly the
// memory layout of float64: the dimension check is erased at compile
// time and costs nothing at run time. Arithmetic between incompatible
// dimensions is a compile error because no generic operator spans two
// different marker types: only the named combinators below
// (MulEnergyInverseEnergy, InvertEnergy, ...) are allowed to cross
// dimensions, and each says in its
// signature exactly which dimensions it accepts and produces.
package units
