// Package token defines the disjoint 32-bit identifier types that
// stand in for every persisted entity: models, redshifts, wavenumbers
// (one marker per role), linear spectra, and one per parameter-block
// subsystem. Tokens are plain value types, copied freely, compared
// only by identifier, never dereferenced back into the store by the
// holder.
package token
