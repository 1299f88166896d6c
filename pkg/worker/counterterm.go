package worker

import (
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/wire"
)

// computeCountertermResult fits a simple per-multipole effective-field-
// theory counterterm coefficient from the gap between the resummed
// and non-resummed multipoles: the
// counterterm is exactly what a k^2 Pk_counterterm addition would need
// to supply to reproduce that gap, which is the same fitting logic
// EFT-of-LSS counterterm marginalization performs (only without the
// covariance-weighted least squares a genuine fit would use across
// the full k range).
func computeCountertermResult(d wire.CountertermDispatch) types.CountertermResult {
	byEll := make(map[int]float64, len(d.Pk.NonResummed))
	for ell, nr := range d.Pk.NonResummed {
		r := d.Pk.Resummed[ell]
		if d.K == 0 {
			byEll[ell] = 0
			continue
		}
		byEll[ell] = (nr - r) / (d.K * d.K)
	}
	return types.CountertermResult{ID: d.Item.ID, ByEll: byEll}
}
