package worker

import (
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/wire"
)

// muForLabel assigns each loop-kernel label's contribution to the
// mu-power it projects onto in the assembled P(k): density-density
// terms are angle-independent at tree level, the
// density-theta cross term carries one power of mu^2 from the
// velocity divergence, and theta-theta carries mu^4).
var muForLabel = map[types.LoopKernelLabel]types.MuPower{
	types.LabelPtree: types.Mu0,
	types.LabelP22dd: types.Mu0, types.LabelP13dd: types.Mu0,
	types.LabelP22dt: types.Mu2, types.LabelP13dt: types.Mu2,
	types.LabelP22tt: types.Mu4, types.LabelP13tt: types.Mu4,
}

// assembleEntry combines one (k,z) point's growth sample and
// loop-kernel results into the one-loop P(k) decomposition. The
// tree term is taken from the raw (wiggle-
// carrying) spectrum since it IS the linear spectrum; the loop terms
// are taken from the no-wiggle spectrum, following the standard
// one-loop practice of integrating loop corrections against a smooth
// broadband shape to avoid numerical noise from BAO wiggles under
// cubature sampling.
func assembleEntry(d wire.AssembleDispatch) types.AssembledPkEntry {
	tree := make(map[types.MuPower]float64)
	p13 := make(map[types.MuPower]float64)
	p22 := make(map[types.MuPower]float64)
	oneLoop := make(map[types.MuPower]float64)

	growthSq := d.Growth.G * d.Growth.G
	if len(d.Final) > 0 {
		// A final spectrum, already rescaled by (D_init/D_final)^2 on
		// the master, replaces the tree kernel's value: it carries the
		// same normalization as the initial spectrum but the final
		// epoch's shape.
		tree[types.Mu0] = growthSq * interpLogLog(d.Final, d.K)
	} else if r, ok := d.Raw[types.LabelPtree]; ok {
		tree[types.Mu0] = growthSq * r.Value
	}

	for label, mu := range muForLabel {
		if label == types.LabelPtree {
			continue
		}
		r, ok := d.NW[label]
		if !ok {
			continue
		}
		value := growthSq * r.Value
		switch label[:4] {
		case "P22_":
			p22[mu] += value
		default:
			p13[mu] += value
		}
	}

	for _, mu := range []types.MuPower{types.Mu0, types.Mu2, types.Mu4} {
		oneLoop[mu] = tree[mu] + p13[mu] + p22[mu]
	}

	return types.AssembledPkEntry{ID: d.Item.ID, Tree: tree, P13: p13, P22: p22, OneLoop: oneLoop}
}
