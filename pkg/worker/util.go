package worker

import (
	"math"
	"sort"

	"github.com/cuemby/oneloop/pkg/types"
)

// interpLogLog linearly interpolates P(k) in log-log space, clamping
// outside the tabulated range. Duplicated from pkg/pkfilter rather
// than exported from there, since the two packages interpolate for
// unrelated reasons (filtering vs. loop-kernel integrands) and the
// function is a handful of lines.
func interpLogLog(samples []types.LinearPkSample, kMpc float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	if kMpc <= samples[0].K.Value() {
		return samples[0].P
	}
	if kMpc >= samples[n-1].K.Value() {
		return samples[n-1].P
	}
	i := sort.Search(n, func(i int) bool { return samples[i].K.Value() >= kMpc })
	lo, hi := samples[i-1], samples[i]
	logK, logKLo, logKHi := math.Log(kMpc), math.Log(lo.K.Value()), math.Log(hi.K.Value())
	if logKHi == logKLo {
		return lo.P
	}
	t := (logK - logKLo) / (logKHi - logKLo)
	logPLo, logPHi := math.Log(lo.P), math.Log(hi.P)
	return math.Exp(logPLo + t*(logPHi-logPLo))
}
