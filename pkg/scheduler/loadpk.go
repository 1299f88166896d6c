package scheduler

import (
	"bufio"
	"crypto/md5"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
)

// loadLinearPk reads a two-column ASCII (k, P(k)) table and returns
// the registry row, with the file's MD5 digest as its identity,
// alongside its parsed samples sorted by k.
func loadLinearPk(path string) (types.LinearPkMeta, []types.LinearPkSample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.LinearPkMeta{}, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var samples []types.LinearPkSample
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return types.LinearPkMeta{}, nil, fmt.Errorf("%s: malformed row %q", path, line)
		}
		k, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return types.LinearPkMeta{}, nil, fmt.Errorf("%s: k field: %w", path, err)
		}
		p, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return types.LinearPkMeta{}, nil, fmt.Errorf("%s: P field: %w", path, err)
		}
		samples = append(samples, types.LinearPkSample{K: units.New[units.Energy](k), P: p})
	}
	if err := scanner.Err(); err != nil {
		return types.LinearPkMeta{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].K.Value() < samples[j].K.Value() })

	meta := types.LinearPkMeta{Path: path, MD5: md5.Sum(raw)}
	return meta, samples, nil
}

// synthesizeNoWiggle builds a registry row and sample table for the
// no-wiggle spectrum produced by the filtering phase, so the
// loop-kernel phase can tokenize and reference it exactly like any
// other linear spectrum: a derived P(k), content-addressed on its
// own values.
func synthesizeNoWiggle(sourcePath string, samples []types.LinearPkSample) types.LinearPkMeta {
	h := md5.New()
	for _, s := range samples {
		fmt.Fprintf(h, "%.17g:%.17g;", s.K.Value(), s.P)
	}
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return types.LinearPkMeta{Path: sourcePath + "#nowiggle", MD5: sum}
}
