package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/cuemby/oneloop/pkg/errkind"
)

func TestRouteErrLogsNonConvergenceAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	err := errkind.Wrap(errkind.NonConvergence, errors.New("loop kernel 22/P22_dd at k=#3 did not converge: abs_tol=1e-12 rel_tol=1.6e-11"))
	returned := RouteErr(logger, err, "integration non-convergence")

	assert.Equal(t, err, returned)
	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "non-convergence")
	assert.Contains(t, out, "rel_tol=1.6e-11")
}

func TestRouteErrLogsFatalKindsAtError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	RouteErr(logger, errkind.Wrap(errkind.Database, errors.New("commit failed")), "store failure")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestRouteErrNilIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	assert.NoError(t, RouteErr(logger, nil, "nothing"))
	assert.Empty(t, buf.String())
}
