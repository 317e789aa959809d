package forward

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/forwardad/internal/tensor"
)

func newValue(t testing.TB, vals ...float32) *tensor.RawTensor {
	t.Helper()
	v, err := tensor.FromFloat32(vals, tensor.Shape{len(vals)})
	require.NoError(t, err)
	return v
}
