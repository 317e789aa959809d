package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fwad "+version+"\n", out)
}

func TestStress(t *testing.T) {
	out, err := run(t, "stress", "--workers", "4", "--iterations", "200", "--levels", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "METRIC")
	assert.Contains(t, out, "0,1,2")
	assert.Contains(t, out, "violations")
}

func TestStressSequential(t *testing.T) {
	out, err := run(t, "stress", "--iterations", "50", "--sequential")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
}

func TestStressInvalid(t *testing.T) {
	_, err := run(t, "stress", "--workers", "0")
	assert.Error(t, err)
}

func TestJoinIndices(t *testing.T) {
	assert.Equal(t, "-", joinIndices(nil))
	assert.Equal(t, "0,2", joinIndices([]uint64{0, 2}))
}

func TestErrorsNotPrintedByCobra(t *testing.T) {
	out, err := run(t, "stress", "--levels", "0")
	require.Error(t, err)
	assert.NotContains(t, out, "Error:")
}
