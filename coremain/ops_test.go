package coremain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestOpCmds(t *testing.T) {
	p := writeConfig(t, `
cache:
  capacity: 4
backend:
  type: coremain_test
  cache_name: ops
`)
	out, err := execCmd(t, "put", "-c", p, "--ttl", "0", "k", "v")
	require.NoError(t, err)
	require.Equal(t, "v\n", out)

	out, err = execCmd(t, "get", "-c", p, "k")
	require.NoError(t, err)
	require.Equal(t, "v\n", out)

	_, err = execCmd(t, "del", "-c", p, "k")
	require.NoError(t, err)
	_, err = execCmd(t, "get", "-c", p, "k")
	require.ErrorIs(t, err, errNotFound)
}

func TestOpCmds_PutRejectsTTL(t *testing.T) {
	p := writeConfig(t, `
cache:
  capacity: 4
backend:
  type: coremain_test
  cache_name: ops_ttl
`)
	_, err := execCmd(t, "put", "-c", p, "--ttl", "1", "k", "v")
	require.ErrorIs(t, err, errOneShotTTL)
	require.Zero(t, testStore.Len("ops_ttl"))

	_, err = execCmd(t, "put", "-c", p, "--ttl", "-1", "k", "v")
	require.Error(t, err)

	withDefaultTTL := writeConfig(t, `
cache:
  capacity: 4
  ttl: 1
backend:
  type: coremain_test
  cache_name: ops_ttl
`)
	_, err = execCmd(t, "put", "-c", withDefaultTTL, "--ttl", "0", "k", "v")
	require.ErrorIs(t, err, errOneShotTTL)
	require.Zero(t, testStore.Len("ops_ttl"))
}
