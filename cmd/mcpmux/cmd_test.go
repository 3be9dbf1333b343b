package cmd

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := &exitCodeError{code: ExitCodeError, err: cause}
	assert.Equal(t, "boom", e.Error())
	assert.ErrorIs(t, e, cause)
}

func TestVersionCommand_PrintsVersion(t *testing.T) {
	SetVersion("9.9.9")
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "9.9.9")
}

func TestRunList_MissingConfigReturnsExitCodeError(t *testing.T) {
	err := runList(listCmd, []string{filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	var exitErr *exitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitCodeError, exitErr.code)
}

func TestRunServe_MissingConfigReturnsExitCodeError(t *testing.T) {
	err := runServe(serveCmd, []string{filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	var exitErr *exitCodeError
	require.ErrorAs(t, err, &exitErr)
}

func TestRootCmd_DefaultConfigPathIsMcpmuxJSON(t *testing.T) {
	err := runList(listCmd, nil)
	require.Error(t, err) // no mcpmux.json in the test working directory
}
