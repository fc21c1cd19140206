package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"components": 2})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"path": "elements[0].pins[0].x"}
	err := formatter.Error(CodeStructural, "structural error", details)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeStructural, resp.Error.Code)
	assert.Equal(t, "structural error", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(CodeNotFound, "file not found", map[string]string{"file": "a.json"}))
			assert.Contains(t, buf.String(), "Error [E005]: file not found")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("Reading %s", "board.json")

	assert.Empty(t, out.String())
	assert.Contains(t, diag.String(), "Reading board.json")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "missing file"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("run: %w", WrapExitError(ExitFailure, "invalid", errors.New("x"))), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "write failed", inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "write failed: disk full", err.Error())
}
