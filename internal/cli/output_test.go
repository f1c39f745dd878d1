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

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("C004", "behaviour invalid", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "C004", resp.Error.Code)
	assert.Equal(t, "behaviour invalid", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "behaviour.cue", "line": "7"}
	err := formatter.Error("C003", "build failed", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Behaviour valid")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Behaviour valid")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("C004", "behaviour invalid", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [C004]")
	assert.Contains(t, buf.String(), "behaviour invalid")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "behaviour.cue"}
	err := formatter.Error("C004", "behaviour invalid", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [C004]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "behaviour.cue")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Processing behaviour.cue")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   true,
	}

	formatter.VerboseLog("journaled run %s", "run-0001")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "journaled run run-0001")
	assert.Same(t, errOut, formatter.errWriter())
}

func TestGetExitCode(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := fmt.Errorf("run: %w", WrapExitError(ExitCommandError, "failed to write journal", cause))

	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "failed to write journal: disk full", errors.Unwrap(wrapped).Error())
	assert.Equal(t, "2 scenario(s) failed", NewExitError(ExitFailure, "2 scenario(s) failed").Error())
}
