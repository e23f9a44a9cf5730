// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// captureStdout redirects os.Stdout for the duration of fn.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	return string(data)
}

// captureStderr redirects os.Stderr for the duration of fn.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stderr = w

	fn()

	w.Close()
	os.Stderr = old

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stderr: %v", err)
	}
	return string(data)
}

// TestExitCodeConstants tests exit code constant values.
func TestExitCodeConstants(t *testing.T) {
	if CLIExitSuccess != 0 {
		t.Errorf("CLIExitSuccess = %d, want 0", CLIExitSuccess)
	}
	if CLIExitRejected != 1 {
		t.Errorf("CLIExitRejected = %d, want 1", CLIExitRejected)
	}
	if CLIExitError != 2 {
		t.Errorf("CLIExitError = %d, want 2", CLIExitError)
	}
}

// TestExitCodeFor tests the error-to-exit-code mapping.
func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", &apiError{Status: 400, Message: "no"}, CLIExitRejected},
		{"unauthorized", &apiError{Status: 401, Message: "no token"}, CLIExitRejected},
		{"not found", &apiError{Status: 404, Message: "missing"}, CLIExitRejected},
		{"unprocessable", &apiError{Status: 422, Message: "too big"}, CLIExitRejected},
		{"server error", &apiError{Status: 500, Message: "boom"}, CLIExitError},
		{"unavailable", &apiError{Status: 503, Message: "gate closed"}, CLIExitError},
		{"wrapped rejection", fmt.Errorf("depositing: %w", &apiError{Status: 400, Message: "no"}), CLIExitRejected},
		{"plain error", errors.New("connection refused"), CLIExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// TestCommandResultJSON tests that CommandResult serializes with the
// expected field names.
func TestCommandResultJSON(t *testing.T) {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    "vault status",
		Timestamp:  time.Now(),
		DurationMs: 12,
		Success:    true,
		Data:       map[string]string{"total_shares": "1000"},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Failed to marshal CommandResult: %v", err)
	}

	for _, key := range []string{`"api_version"`, `"command"`, `"duration_ms"`, `"success"`, `"data"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("CommandResult JSON missing %s: %s", key, data)
		}
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("successful CommandResult should omit the error field: %s", data)
	}
}

// TestOutputResult_SuccessJSON tests the envelope written in JSON mode.
func TestOutputResult_SuccessJSON(t *testing.T) {
	cfg := OutputConfig{JSON: true}
	data := map[string]string{"balance": "400"}

	var exitCode int
	out := captureStdout(t, func() {
		exitCode = OutputResult(cfg, "vault token balance", time.Now(), data, nil)
	})

	if exitCode != CLIExitSuccess {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitSuccess)
	}

	var result CommandResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("Failed to unmarshal envelope: %v\noutput: %s", err, out)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.Command != "vault token balance" {
		t.Errorf("Command = %q, want %q", result.Command, "vault token balance")
	}
	if result.APIVersion != cliAPIVersion {
		t.Errorf("APIVersion = %q, want %q", result.APIVersion, cliAPIVersion)
	}
	if result.Data == nil {
		t.Error("Data missing from envelope")
	}
}

// TestOutputResult_SuccessHuman tests that human mode writes nothing;
// rendering happens inside each command.
func TestOutputResult_SuccessHuman(t *testing.T) {
	cfg := OutputConfig{JSON: false}

	var exitCode int
	out := captureStdout(t, func() {
		exitCode = OutputResult(cfg, "vault status", time.Now(), map[string]string{"a": "b"}, nil)
	})

	if exitCode != CLIExitSuccess {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitSuccess)
	}
	if out != "" {
		t.Errorf("human-mode OutputResult wrote %q, want nothing", out)
	}
}

// TestOutputResult_RejectionJSON tests a 4xx flowing through to the
// envelope and the exit code.
func TestOutputResult_RejectionJSON(t *testing.T) {
	cfg := OutputConfig{JSON: true}
	apiErr := &apiError{Status: 422, Code: "INSUFFICIENT_SHARES", Message: "insufficient shares"}

	var exitCode int
	out := captureStdout(t, func() {
		exitCode = OutputResult(cfg, "vault redeem", time.Now(), nil, apiErr)
	})

	if exitCode != CLIExitRejected {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitRejected)
	}

	var result CommandResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("Failed to unmarshal envelope: %v\noutput: %s", err, out)
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if !strings.Contains(result.Error, "insufficient shares") {
		t.Errorf("Error = %q, want it to mention the rejection", result.Error)
	}
}

// TestOutputResult_ErrorHuman tests that errors reach stderr in human
// mode and the exit code is the hard-failure one.
func TestOutputResult_ErrorHuman(t *testing.T) {
	cfg := OutputConfig{JSON: false}

	var exitCode int
	errOut := captureStderr(t, func() {
		exitCode = OutputResult(cfg, "vault status", time.Now(), nil, errors.New("connection refused"))
	})

	if exitCode != CLIExitError {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitError)
	}
	if !strings.Contains(errOut, "Error: Command failed: connection refused") {
		t.Errorf("stderr = %q, want the failure line", errOut)
	}
}

// TestOutputJSON_Compact tests that compact mode drops indentation.
func TestOutputJSON_Compact(t *testing.T) {
	data := map[string]string{"k": "v"}

	indented := captureStdout(t, func() {
		if err := OutputJSON(data, false); err != nil {
			t.Errorf("OutputJSON: %v", err)
		}
	})
	compact := captureStdout(t, func() {
		if err := OutputJSON(data, true); err != nil {
			t.Errorf("OutputJSON: %v", err)
		}
	})

	if !strings.Contains(indented, "\n  ") {
		t.Errorf("indented output has no indentation: %q", indented)
	}
	if strings.Contains(compact, "  ") {
		t.Errorf("compact output is indented: %q", compact)
	}
}

// TestAPIErrorString tests the error message formats.
func TestAPIErrorString(t *testing.T) {
	withCode := &apiError{Status: 400, Code: "INVALID_AMOUNT", Message: "amount must be positive"}
	if got := withCode.Error(); got != "amount must be positive (INVALID_AMOUNT)" {
		t.Errorf("Error() = %q", got)
	}

	withoutCode := &apiError{Status: 502, Message: "Bad Gateway"}
	if got := withoutCode.Error(); got != "Bad Gateway" {
		t.Errorf("Error() = %q", got)
	}
}
