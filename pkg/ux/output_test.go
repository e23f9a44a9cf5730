// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// forcePlain pins plain mode for a test and restores it after.
func forcePlain(t *testing.T) {
	t.Helper()
	SetPlain(true)
	t.Cleanup(func() { SetPlain(false) })
}

func TestPlain_PipedOutputIsPlain(t *testing.T) {
	// Test binaries never run with a TTY stdout, so even without the
	// override, output must be plain.
	SetPlain(false)
	if !Plain() {
		t.Error("Plain() should be true when stdout is not a terminal")
	}
}

func TestIcon_Render_PlainPassthrough(t *testing.T) {
	forcePlain(t)

	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow, IconBullet} {
		if got := icon.Render(); got != string(icon) {
			t.Errorf("Icon(%q).Render() in plain mode = %q, want bare icon", icon, got)
		}
	}
}

func TestSuccess_PlainPrefix(t *testing.T) {
	forcePlain(t)

	out := captureStdout(func() { Success("deposit committed") })
	if out != "OK: deposit committed\n" {
		t.Errorf("Success output = %q", out)
	}
}

func TestWarning_PlainGoesToStderr(t *testing.T) {
	forcePlain(t)

	var errOut string
	out := captureStdout(func() {
		errOut = captureStderr(func() { Warning("running in-memory") })
	})
	if out != "" {
		t.Errorf("Warning wrote to stdout in plain mode: %q", out)
	}
	if errOut != "WARN: running in-memory\n" {
		t.Errorf("Warning stderr = %q", errOut)
	}
}

func TestError_PlainGoesToStderr(t *testing.T) {
	forcePlain(t)

	errOut := captureStderr(func() { Error("connection refused") })
	if errOut != "ERROR: connection refused\n" {
		t.Errorf("Error stderr = %q", errOut)
	}
}

func TestTitleInfoMuted_PlainPassthrough(t *testing.T) {
	forcePlain(t)

	out := captureStdout(func() {
		Title("Vault")
		Info("three holders")
		Muted("aside")
	})
	if out != "Vault\nthree holders\naside\n" {
		t.Errorf("output = %q", out)
	}
}

func TestBox_Plain(t *testing.T) {
	forcePlain(t)

	out := captureStdout(func() { Box("Pool", "1000 ualeut") })
	if out != "Pool: 1000 ualeut\n" {
		t.Errorf("Box output = %q", out)
	}
}

func TestKV_AlignsLabels(t *testing.T) {
	forcePlain(t)

	got := KV([][2]string{
		{"Total shares", "1000"},
		{"Rate", "1.25"},
	})
	want := "Total shares  1000\n" +
		"Rate          1.25"
	if got != want {
		t.Errorf("KV = %q, want %q", got, want)
	}
}

func TestKV_Empty(t *testing.T) {
	forcePlain(t)
	if got := KV(nil); got != "" {
		t.Errorf("KV(nil) = %q, want empty", got)
	}
}

func TestTable_PlainAlignment(t *testing.T) {
	forcePlain(t)

	got := Table(
		[]string{"SEQ", "OP", "ASSETS"},
		[][]string{
			{"12", "DEPOSIT", "400"},
			{"3", "WITHDRAW", "90"},
		},
	)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != "SEQ  OP        ASSETS" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "12   DEPOSIT   400" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[2] != "3    WITHDRAW  90" {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestTable_PlainNoTrailingSpaces(t *testing.T) {
	forcePlain(t)

	got := Table([]string{"A", "B"}, [][]string{{"x", "y"}})
	for i, line := range strings.Split(got, "\n") {
		if strings.TrimRight(line, " ") != line {
			t.Errorf("line %d has trailing spaces: %q", i, line)
		}
	}
}

func TestTable_CarriesEveryCell(t *testing.T) {
	got := Table([]string{"OP"}, [][]string{{"DEPOSIT"}, {"YIELD"}})
	for _, cell := range []string{"OP", "DEPOSIT", "YIELD"} {
		if !strings.Contains(got, cell) {
			t.Errorf("Table output missing %q: %q", cell, got)
		}
	}
}
