package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"capnls/internal/capnp"
	"capnls/internal/config"
	"capnls/internal/diag"
	"capnls/internal/diagfmt"
)

func writeFakeCompiler(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler is a shell script")
	}
	path := filepath.Join(t.TempDir(), "capnp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake compiler: %v", err)
	}
	return path
}

func TestCheckFilesKeepsArgumentOrder(t *testing.T) {
	// Reports an error only for files named bad.capnp; the path is the last argument.
	tool := writeFakeCompiler(t, `for last; do :; done
case "$last" in
*bad.capnp) echo "$last:2:5-8: error: Parse error." >&2 ;;
esac`)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.capnp")
	bad := filepath.Join(dir, "bad.capnp")
	missing := filepath.Join(dir, "missing.capnp")
	for _, p := range []string{good, bad} {
		if err := os.WriteFile(p, []byte("@0xdbb9ad1f14bf0b36;\n"), 0o600); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	inv := capnp.NewInvoker(capnp.Options{Tool: tool})
	reports := checkFiles(context.Background(), inv, []string{bad, good, missing}, checkOptions{jobs: 2})

	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	if reports[0].Path != bad || len(reports[0].Diagnostics) != 1 {
		t.Fatalf("unexpected report for bad file: %+v", reports[0])
	}
	want := diag.New(diag.Range{
		Start: diag.Position{Line: 1, Character: 4},
		End:   diag.Position{Line: 1, Character: 7},
	}, diag.SevError, "Parse error")
	if reports[0].Diagnostics[0] != want {
		t.Fatalf("diagnostic = %+v, want %+v", reports[0].Diagnostics[0], want)
	}
	if reports[1].Err != nil || len(reports[1].Diagnostics) != 0 {
		t.Fatalf("good file should be clean: %+v", reports[1])
	}
	if reports[2].Err == nil {
		t.Fatalf("missing file should fail")
	}
	counts := diagfmt.Count(reports)
	if counts.Errors != 1 || counts.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestLimitReports(t *testing.T) {
	d := diag.New(diag.Point(diag.Position{}), diag.SevError, "x")
	reports := []diagfmt.FileReport{
		{Path: "a.capnp", Diagnostics: []diag.Diagnostic{d, d, d}},
		{Path: "b.capnp", Diagnostics: []diag.Diagnostic{d}},
	}
	shown, omitted := limitReports(reports, 2)
	if omitted != 1 {
		t.Fatalf("omitted = %d, want 1", omitted)
	}
	if len(shown[0].Diagnostics) != 2 || len(shown[1].Diagnostics) != 1 {
		t.Fatalf("unexpected limits: %d, %d", len(shown[0].Diagnostics), len(shown[1].Diagnostics))
	}
	if len(reports[0].Diagnostics) != 3 {
		t.Fatalf("input reports must not be modified")
	}
	if same, n := limitReports(reports, 0); n != 0 || len(same[0].Diagnostics) != 3 {
		t.Fatalf("zero limit should keep everything")
	}
}

func TestCollectVersionInfoUsesBuildSettings(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123abcd"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		}}, true
	}
	info := collectVersionInfo(read)
	if info.GitCommit != "0123abcd" || info.BuildDate != "2026-01-02T03:04:05Z" || !info.Modified {
		t.Fatalf("unexpected info: %+v", info)
	}

	var buf bytes.Buffer
	if err := renderVersionJSON(&buf, info, versionOptions{showHash: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Tool != "capnls" || payload.GitCommit != "0123abcd" || payload.BuildDate != "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func newTimeoutCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "check"}
	cmd.Flags().Duration("timeout", 0, "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestCheckTimeoutZeroDisablesLikeConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Compiler.Timeout = "0"
	fromConfig, err := cfg.Timeout()
	if err != nil {
		t.Fatalf("config timeout: %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		setting string
		want    time.Duration
	}{
		{"flag zero", []string{"--timeout=0"}, "10s", -1},
		{"flag negative", []string{"--timeout=-1s"}, "", -1},
		{"flag positive", []string{"--timeout=5s"}, "0", 5 * time.Second},
		{"config zero", nil, "0", fromConfig},
		{"config unset", nil, "", 0},
		{"config value", nil, "10s", 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Compiler.Timeout = tt.setting
			got, err := checkTimeout(newTimeoutCommand(t, tt.args...), cfg)
			if err != nil {
				t.Fatalf("checkTimeout: %v", err)
			}
			if got != tt.want {
				t.Fatalf("timeout = %s, want %s", got, tt.want)
			}
		})
	}
	if fromConfig >= 0 {
		t.Fatalf("config zero should disable the timeout, got %s", fromConfig)
	}
}

func TestUseColorChecksOutputWriter(t *testing.T) {
	cmd := &cobra.Command{Use: "capnls"}
	cmd.PersistentFlags().String("color", "auto", "")

	var buf bytes.Buffer
	if colored, err := useColor(cmd, &buf); err != nil || colored {
		t.Fatalf("auto on a buffer: colored=%v err=%v", colored, err)
	}
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer f.Close()
	if colored, err := useColor(cmd, f); err != nil || colored {
		t.Fatalf("auto on a regular file: colored=%v err=%v", colored, err)
	}

	if err := cmd.PersistentFlags().Set("color", "on"); err != nil {
		t.Fatalf("set color: %v", err)
	}
	if colored, err := useColor(cmd, &buf); err != nil || !colored {
		t.Fatalf("on: colored=%v err=%v", colored, err)
	}
	if err := cmd.PersistentFlags().Set("color", "sometimes"); err != nil {
		t.Fatalf("set color: %v", err)
	}
	if _, err := useColor(cmd, &buf); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}
