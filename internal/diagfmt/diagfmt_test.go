package diagfmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"capnls/internal/diag"
)

func sampleReports(dir string) []FileReport {
	src := "@0xbf5147cbbecf40c1;\nstruct Foo {\n  i @0 :Int32;\n  u @0 :UInt32;\n}\n"
	return []FileReport{
		{
			Path:   filepath.Join(dir, "foo.capnp"),
			Source: []byte(src),
			Diagnostics: []diag.Diagnostic{
				diag.New(diag.Range{
					Start: diag.Position{Line: 3, Character: 4},
					End:   diag.Position{Line: 3, Character: 6},
				}, diag.SevError, "Duplicate ordinal number"),
				diag.New(diag.Range{
					Start: diag.Position{Line: 2, Character: 4},
					End:   diag.Position{Line: 2, Character: 6},
				}, diag.SevHint, "Ordinal @0 originally used here"),
			},
		},
		{
			Path: filepath.Join(dir, "broken.capnp"),
			Err:  errors.New("compiler timed out"),
		},
	}
}

func TestPrettyWithContext(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	err := Pretty(&buf, sampleReports(dir), PrettyOpts{PathMode: PathModeRelative, BaseDir: dir, Context: true})
	if err != nil {
		t.Fatalf("pretty: %v", err)
	}
	want := strings.Join([]string{
		"foo.capnp:4:5: error: Duplicate ordinal number",
		"   4 |   u @0 :UInt32;",
		"     |     ^~",
		"foo.capnp:3:5: hint: Ordinal @0 originally used here",
		"   3 |   i @0 :Int32;",
		"     |     ^~",
		"broken.capnp: failed: compiler timed out",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := Summary(&buf, Count(sampleReports(t.TempDir())), false); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got := buf.String(); got != "1 error(s), 0 warning(s), 1 hint(s), 1 file(s) failed\n" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestJSONOutput(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := JSON(&buf, sampleReports(dir), JSONOpts{PathMode: PathModeBasename, Max: 1}); err != nil {
		t.Fatalf("json: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(out.Files))
	}
	foo := out.Files[0]
	if foo.File != "foo.capnp" || len(foo.Diagnostics) != 1 || foo.Truncated != 1 {
		t.Fatalf("unexpected file entry: %+v", foo)
	}
	if foo.Diagnostics[0].Severity != "ERROR" || foo.Diagnostics[0].Range.End.Character != 6 {
		t.Fatalf("unexpected diagnostic: %+v", foo.Diagnostics[0])
	}
	if out.Files[1].Error == "" {
		t.Fatal("expected error for broken file")
	}
	if out.Summary.Errors != 1 || out.Summary.Hints != 1 || out.Summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", out.Summary)
	}
}

func TestMsgpackMatchesJSONModel(t *testing.T) {
	dir := t.TempDir()
	reports := sampleReports(dir)
	var buf bytes.Buffer
	if err := Msgpack(&buf, reports, JSONOpts{PathMode: PathModeBasename}); err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	got, err := DecodeMsgpack(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := BuildOutput(reports, JSONOpts{PathMode: PathModeBasename})
	gotJSON, _ := json.Marshal(got)
	wantJSON, _ := json.Marshal(want)
	if !bytes.Equal(gotJSON, wantJSON) {
		t.Fatalf("msgpack output differs:\n got %s\nwant %s", gotJSON, wantJSON)
	}
}

func TestSarifNestsHints(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	err := Sarif(&buf, sampleReports(dir), SarifRunMeta{ToolVersion: "0.1.0", BaseDir: dir, InvocationArgs: []string{"check", "foo.capnp"}})
	if err != nil {
		t.Fatalf("sarif: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 1 {
		t.Fatalf("unexpected log: %+v", log)
	}
	run := log.Runs[0]
	if run.Tool.Driver.Name != "capnls" {
		t.Fatalf("unexpected driver: %+v", run.Tool.Driver)
	}
	if len(run.Results) != 1 {
		t.Fatalf("expected hint folded into one result, got %d", len(run.Results))
	}
	res := run.Results[0]
	region := res.Locations[0].PhysicalLocation.Region
	if res.Level != "error" || region.StartLine != 4 || region.StartColumn != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Locations[0].PhysicalLocation.ArtifactLocation.URI != "foo.capnp" {
		t.Fatalf("unexpected uri: %s", res.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	}
	if len(res.RelatedLocations) != 1 || res.RelatedLocations[0].Message.Text != "Ordinal @0 originally used here" {
		t.Fatalf("unexpected related locations: %+v", res.RelatedLocations)
	}
	if len(run.Invocations) != 1 || run.Invocations[0].ExecutionSuccessful {
		t.Fatalf("expected unsuccessful invocation: %+v", run.Invocations)
	}
}
