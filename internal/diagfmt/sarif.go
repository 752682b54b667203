package diagfmt

import (
	"encoding/json"
	"io"
	"net/url"
	"path/filepath"

	"capnls/internal/diag"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Results     []sarifResult     `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type sarifInvocation struct {
	Arguments           []string `json:"arguments,omitempty"`
	ExecutionSuccessful bool     `json:"executionSuccessful"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	Level            string          `json:"level"`
	Message          sarifMessage    `json:"message"`
	Locations        []sarifLocation `json:"locations"`
	RelatedLocations []sarifLocation `json:"relatedLocations,omitempty"`
}

type sarifLocation struct {
	ID               int                   `json:"id,omitempty"`
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
	Message          *sarifMessage         `json:"message,omitempty"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

// sarifRegion uses 1-based lines and columns; endColumn is exclusive.
type sarifRegion struct {
	StartLine   uint32 `json:"startLine"`
	StartColumn uint32 `json:"startColumn"`
	EndLine     uint32 `json:"endLine,omitempty"`
	EndColumn   uint32 `json:"endColumn,omitempty"`
}

// Sarif writes reports as a SARIF v2.1.0 log. Hints become relatedLocations
// of the error they follow.
func Sarif(w io.Writer, reports []FileReport, meta SarifRunMeta) error {
	name := meta.ToolName
	if name == "" {
		name = diag.Source
	}
	run := sarifRun{
		Tool:    sarifTool{Driver: sarifDriver{Name: name, Version: meta.ToolVersion}},
		Results: make([]sarifResult, 0),
	}
	failed := false
	for _, r := range reports {
		if r.Err != nil {
			failed = true
			continue
		}
		uri := sarifURI(r.Path, meta.BaseDir)
		for _, g := range diag.GroupRelated(r.Diagnostics) {
			res := sarifResult{
				Level:     sarifLevel(g.Primary.Severity),
				Message:   sarifMessage{Text: g.Primary.Message},
				Locations: []sarifLocation{sarifLoc(uri, g.Primary.Range)},
			}
			for i, rel := range g.Related {
				loc := sarifLoc(uri, rel.Range)
				loc.ID = i + 1
				loc.Message = &sarifMessage{Text: rel.Message}
				res.RelatedLocations = append(res.RelatedLocations, loc)
			}
			run.Results = append(run.Results, res)
		}
	}
	if len(meta.InvocationArgs) > 0 {
		run.Invocations = []sarifInvocation{{
			Arguments:           meta.InvocationArgs,
			ExecutionSuccessful: !failed,
		}}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs:    []sarifRun{run},
	})
}

func sarifLoc(uri string, rng diag.Range) sarifLocation {
	return sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: uri},
			Region: sarifRegion{
				StartLine:   rng.Start.Line + 1,
				StartColumn: rng.Start.Character + 1,
				EndLine:     rng.End.Line + 1,
				EndColumn:   rng.End.Character + 1,
			},
		},
	}
}

func sarifLevel(sev diag.Severity) string {
	switch sev {
	case diag.SevError:
		return "error"
	case diag.SevWarning:
		return "warning"
	default:
		return "note"
	}
}

func sarifURI(path, base string) string {
	rel := displayPath(path, PathModeAuto, base)
	if filepath.IsAbs(rel) {
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(rel)}
		return u.String()
	}
	return filepath.ToSlash(rel)
}
