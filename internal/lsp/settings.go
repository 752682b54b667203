package lsp

import "encoding/json"

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didChangeConfiguration: %v", err)
		return nil
	}
	if s.applySettings(params.Settings) {
		s.rescheduleAll()
	}
	return nil
}

// applySettings merges the "capnls" section of a settings payload and
// reports whether anything affecting diagnostics changed.
func (s *Server) applySettings(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var settings lspSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.logf("ignoring settings: %v", err)
		return false
	}
	return s.mergeSettings(settings.Capnls)
}

func (s *Server) mergeSettings(next capnlsSettings) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	if next.ImportPaths != nil {
		s.settings.ImportPaths = append([]string(nil), next.ImportPaths...)
		changed = true
	}
	if next.Warnings != nil {
		v := *next.Warnings
		s.settings.Warnings = &v
		changed = true
	}
	if next.MaxDiagnostics != nil {
		v := *next.MaxDiagnostics
		s.settings.MaxDiagnostics = &v
		changed = true
	}
	if next.Trace != nil {
		s.traceLSP = *next.Trace
	}
	return changed
}
