package diag

// Related is a hint attached to the error it annotates.
type Related struct {
	Range   Range
	Message string
}

// Group is a primary diagnostic together with the hints that followed it.
type Group struct {
	Primary Diagnostic
	Related []Related
}

// GroupRelated walks list in order, keeping the most recent non-hint
// diagnostic as context, and nests each hint under it. A hint with no
// preceding diagnostic becomes its own group.
func GroupRelated(list []Diagnostic) []Group {
	if len(list) == 0 {
		return nil
	}
	groups := make([]Group, 0, len(list))
	current := -1
	for _, d := range list {
		if d.Severity == SevHint && current >= 0 {
			groups[current].Related = append(groups[current].Related, Related{
				Range:   d.Range,
				Message: d.Message,
			})
			continue
		}
		groups = append(groups, Group{Primary: d})
		if d.Severity != SevHint {
			current = len(groups) - 1
		}
	}
	return groups
}
