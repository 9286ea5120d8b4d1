package document

import "time"

// ChangeRecord is one audit entry in metadata.change_history.
type ChangeRecord struct {
	Path string
	// PreviousValue is meaningful only when HadPrevious is true; an absent
	// field is recorded by omitting previous_value altogether.
	PreviousValue any
	HadPrevious   bool
	NewValue      any
	Reason        string
	Timestamp     string
}

// Map renders the record in its stored form.
func (r ChangeRecord) Map() map[string]any {
	m := map[string]any{
		"path":      r.Path,
		"new_value": CloneValue(r.NewValue),
		"reason":    r.Reason,
		"timestamp": r.Timestamp,
	}
	if r.HadPrevious {
		m["previous_value"] = CloneValue(r.PreviousValue)
	}
	return m
}

// RecordFromMap parses a stored change_history entry. Entries that are not
// mappings yield ok == false.
func RecordFromMap(v any) (ChangeRecord, bool) {
	m, ok := AsMapping(v)
	if !ok {
		return ChangeRecord{}, false
	}
	r := ChangeRecord{NewValue: m["new_value"]}
	r.Path, _ = m["path"].(string)
	r.Reason, _ = m["reason"].(string)
	r.Timestamp, _ = m["timestamp"].(string)
	r.PreviousValue, r.HadPrevious = m["previous_value"]
	return r, true
}

// History returns the document's change records, newest first.
func History(d Document) []ChangeRecord {
	md, ok := AsMapping(d[MetadataKey])
	if !ok {
		return nil
	}
	entries, _ := md[ChangeHistoryKey].([]any)
	out := make([]ChangeRecord, 0, len(entries))
	for _, e := range entries {
		if r, ok := RecordFromMap(e); ok {
			out = append(out, r)
		}
	}
	return out
}

// Default returns the document seeded on first use.
func Default(now time.Time) Document {
	return Document{
		"basic_info": map[string]any{
			"name":     "Example User",
			"location": "Example City",
		},
		"preferences": map[string]any{
			"communication_style": "direct",
			"learning_style":      "visual",
		},
		InstructionKey: map[string]any{
			"primary":        "Use this context when responding to my questions",
			"context_update": "If you learn new information about me, suggest adding it",
			PrivacyKey:       "All health information is private, professional information is public",
		},
		MetadataKey: map[string]any{
			VersionKey:       "1.0",
			LastUpdatedKey:   FormatTimestamp(now),
			ChangeHistoryKey: make([]any, 0),
		},
	}
}
