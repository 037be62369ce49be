package remote

// The hosted API ships message annotations as untyped JSON. A file citation
// looks like:
//
//	{"type": "file_citation", "text": "【0†source】",
//	 "file_citation": {"file_id": "file-abc", "quote": "..."}}
//
// Fields come and go between API revisions, so parsing is defensive: a
// malformed annotation is skipped, a missing quote keeps the fragment but
// leaves it non-citable.

// parseAnnotations unpacks grounding fragments in response order.
func parseAnnotations(raw []any) []Fragment {
	if len(raw) == 0 {
		return nil
	}

	fragments := make([]Fragment, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if asString(obj["type"]) != "file_citation" {
			continue
		}

		fragment := Fragment{Marker: asString(obj["text"])}
		if citation, ok := obj["file_citation"].(map[string]any); ok {
			fragment.FileID = asString(citation["file_id"])
			fragment.Quote = asString(citation["quote"])
		}
		if fragment.FileID == "" && fragment.Marker == "" {
			continue
		}
		fragments = append(fragments, fragment)
	}
	return fragments
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
