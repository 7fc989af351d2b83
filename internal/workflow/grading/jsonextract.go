package grading

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// decodeOrExtract unmarshals raw into v; if raw is not valid JSON (the vision
// model wrapped its reply in prose, or truncated it), it falls back to a
// best-effort gjson walk over the first '{'..last '}' slice. Used by the
// self-review and logic-review response paths, which receive free text from
// AnalyzeWithVision rather than a pre-decoded map.
func decodeOrExtract(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	body := extractJSONObject(raw)
	return json.Unmarshal([]byte(body), v)
}

// extractJSONObject returns the substring from the first '{' to the last
// '}', or the original string if no braces are found. gjson.Valid is used
// to avoid returning garbage when the reply has no JSON body at all.
func extractJSONObject(raw string) string {
	start := -1
	end := -1
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' {
			start = i
			break
		}
	}
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == '}' {
			end = i
			break
		}
	}
	if start == -1 || end == -1 || end < start {
		return raw
	}
	candidate := raw[start : end+1]
	if !gjson.Valid(candidate) {
		return raw
	}
	return candidate
}

// gjsonString is a small convenience wrapper kept distinct from
// decodeOrExtract for call sites that only need one scalar field out of a
// possibly-malformed reply (e.g. a single confidence number).
func gjsonString(raw, path string) (string, bool) {
	body := extractJSONObject(raw)
	res := gjson.Get(body, path)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}
