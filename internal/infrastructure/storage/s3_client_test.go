package storage

import "testing"

func TestPageImageKey_RoundTripsThroughParse(t *testing.T) {
	key := pageImageKey("batch-1", "alice", 3, ".png")
	prefix := "batches/batch-1/pages/"
	ref, ok := parsePageImageKey(prefix, key)
	if !ok {
		t.Fatalf("expected key %q to parse under prefix %q", key, prefix)
	}
	if ref.StudentKey != "alice" || ref.PageIndex != 3 || ref.ContentType != "image/png" {
		t.Fatalf("unexpected parsed ref: %+v", ref)
	}
}

func TestParsePageImageKey_RejectsMalformedKey(t *testing.T) {
	if _, ok := parsePageImageKey("batches/batch-1/pages/", "batches/batch-1/pages/no-page-index"); ok {
		t.Fatalf("expected malformed key without a student/page split to be rejected")
	}
}

func TestContentTypeFromExt(t *testing.T) {
	cases := map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".bin":  "application/octet-stream",
	}
	for ext, want := range cases {
		if got := contentTypeFromExt(ext); got != want {
			t.Fatalf("contentTypeFromExt(%q) = %q, want %q", ext, got, want)
		}
	}
}
