package gcs

import "testing"

func TestParseURI(t *testing.T) {
	cases := []struct {
		uri     string
		bucket  string
		name    string
		wantErr bool
	}{
		{"gs://raw/abc.pdf", "raw", "abc.pdf", false},
		{"gs://raw/nested/dir/doc.docx", "raw", "nested/dir/doc.docx", false},
		{"http://raw/abc.pdf", "", "", true},
		{"gs://", "", "", true},
		{"gs://bucket-only", "", "", true},
	}
	for _, tc := range cases {
		bucket, name, err := ParseURI(tc.uri)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseURI(%q): expected error", tc.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseURI(%q): %v", tc.uri, err)
			continue
		}
		if bucket != tc.bucket || name != tc.name {
			t.Errorf("ParseURI(%q) = (%q,%q), want (%q,%q)", tc.uri, bucket, name, tc.bucket, tc.name)
		}
	}
}

func TestURIRoundTrip(t *testing.T) {
	uri := URI("processed", "doc/1.json")
	bucket, name, err := ParseURI(uri)
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "processed" || name != "doc/1.json" {
		t.Fatalf("round trip gave (%q,%q)", bucket, name)
	}
}
