package main

import (
	"context"
	"strings"
	"testing"
)

var (
	_ fileUploader = (*cloudinaryUploader)(nil)
	_ fileUploader = noUploader{}
)

func TestNoUploaderRejectsUploads(t *testing.T) {
	var u fileUploader = noUploader{}
	if _, err := u.Upload(context.Background(), strings.NewReader("x"), "reports", "r1"); err == nil {
		t.Error("expected an error without a configured upload backend")
	}
}

func TestExtractPublicIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
		err  bool
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1712345678/id_documents/user_1_99.png", "id_documents/user_1_99", false},
		{"https://res.cloudinary.com/demo/image/upload/reports/report_2.pdf", "reports/report_2", false},
		{"https://example.com/no/marker/here.png", "", true},
	}
	for _, tc := range cases {
		got, err := extractPublicIDFromURL(tc.url)
		if (err != nil) != tc.err {
			t.Errorf("%s: err = %v", tc.url, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.url, got, tc.want)
		}
	}
}
