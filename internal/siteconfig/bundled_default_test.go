package siteconfig

import "testing"

func TestBundledDefault_ParsesAndValidates(t *testing.T) {
	cfg := BundledDefault()
	if len(cfg.Sites) == 0 {
		t.Fatal("expected at least one bundled site")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("bundled default failed validation: %v", err)
	}
}
