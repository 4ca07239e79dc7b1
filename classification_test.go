package tradeledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultClassifier(t *testing.T) {
	c := DefaultClassifier()
	tests := []struct {
		ticker string
		want   Classification
		ok     bool
	}{
		{"MSFT", Classification{Sector: "Technology", CapBucket: "large"}, true},
		{"aaon", Classification{Sector: "Industrials", CapBucket: "small"}, true},
		{"ZZZZ", Classification{}, false},
	}
	for _, tt := range tests {
		got, ok := c.Classify(tt.ticker)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Classify(%q) = %v, %v; want %v, %v", tt.ticker, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.yaml")
	doc := "tickers:\n  acme: {sector: Widgets, cap: mid}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadClassifier(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(StaticClassifier{"ACME": {Sector: "Widgets", CapBucket: "mid"}}, c); diff != "" {
		t.Errorf("LoadClassifier() mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeClassifier(strings.NewReader("tickers: [")); err == nil {
		t.Error("DecodeClassifier(invalid) succeeded")
	}
	if _, err := LoadClassifier(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadClassifier(missing) succeeded")
	}
}
