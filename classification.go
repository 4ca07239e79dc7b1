package tradeledger

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Classification is the sector and market-cap bucket of a ticker.
type Classification struct {
	Sector    string `yaml:"sector" json:"sector"`
	CapBucket string `yaml:"cap" json:"cap"`
}

// Classifier supplies ticker classifications to cross-account scans.
type Classifier interface {
	// Classify returns the classification of ticker, ok is false for unknown tickers.
	Classify(ticker string) (c Classification, ok bool)
}

// StaticClassifier is a fixed ticker → classification table.
type StaticClassifier map[string]Classification

func (s StaticClassifier) Classify(ticker string) (Classification, bool) {
	c, ok := s[normalizeTicker(ticker)]
	return c, ok
}

//go:embed classifications.yaml
var defaultClassifications []byte

// DefaultClassifier returns the embedded classification table.
func DefaultClassifier() StaticClassifier {
	c, err := DecodeClassifier(bytes.NewReader(defaultClassifications))
	if err != nil {
		panic(fmt.Sprintf("embedded classifications: %v", err))
	}
	return c
}

// DecodeClassifier reads a YAML document of the form
//
//	tickers:
//	  MSFT: {sector: Technology, cap: large}
func DecodeClassifier(r io.Reader) (StaticClassifier, error) {
	var doc struct {
		Tickers map[string]Classification `yaml:"tickers"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode classifications: %w", err)
	}
	c := make(StaticClassifier, len(doc.Tickers))
	for ticker, class := range doc.Tickers {
		c[normalizeTicker(ticker)] = class
	}
	return c, nil
}

// LoadClassifier reads a classification file, see DecodeClassifier.
func LoadClassifier(path string) (StaticClassifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeClassifier(f)
}
