package botfilter

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultSignatures []byte

// signatureFile is the on-disk format for signature sets.
type signatureFile struct {
	Signatures []string `yaml:"signatures"`
}

// Filter classifies user agents as automated or not.
// A Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	signatures []string
}

// New builds a Filter from the embedded signature set plus an optional extra file.
// An empty path means only the embedded set is used.
func New(extraPath string) (*Filter, error) {
	sigs, err := parse(defaultSignatures)
	if err != nil {
		return nil, fmt.Errorf("parse embedded signatures: %w", err)
	}

	if extraPath != "" {
		data, err := os.ReadFile(extraPath)
		if err != nil {
			return nil, fmt.Errorf("read bot signatures %s: %w", extraPath, err)
		}
		extra, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse bot signatures %s: %w", extraPath, err)
		}
		sigs = append(sigs, extra...)
	}

	return NewWithSignatures(sigs), nil
}

// NewWithSignatures builds a Filter from an explicit list.
func NewWithSignatures(signatures []string) *Filter {
	seen := make(map[string]struct{}, len(signatures))
	out := make([]string, 0, len(signatures))
	for _, s := range signatures {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return &Filter{signatures: out}
}

// IsBot reports whether the user agent matches any signature.
// An empty user agent is treated as automated.
func (f *Filter) IsBot(userAgent string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return true
	}
	for _, sig := range f.signatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct signatures loaded.
func (f *Filter) Len() int {
	return len(f.signatures)
}

func parse(data []byte) ([]string, error) {
	var sf signatureFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	return sf.Signatures, nil
}
