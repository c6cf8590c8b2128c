// Package evaluation replays scripted prompts against a running API and
// checks the safety and retrieval decisions it reports.
package evaluation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultCategory = "general"

// Case is one scripted prompt. Nil expectations are not checked.
type Case struct {
	Name     string `json:"name"`
	Message  string `json:"message"`
	Category string `json:"category"`

	ExpectedRiskLevel         *string `json:"expected_risk_level,omitempty"`
	ExpectedEmergencyDetected *bool   `json:"expected_emergency_detected,omitempty"`
	ExpectedPrimaryDomain     *string `json:"expected_primary_domain,omitempty"`
	RequireCitations          *bool   `json:"require_citations,omitempty"`
	MinRetrievedChunks        *int    `json:"min_retrieved_chunks,omitempty"`
}

type caseFile struct {
	Cases []Case `json:"cases"`
}

// ParseCases decodes a {"cases": [...]} document.
func ParseCases(r io.Reader) ([]Case, error) {
	var f caseFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("evaluation: decode cases: %w", err)
	}
	for i := range f.Cases {
		c := &f.Cases[i]
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Message) == "" {
			return nil, fmt.Errorf("evaluation: case %d needs a name and message", i+1)
		}
		if c.Category == "" {
			c.Category = defaultCategory
		}
	}
	return f.Cases, nil
}

// LoadCases reads cases from a file.
func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evaluation: open cases: %w", err)
	}
	defer f.Close()
	return ParseCases(f)
}
