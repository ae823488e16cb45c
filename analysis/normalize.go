// Package analysis normalizes heterogeneous provider replies into the
// canonical insight schema and computes request cost from token usage.
package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/evandepol/homewatch/types"
)

// RawKind tags the shape of a provider reply.
type RawKind int

const (
	// Structured is an already-assembled result (mock and local-heuristic tiers).
	Structured RawKind = iota
	// JSONText is a reply string that looks like the canonical JSON schema.
	JSONText
	// FreeText is anything else; handled by the line-scan fallback.
	FreeText
)

// Raw is a tagged union over the three reply shapes a provider can produce.
type Raw struct {
	Kind       RawKind
	Structured types.AnalysisResult
	Text       string
}

// FromResult wraps an already-structured result.
func FromResult(result types.AnalysisResult) Raw {
	return Raw{Kind: Structured, Structured: result}
}

// FromText classifies a textual reply as JSON or free text.
func FromText(text string) Raw {
	if strings.HasPrefix(strings.TrimSpace(text), "{") {
		return Raw{Kind: JSONText, Text: text}
	}
	return Raw{Kind: FreeText, Text: text}
}

// Normalizer converts raw provider replies into AnalysisResult.
type Normalizer struct {
	threshold float64
}

// NewNormalizer creates a normalizer gated at the given insight confidence
// threshold.
func NewNormalizer(threshold float64) *Normalizer {
	return &Normalizer{threshold: threshold}
}

// Normalize resolves the tagged union with a single dispatch. The returned
// result always carries a fresh timestamp; Provider and Cost are stamped by
// the caller.
func (n *Normalizer) Normalize(raw Raw, changesAnalyzed int) types.AnalysisResult {
	var result types.AnalysisResult

	switch raw.Kind {
	case Structured:
		result = raw.Structured
	case JSONText:
		result = n.fromJSON(raw.Text)
	case FreeText:
		result = n.fromFreeText(raw.Text)
	}

	result.Timestamp = time.Now()
	result.ChangesAnalyzed = changesAnalyzed
	if result.Insights == nil {
		result.Insights = []types.Insight{}
	}
	if result.OverallAssessment == "" {
		result.OverallAssessment = types.AssessmentNormal
	}
	return result
}

// jsonReply mirrors the canonical schema with optional fields so missing
// values get their documented defaults.
type jsonReply struct {
	RequiresAttention *bool            `json:"requires_attention"`
	Confidence        *float64         `json:"confidence"`
	OverallAssessment types.Assessment `json:"overall_assessment"`
	Insights          []types.Insight  `json:"insights"`
	Summary           string           `json:"summary"`
}

func (n *Normalizer) fromJSON(text string) types.AnalysisResult {
	var reply jsonReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		// Malformed JSON drops to the line-scan fallback.
		return n.fromFreeText(text)
	}

	result := types.AnalysisResult{
		Confidence:        0.7,
		OverallAssessment: reply.OverallAssessment,
		Insights:          reply.Insights,
		Summary:           reply.Summary,
	}
	if reply.RequiresAttention != nil {
		result.RequiresAttention = *reply.RequiresAttention
	}
	if reply.Confidence != nil {
		result.Confidence = *reply.Confidence
	}
	return result
}

var numberRe = regexp.MustCompile(`(\d+\.?\d*)`)

// fromFreeText line-scans an unstructured reply. Attention requires both the
// explicit marker and confidence above the threshold; the marker alone is not
// sufficient.
func (n *Normalizer) fromFreeText(text string) types.AnalysisResult {
	attention := false
	confidence := 0.7
	var lines []string

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)

		switch {
		case hasAttentionMarker(lower):
			attention = true
		case strings.Contains(lower, "confidence"):
			if v, ok := firstNumber(line); ok {
				if v > 1 {
					v /= 100
				}
				confidence = v
			}
		case strings.TrimSpace(line) != "" && !isBoilerplate(lower):
			lines = append(lines, strings.TrimSpace(line))
		}
	}

	insights := make([]types.Insight, 0, len(lines))
	for _, line := range lines {
		insights = append(insights, types.Insight{
			Type:       types.InsightPattern,
			Message:    line,
			Confidence: confidence,
		})
	}

	return types.AnalysisResult{
		RequiresAttention: attention && confidence > n.threshold,
		Confidence:        confidence,
		Insights:          insights,
	}
}

// hasAttentionMarker accepts both prose and JSON-boolean spellings.
func hasAttentionMarker(lower string) bool {
	return strings.Contains(lower, "attention required: true") ||
		strings.Contains(lower, `attention_required": true`) ||
		strings.Contains(lower, `requires_attention": true`)
}

func isBoilerplate(lower string) bool {
	for _, skip := range []string{"analysis status:", "processed", "time:"} {
		if strings.Contains(lower, skip) {
			return true
		}
	}
	return false
}

// firstNumber returns the first decimal token on the line. First-match
// semantics are deliberate even when several numbers appear.
func firstNumber(line string) (float64, bool) {
	m := numberRe.FindString(line)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
