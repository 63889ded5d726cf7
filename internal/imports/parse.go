package imports

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/stephdmurray-sys/nomee-sub001/internal/extraction"
	"github.com/stephdmurray-sys/nomee-sub001/internal/sanitize"
	"github.com/stephdmurray-sys/nomee-sub001/internal/taxonomy"
)

var errNoJSONObject = errors.New("no JSON object in model output")

// extracted is the validated result of the structured extraction stage.
type extracted struct {
	Excerpt      string
	GiverName    string
	GiverCompany string
	GiverRole    string
	SourceType   string
	ApproxDate   string
	Traits       []string
	Confidence   float64
	// HasConfidence is false when the model omitted the score.
	HasConfidence bool
}

type fieldsResponse struct {
	Excerpt         string   `json:"excerpt"`
	GiverName       string   `json:"giverName"`
	GiverCompany    string   `json:"giverCompany"`
	GiverRole       string   `json:"giverRole"`
	SourceType      string   `json:"sourceType"`
	ApproximateDate string   `json:"approximateDate"`
	Traits          []string `json:"traits"`
	Confidence      *float64 `json:"confidence"`
}

// parseFields validates raw model output. Nothing the model returns is used
// verbatim: text is normalized, source type is mapped onto the known set and
// traits outside the locked vocabulary are dropped.
func parseFields(raw string) (extracted, error) {
	content := stripFences(raw)
	start, end := strings.Index(content, "{"), strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return extracted{}, errNoJSONObject
	}

	var resp fieldsResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err != nil {
		return extracted{}, fmt.Errorf("parse model output: %w", err)
	}

	out := extracted{
		Excerpt:      sanitize.Text(resp.Excerpt, maxExcerptRunes),
		GiverName:    giverField(resp.GiverName),
		GiverCompany: giverField(resp.GiverCompany),
		GiverRole:    giverField(resp.GiverRole),
		SourceType:   normalizeSourceType(resp.SourceType),
		ApproxDate:   sanitize.Line(resp.ApproximateDate, 40),
		Traits:       taxonomy.Traits.Filter(resp.Traits, maxTraits),
	}
	if resp.Confidence != nil {
		out.Confidence = clamp01(*resp.Confidence)
		out.HasConfidence = true
	}
	return out, nil
}

// stripFences removes a surrounding markdown code block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func giverField(s string) string {
	s = sanitize.Line(s, maxGiverFieldRunes)
	if s == "" {
		return PlaceholderNotSpecified
	}
	return s
}

func normalizeSourceType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if slices.Contains(extraction.SourceTypes, s) {
		return s
	}
	return "other"
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ocrConfidence scores a transcription by length: min(words/50, 1) rounded
// to two decimals.
func ocrConfidence(text string) float64 {
	words := len(strings.Fields(text))
	return round2(math.Min(float64(words)/wordsForFullConfidence, 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
