package ai

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
)

// responsePayload is the JSON object the model is instructed to emit.
type responsePayload struct {
	Outcome       string   `json:"outcome"`
	Summary       string   `json:"summary"`
	ModifiedFiles []string `json:"modified_files"`
	Questions     []string `json:"questions"`
}

// fencedJSONPattern matches a ```json ... ``` (or bare ```) fenced block.
var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseWorkResponse extracts the structured result from raw model output.
// Models wrap JSON in prose or fences often enough that extraction is
// progressive: the whole text, then a fenced block, then the outermost brace
// span, then a jsonrepair pass over that span. Output with no recoverable
// JSON yields a failed result carrying the raw text for diagnosis; an
// unknown outcome value degrades to needs_context.
func ParseWorkResponse(text string) *WorkResult {
	payload, ok := extractPayload(text)
	if !ok {
		return &WorkResult{
			Outcome:      OutcomeFailed,
			ErrorMessage: "unparseable model response",
			Summary:      "raw response: " + truncate(text, 500),
		}
	}

	outcome := Outcome(strings.ToLower(strings.TrimSpace(payload.Outcome)))
	if !outcome.IsValid() {
		outcome = OutcomeNeedsContext
	}
	// A blocked outcome with no questions cannot be acted on.
	if outcome == OutcomeBlocked && len(payload.Questions) == 0 {
		outcome = OutcomeNeedsContext
	}

	return &WorkResult{
		Success:       outcome == OutcomeCompleted,
		Outcome:       outcome,
		Summary:       payload.Summary,
		ModifiedFiles: payload.ModifiedFiles,
		Questions:     payload.Questions,
	}
}

func extractPayload(text string) (*responsePayload, bool) {
	trimmed := strings.TrimSpace(text)

	if p, ok := unmarshalPayload(trimmed); ok {
		return p, true
	}

	if m := fencedJSONPattern.FindStringSubmatch(trimmed); m != nil {
		if p, ok := unmarshalPayload(m[1]); ok {
			return p, true
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	span := trimmed[start : end+1]

	if p, ok := unmarshalPayload(span); ok {
		return p, true
	}

	repaired, err := jsonrepair.JSONRepair(span)
	if err != nil {
		return nil, false
	}
	return unmarshalPayload(repaired)
}

func unmarshalPayload(s string) (*responsePayload, bool) {
	var p responsePayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, false
	}
	if p.Outcome == "" && p.Summary == "" && len(p.Questions) == 0 {
		return nil, false
	}
	return &p, true
}

// truncate caps s at n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
