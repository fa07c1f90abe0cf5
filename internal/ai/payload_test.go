package ai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkResponsePlainJSON(t *testing.T) {
	result := ParseWorkResponse(`{"outcome":"completed","summary":"done","modified_files":["a.go","b.go"]}`)

	assert.True(t, result.Success)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "done", result.Summary)
	assert.Equal(t, []string{"a.go", "b.go"}, result.ModifiedFiles)
}

func TestParseWorkResponseFencedBlock(t *testing.T) {
	text := "Here is my result:\n```json\n{\"outcome\": \"blocked\", \"summary\": \"need input\", \"questions\": [\"Which database?\"]}\n```\nThanks!"
	result := ParseWorkResponse(text)

	assert.False(t, result.Success)
	assert.Equal(t, OutcomeBlocked, result.Outcome)
	require.Len(t, result.Questions, 1)
	assert.Equal(t, "Which database?", result.Questions[0])
}

func TestParseWorkResponseBraceSubstring(t *testing.T) {
	text := `I finished the work. {"outcome": "completed", "summary": "refactored the parser"} Let me know.`
	result := ParseWorkResponse(text)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "refactored the parser", result.Summary)
}

func TestParseWorkResponseRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and single quotes need the repair pass.
	text := `{'outcome': 'completed', 'summary': 'patched it',}`
	result := ParseWorkResponse(text)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "patched it", result.Summary)
}

func TestParseWorkResponseUnknownOutcome(t *testing.T) {
	result := ParseWorkResponse(`{"outcome":"shrug","summary":"unsure"}`)
	assert.Equal(t, OutcomeNeedsContext, result.Outcome)
	assert.False(t, result.Success)
}

func TestParseWorkResponseBlockedWithoutQuestions(t *testing.T) {
	result := ParseWorkResponse(`{"outcome":"blocked","summary":"stuck"}`)
	assert.Equal(t, OutcomeNeedsContext, result.Outcome, "blocked with no questions is not actionable")
}

func TestParseWorkResponseGarbageFails(t *testing.T) {
	result := ParseWorkResponse("I prefer not to.")

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, "unparseable model response", result.ErrorMessage)
	assert.Contains(t, result.Summary, "I prefer not to.")
}

func TestParseWorkResponseTruncationKeepsValidUTF8(t *testing.T) {
	// A multi-byte rune straddles the truncation boundary.
	text := strings.Repeat("x", 499) + "éllo, no JSON here"
	result := ParseWorkResponse(text)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.True(t, utf8.ValidString(result.Summary))
	assert.True(t, strings.HasSuffix(result.Summary, "..."))
}

func TestParseWorkResponseOutcomeCaseInsensitive(t *testing.T) {
	result := ParseWorkResponse(`{"outcome":"  Completed ","summary":"x"}`)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
}
