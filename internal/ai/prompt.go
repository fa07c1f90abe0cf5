package ai

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// transformationGoals states what each step must accomplish. The goal is
// spliced into the system prompt so one template serves every step.
var transformationGoals = map[types.TransformationType]string{
	types.TransformInterpret: "Read the work item and restate it as a precise, unambiguous problem statement. " +
		"Identify what is being asked, the acceptance criteria, and anything underspecified.",
	types.TransformPlan: "Produce a concrete implementation plan for the work item: the files to touch, " +
		"the changes to make in each, and the order to make them in.",
	types.TransformExecute: "Carry out the implementation plan. Make the code changes the plan calls for " +
		"and report every file you modified.",
	types.TransformRefine: "Review the work done so far against the problem statement. Fix gaps, tighten " +
		"edge cases, and bring the changes to a finished state.",
	types.TransformAskClarification: "Re-examine the work item in light of the answered questions below and " +
		"continue from where the work was blocked.",
	types.TransformFinalize: "Verify the completed work end to end: confirm the acceptance criteria are met " +
		"and summarize the change for the record.",
}

const systemPromptTemplate = `You are Bartleby, an autonomous software scrivener. You work one item at a time, one transformation step at a time.

Current step: {{.Transformation}}. {{.Goal}}
{{- if .WorkingDir}}

You are working in the repository at {{.WorkingDir}}. All file paths you report are relative to it.
{{- end}}

Respond with ONLY a JSON object, no prose before or after, in this exact shape:

{
  "outcome": "completed" | "blocked" | "needs_context",
  "summary": "what you did or why you could not proceed",
  "modified_files": ["paths you changed, if any"],
  "questions": ["clarifying questions, only when outcome is blocked"]
}

Report "blocked" only when you cannot proceed without a human answer, and include at least one question. Report "needs_context" when the item itself lacks the information this step requires.`

const userPromptTemplate = `# Work Item

**Title:** {{.Item.Title}}
{{- if .Item.Description}}

**Description:**
{{.Item.Description}}
{{- end}}
{{- if .Item.Labels}}

**Labels:** {{join .Item.Labels ", "}}
{{- end}}
{{- if .Item.ExternalURL}}

**Tracker:** {{.Item.ExternalURL}}
{{- end}}
{{- if .Sessions}}

# Prior Sessions
{{range .Sessions}}
- [{{.Transformation}}] {{.Outcome}}{{if .Summary}}: {{.Summary}}{{end}}
{{- end}}
{{- end}}
{{- if .Answered}}

# Answered Questions
{{range .Answered}}
**Q:** {{.Question}}
**A:** {{deref .Answer}}
{{end}}
{{- end}}
{{- if .Instructions}}

# Additional Instructions

{{.Instructions}}
{{- end}}`

// PromptBuilder renders system and user prompts for a work context.
type PromptBuilder struct {
	system *template.Template
	user   *template.Template
}

// NewPromptBuilder parses the prompt templates.
func NewPromptBuilder() (*PromptBuilder, error) {
	system, err := template.New("system").Parse(systemPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse system template: %w", err)
	}

	user, err := template.New("user").Funcs(template.FuncMap{
		"join": strings.Join,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}).Parse(userPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user template: %w", err)
	}

	return &PromptBuilder{system: system, user: user}, nil
}

// BuildSystemPrompt renders the system prompt for the context's step.
func (p *PromptBuilder) BuildSystemPrompt(wc *WorkContext) (string, error) {
	goal, ok := transformationGoals[wc.Transformation]
	if !ok {
		return "", fmt.Errorf("unknown transformation: %s", wc.Transformation)
	}

	var buf strings.Builder
	err := p.system.Execute(&buf, struct {
		Transformation types.TransformationType
		Goal           string
		WorkingDir     string
	}{wc.Transformation, goal, wc.WorkingDir})
	if err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildUserPrompt renders the item, its session history, and any answered
// questions into the user message.
func (p *PromptBuilder) BuildUserPrompt(wc *WorkContext) (string, error) {
	if wc.Item == nil {
		return "", fmt.Errorf("work context has no item")
	}

	var buf strings.Builder
	if err := p.user.Execute(&buf, wc); err != nil {
		return "", fmt.Errorf("failed to render user prompt: %w", err)
	}
	return buf.String(), nil
}
