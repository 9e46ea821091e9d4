package llm

import (
	"fmt"
	"strings"
)

const entailmentSystem = "You are a citation auditor. You judge whether a source passage supports a claim. " +
	"Use only the passage. Numbers, scope and direction of effect must agree for support."

const rewriteSystem = "You are a citation auditor. You rewrite a claim so that it states only what the evidence supports. " +
	"Never introduce a figure, scope or citation that the evidence does not contain, " +
	"and use only content words that appear in the evidence."

// BuildEntailmentPrompt asks for a support probability as JSON
func BuildEntailmentPrompt(claim, passage string) string {
	var sb strings.Builder
	sb.WriteString("CLAIM:\n")
	sb.WriteString(strings.TrimSpace(claim))
	sb.WriteString("\n\nPASSAGE:\n")
	sb.WriteString(strings.TrimSpace(passage))
	sb.WriteString("\n\nReturn a JSON object {\"support\": p, \"reason\": \"...\"} where p in [0,1] is the probability ")
	sb.WriteString("that the passage alone supports the claim as written.")
	return sb.String()
}

// BuildRewritePrompt asks for a single corrected sentence
func BuildRewritePrompt(claim, evidence string, markers []string) string {
	var sb strings.Builder
	sb.WriteString("CLAIM:\n")
	sb.WriteString(strings.TrimSpace(claim))
	sb.WriteString("\n\nEVIDENCE:\n")
	sb.WriteString(strings.TrimSpace(evidence))
	sb.WriteString("\n\nRewrite the claim as one sentence that the evidence supports. ")
	sb.WriteString("Keep the author's wording where it is still accurate. ")
	sb.WriteString("Only use figures that appear in the evidence.")
	if len(markers) > 0 {
		sb.WriteString(fmt.Sprintf(" Keep these citation markers unchanged: %s.", strings.Join(markers, "; ")))
	}
	sb.WriteString(" Return the sentence only, without quotes or commentary.")
	return sb.String()
}
