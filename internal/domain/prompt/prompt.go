// Package prompt assembles grounding prompts for the answer generator.
// Assembly is pure and deterministic: no I/O, no mutation, identical
// inputs produce identical output.
package prompt

import (
	"fmt"
	"strings"
)

// SystemInstructions is the fixed system preamble for the assistant.
const SystemInstructions = `You are TomatoDoc, a plant pathologist assistant specialized in tomato diseases.
Use ONLY the provided context from the tomato disease knowledge base to answer the user's question.
If the answer isn't in the context, say 'I don't know from the provided context.'
Always include: likely disease(s), reasoning, and a short action plan (bullet points).
Be practical and concise.`

// RefusalSentence is the fixed wording the model must use when the
// retrieved sources are insufficient.
const RefusalSentence = "I don't know from the provided context."

const strictSuffix = "\n\nIf uncertain, reply: '" + RefusalSentence + "'"

// Source is a retrieved chunk view for prompt rendering.
type Source struct {
	ID   string
	Text string
}

// Assemble merges the system instructions, retrieved sources, an
// optional classifier fact, and the user question into a single prompt.
//
// Sources are rendered in the order received (retrieval rank order) as
// labeled blocks joined by blank lines. A non-empty fact is prepended
// ahead of the literal question; callers gate the fact through the
// label bridge so diseases absent from the corpus are never injected.
// Strict mode appends the refusal instruction to the question.
func Assemble(system string, sources []Source, fact, question string, strict bool) string {
	blocks := make([]string, len(sources))
	for i, s := range sources {
		blocks[i] = fmt.Sprintf("Source %d (%s):\n%s", i+1, s.ID, s.Text)
	}

	q := question
	if fact != "" {
		q = fact + "\n\nUser question: " + question
	}
	if strict {
		q += strictSuffix
	}

	parts := make([]string, 0, 3)
	if system != "" {
		parts = append(parts, system)
	}
	if len(blocks) > 0 {
		parts = append(parts, strings.Join(blocks, "\n\n"))
	}
	parts = append(parts, q)
	return strings.Join(parts, "\n\n")
}
