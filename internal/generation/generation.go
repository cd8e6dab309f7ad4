// Package generation adapts the assembled context and the user query
// into a model completion. The adapter is a black box to the rest of
// the system: it receives ordered context, returns text or a stream of
// fragments.
package generation

import (
	"context"
	"strings"

	"github.com/ragline/ragline/internal/assembler"
)

// Generator produces a completion grounded in retrieved context.
type Generator interface {
	// Generate returns the full completion.
	Generate(ctx context.Context, query string, assembled *assembler.AssembledContext) (string, error)

	// Stream invokes fn for each completion fragment in order. A
	// non-nil error from fn aborts the stream and is returned.
	Stream(ctx context.Context, query string, assembled *assembler.AssembledContext, fn func(fragment string) error) error
}

const systemPreamble = `You are a helpful assistant. Answer using only the provided context. If the context does not contain the answer, say you do not know.`

// buildPrompt renders the system message from assembled candidates,
// preserving their ranked order.
func buildPrompt(assembled *assembler.AssembledContext) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	if assembled == nil || len(assembled.Candidates) == 0 {
		b.WriteString("\n\nNo context was retrieved for this question.")
		return b.String()
	}

	b.WriteString("\n\nContext:")
	for _, c := range assembled.Candidates {
		b.WriteString("\n- ")
		b.WriteString(c.Text)
	}
	if assembled.Degraded {
		b.WriteString("\n\nNote: context retrieval was partial; some sources were unavailable.")
	}
	return b.String()
}
