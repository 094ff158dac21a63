package retrieval

import (
	"errors"
	"fmt"

	"github.com/docqa-io/docqa/models"
)

// ErrContextTooSmall signals a misconfigured token budget: candidates
// exist but none fits. It is a configuration error, never retried.
var ErrContextTooSmall = errors.New("context budget smaller than smallest candidate chunk")

// Assembler greedily packs candidates under a token budget.
type Assembler struct {
	maxContextTokens int
}

// NewAssembler builds an Assembler for the given budget.
func NewAssembler(maxContextTokens int) (*Assembler, error) {
	if maxContextTokens <= 0 {
		return nil, fmt.Errorf("%w: max_context_tokens must be > 0", models.ErrInvalidInput)
	}
	return &Assembler{maxContextTokens: maxContextTokens}, nil
}

// Assemble accepts candidates in rank order while their full token counts
// fit the remaining budget. A candidate is never truncated: one that does
// not fit is skipped, and a later smaller one may still be accepted.
// Returns ErrContextTooSmall only when candidates exist but none fits.
func (a *Assembler) Assemble(question string, candidates []models.Candidate) (models.QueryContext, error) {
	qc := models.QueryContext{Question: question}
	for _, cand := range candidates {
		if qc.TokenCount+cand.TokenCount > a.maxContextTokens {
			continue
		}
		qc.Candidates = append(qc.Candidates, cand)
		qc.TokenCount += cand.TokenCount
	}
	if len(candidates) > 0 && len(qc.Candidates) == 0 {
		return models.QueryContext{}, fmt.Errorf("%w (budget %d)", ErrContextTooSmall, a.maxContextTokens)
	}
	return qc, nil
}
