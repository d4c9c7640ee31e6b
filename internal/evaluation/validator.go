// Package evaluation implements the Evaluation Worker (spec §4.5): invoking
// the external NWB validator, classifying its issues into an outcome and
// readiness score, and attaching the WorkflowTrace the caller supplies in the
// request (the Dialogue Worker builds it). The validator itself is
// an out-of-scope external collaborator (spec §1); only its contract is
// implemented here.
package evaluation

import (
	"context"

	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// Validator is the contract the external NWB validator callable exposes.
type Validator interface {
	Validate(ctx context.Context, nwbPath string) ([]types.ValidationIssue, error)
}
