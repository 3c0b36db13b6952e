// Package pipeline runs the staged research pipeline for one job at a time:
// topic expansion, literature search, document text extraction, and analysis
// synthesis. It owns the job state machine and the fault taxonomy the
// scheduler's retry policy branches on.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

// Kind classifies a fatal pipeline failure. Retry policy and user messaging
// branch on the kind, never on message content.
type Kind string

const (
	// KindExpansion: the expander produced an error or zero topics.
	KindExpansion Kind = "expansion_error"

	// KindNoMaterial: every topic was attempted and not a single document
	// was found.
	KindNoMaterial Kind = "no_material_found"

	// KindSynthesis: the synthesizer failed or produced unusable output.
	KindSynthesis Kind = "synthesis_error"

	// KindTimeout: the job exceeded its wall-clock budget.
	KindTimeout Kind = "timeout"

	// KindInternal: store or bookkeeping failure outside the collaborators.
	KindInternal Kind = "internal_error"
)

// Fault is a fatal pipeline failure. It terminates the current attempt and
// is subject to the scheduler's retry policy.
type Fault struct {
	Kind  Kind
	Stage models.JobStatus
	Err   error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s during %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Summary returns the user-facing cause string: the stage and cause without
// collaborator-internal detail chains.
func (f *Fault) Summary() string {
	switch f.Kind {
	case KindExpansion:
		return fmt.Sprintf("topic expansion failed: %v", f.Err)
	case KindNoMaterial:
		return "no material found: every topic search came back empty"
	case KindSynthesis:
		return fmt.Sprintf("analysis synthesis failed: %v", f.Err)
	case KindTimeout:
		return "job exceeded its time budget"
	default:
		return fmt.Sprintf("internal error during %s: %v", f.Stage, f.Err)
	}
}

func newFault(kind Kind, stage models.JobStatus, err error) *Fault {
	return &Fault{Kind: kind, Stage: stage, Err: err}
}

// KindOf extracts the fault kind from an error chain. Errors without a Fault
// are classified as internal.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}
