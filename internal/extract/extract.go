// Package extract defines the language-model collaborator interfaces for
// expert extraction and screening, plus the anthropic-backed
// implementations. The collaborators return structured data only; every
// registry decision stays in the calling code.
package extract

import (
	"context"

	"github.com/sells-group/expert-registry/internal/model"
)

// ExtractRequest carries one email to the extraction collaborator.
type ExtractRequest struct {
	EmailText   string
	Hypothesis  string
	NetworkHint string
}

// Extractor parses an email into structured expert profiles. A
// schema-invalid response is repaired once by re-prompting with the
// validation error; a second failure returns resilience.SchemaError.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*model.Extraction, error)
}

// ScreenRequest carries one expert and the project rubric to the screening
// collaborator.
type ScreenRequest struct {
	Name              string
	Employer          string
	Title             string
	Bio               string
	ScreenerResponses string
	Rubric            model.Rubric
	Hypothesis        string
}

// Screener grades one expert's fit against the project hypothesis and
// screener rubric.
type Screener interface {
	Screen(ctx context.Context, req ScreenRequest) (*model.ScreeningResult, error)
}
