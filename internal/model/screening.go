package model

// ScreeningGrade buckets a screening score.
type ScreeningGrade string

const (
	GradeStrong ScreeningGrade = "strong"
	GradeMixed  ScreeningGrade = "mixed"
	GradeWeak   ScreeningGrade = "weak"
)

// ScreeningResult is the collaborator's fit assessment for one expert.
type ScreeningResult struct {
	Grade       ScreeningGrade `json:"grade"`
	Score       int            `json:"score"`
	Rationale   string         `json:"rationale"`
	Confidence  Confidence     `json:"confidence"`
	MissingInfo []string       `json:"missing_info,omitempty"`
}

// RubricQuestion is one screener criterion with the answer the client is
// looking for.
type RubricQuestion struct {
	Text        string `json:"text" yaml:"text"`
	IdealAnswer string `json:"ideal_answer,omitempty" yaml:"ideal_answer"`
}

// Rubric is the project's screener configuration, applied literally by the
// screening collaborator.
type Rubric struct {
	Questions []RubricQuestion `json:"questions" yaml:"questions"`
}
