package analysis

import "github.com/acheong08/sentinel/pkg/models"

// SecurityAssessment is the model's verdict for one package
type SecurityAssessment struct {
	IsMalicious   bool     `json:"is_malicious"`
	Confidence    float64  `json:"confidence"`
	Justification string   `json:"justification"`
	Indicators    []string `json:"indicators,omitempty"`
}

// Review pairs a reviewed record with its assessment. Err is set when the
// model could not be reached or never submitted an assessment.
type Review struct {
	Index      int                `json:"index"`
	Record     models.RiskRecord  `json:"-"`
	Assessment SecurityAssessment `json:"assessment"`
	Err        error              `json:"-"`
}

// MetadataInput is the argument of the fetch_metadata tool
type MetadataInput struct {
	Package string `json:"package"`
}
