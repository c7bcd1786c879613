package models

import "time"

// Document is a single file inside a prepared application package.
type Document struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// PreparedApplication is the adapter input: the document package assembled by
// the surrounding product, ready for counterparty-specific shaping.
type PreparedApplication struct {
	CaseID        string                 `json:"caseId"`
	LoanNumber    string                 `json:"loanNumber"`
	BorrowerNames []string               `json:"borrowerNames"`
	Documents     []Document             `json:"documents"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentByType returns the first document of the given abstract type.
func (a *PreparedApplication) DocumentByType(docType string) (*Document, bool) {
	for i := range a.Documents {
		if a.Documents[i].Type == docType {
			return &a.Documents[i], true
		}
	}
	return nil, false
}

// TotalSize returns the combined byte size of all documents.
func (a *PreparedApplication) TotalSize() int64 {
	var total int64
	for _, doc := range a.Documents {
		total += doc.Size
	}
	return total
}

// Attachment is an auxiliary artifact carried alongside a transformed payload,
// e.g. the raw files attached to an email submission.
type Attachment struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
	MimeType string `json:"mimeType"`
}

// TransformedApplication is the counterparty-specific output of an adapter's
// Transform. Payload is a pure function of (application, servicer config);
// GeneratedAt is generation-time metadata and excluded from that guarantee.
type TransformedApplication struct {
	Format      string            `json:"format"`
	Payload     []byte            `json:"payload"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// ValidationResult is the outcome of counterparty-specific requirement checks.
// Errors block submission; warnings and suggestions do not.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// AddError appends a blocking error and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// SubmissionResult is the normalized outcome of one submission attempt.
// RequiresEscalation is set by the orchestrator when a terminal failure needs
// a human; adapters never set it.
type SubmissionResult struct {
	Success               bool      `json:"success"`
	TrackingNumber        string    `json:"trackingNumber,omitempty"`
	ConfirmationNumber    string    `json:"confirmationNumber,omitempty"`
	SubmittedAt           time.Time `json:"submittedAt"`
	EstimatedResponseTime string    `json:"estimatedResponseTime,omitempty"`
	NextSteps             []string  `json:"nextSteps,omitempty"`
	Warnings              []string  `json:"warnings,omitempty"`
	Errors                []string  `json:"errors,omitempty"`
	RequiresEscalation    bool      `json:"requiresEscalation,omitempty"`
}

// SubmissionStatus is a servicer-reported state of a submitted package.
type SubmissionStatus string

const (
	SubmissionStatusPending        SubmissionStatus = "pending"
	SubmissionStatusInReview       SubmissionStatus = "in_review"
	SubmissionStatusAccepted       SubmissionStatus = "accepted"
	SubmissionStatusRejected       SubmissionStatus = "rejected"
	SubmissionStatusAdditionalInfo SubmissionStatus = "additional_info_needed"
)

// StatusResult is the outcome of a CheckStatus call.
type StatusResult struct {
	Status      SubmissionStatus `json:"status"`
	Message     string           `json:"message,omitempty"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// ConnectionResult is the outcome of a TestConnection call.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
