package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"submission-engine/internal/common/errors"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/common/validation"
	"submission-engine/internal/models"
)

// chaseDocumentOrder is the sequence Chase's intake API expects documents in.
// Documents outside this list are appended after the known ones, by type.
var chaseDocumentOrder = []string{
	"hardship_letter",
	"financial_statement",
	"tax_return",
	"bank_statement",
	"pay_stub",
}

const chaseMaxDocumentSize = 10 * 1024 * 1024

// chasePayloadSchema is the published shape of Chase's intake request.
const chasePayloadSchema = `{
	"type": "object",
	"required": ["loanNumber", "caseId", "borrowers", "documents"],
	"properties": {
		"loanNumber": {"type": "string", "minLength": 1},
		"caseId": {"type": "string", "minLength": 1},
		"borrowers": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"documents": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["documentType", "filename", "content"],
				"properties": {
					"documentType": {"type": "string"},
					"filename": {"type": "string"},
					"content": {"type": "string"}
				}
			}
		}
	}
}`

// ChaseAdapter submits through Chase's REST intake API.
type ChaseAdapter struct {
	cfg    models.ServicerConfig
	deps   Dependencies
	logger logger.Logger
}

func NewChaseAdapter(cfg models.ServicerConfig, deps Dependencies) *ChaseAdapter {
	return &ChaseAdapter{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.WithFields(map[string]interface{}{"adapter": cfg.ID}),
	}
}

func (a *ChaseAdapter) ServicerID() string { return a.cfg.ID }

func (a *ChaseAdapter) ValidateRequirements(ctx context.Context, app *models.PreparedApplication) (*models.ValidationResult, error) {
	result := &models.ValidationResult{Valid: true}

	if app.LoanNumber == "" {
		result.AddError("loan number is required")
	}
	if len(app.BorrowerNames) == 0 {
		result.AddError("at least one borrower name is required")
	}

	for _, required := range requiredDocumentTypes(a.cfg, []string{"hardship_letter", "financial_statement"}) {
		if _, ok := app.DocumentByType(required); !ok {
			result.AddError(fmt.Sprintf("missing required document: %s", required))
		}
	}

	for _, doc := range app.Documents {
		if doc.Size > chaseMaxDocumentSize {
			result.AddError(fmt.Sprintf("document %s exceeds 10MB limit", doc.Filename))
		}
		if doc.MimeType != "application/pdf" && doc.MimeType != "image/tiff" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("document %s has type %s; Chase may re-request it as PDF", doc.Filename, doc.MimeType))
		}
	}

	if len(result.Errors) > 0 {
		result.Suggestions = append(result.Suggestions, "re-run document preparation for the missing items")
	}
	return result, nil
}

type chaseDocument struct {
	DocumentType string `json:"documentType"`
	Filename     string `json:"filename"`
	Content      string `json:"content"`
	MimeType     string `json:"mimeType,omitempty"`
}

type chasePayload struct {
	LoanNumber string          `json:"loanNumber"`
	CaseID     string          `json:"caseId"`
	Borrowers  []string        `json:"borrowers"`
	Documents  []chaseDocument `json:"documents"`
}

// Transform orders documents the way Chase's intake expects and emits the
// JSON request body. The payload depends only on the application and the
// servicer configuration.
func (a *ChaseAdapter) Transform(ctx context.Context, app *models.PreparedApplication) (*models.TransformedApplication, error) {
	ordered := orderDocuments(app.Documents, chaseDocumentOrder)

	payload := chasePayload{
		LoanNumber: app.LoanNumber,
		CaseID:     app.CaseID,
		Borrowers:  append([]string(nil), app.BorrowerNames...),
	}
	for _, doc := range ordered {
		payload.Documents = append(payload.Documents, chaseDocument{
			DocumentType: doc.Type,
			Filename:     doc.Filename,
			Content:      base64.StdEncoding.EncodeToString(doc.Content),
			MimeType:     doc.MimeType,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewTransformFailedError(a.cfg.ID, err)
	}

	schemaResult, err := validation.ValidatePayload(body, chasePayloadSchema)
	if err != nil {
		return nil, errors.NewTransformFailedError(a.cfg.ID, err)
	}
	if !schemaResult.Valid {
		return nil, errors.NewValidationError(strings.Join(schemaResult.Errors, "; "))
	}

	return &models.TransformedApplication{
		Format:  "json",
		Payload: body,
		Headers: map[string]string{
			"X-API-Key": a.cfg.Credential("api_key"),
		},
		GeneratedAt: time.Now().UTC(),
	}, nil
}

type chaseSubmitResponse struct {
	TrackingNumber        string `json:"trackingNumber"`
	ConfirmationNumber    string `json:"confirmationNumber"`
	EstimatedResponseTime string `json:"estimatedResponseTime"`
}

func (a *ChaseAdapter) Submit(ctx context.Context, transformed *models.TransformedApplication) (*models.SubmissionResult, error) {
	resp, err := a.deps.HTTP.PostJSON(ctx, a.cfg.Endpoint+"/submissions", transformed.Payload, transformed.Headers)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.NewNetworkTimeoutError(a.cfg.ID, err)
		}
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(a.cfg.ID, resp); err != nil {
		return nil, err
	}

	var parsed chaseSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, fmt.Errorf("decode response: %w", err))
	}

	return &models.SubmissionResult{
		Success:               true,
		TrackingNumber:        parsed.TrackingNumber,
		ConfirmationNumber:    parsed.ConfirmationNumber,
		SubmittedAt:           time.Now().UTC(),
		EstimatedResponseTime: parsed.EstimatedResponseTime,
		NextSteps:             []string{"await servicer acknowledgment", "monitor status via tracking number"},
	}, nil
}

func (a *ChaseAdapter) CheckStatus(ctx context.Context, trackingNumber string) (*models.StatusResult, error) {
	headers := map[string]string{"X-API-Key": a.cfg.Credential("api_key")}
	resp, err := a.deps.HTTP.Get(ctx, a.cfg.Endpoint+"/submissions/"+trackingNumber, headers)
	if err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(a.cfg.ID, resp); err != nil {
		return nil, err
	}

	var parsed struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, fmt.Errorf("decode status response: %w", err))
	}

	return &models.StatusResult{
		Status:      models.SubmissionStatus(parsed.Status),
		Message:     parsed.Message,
		LastUpdated: time.Now().UTC(),
	}, nil
}

func (a *ChaseAdapter) TestConnection(ctx context.Context) (*models.ConnectionResult, error) {
	headers := map[string]string{"X-API-Key": a.cfg.Credential("api_key")}
	resp, err := a.deps.HTTP.Get(ctx, a.cfg.Endpoint+"/health", headers)
	if err != nil {
		return &models.ConnectionResult{Success: false, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.ConnectionResult{Success: false, Message: fmt.Sprintf("health endpoint returned %d", resp.StatusCode)}, nil
	}
	return &models.ConnectionResult{Success: true, Message: "API reachable"}, nil
}

// orderDocuments sorts documents by their position in the given order list;
// unknown types sort after known ones, alphabetically, keeping the output
// stable for identical inputs.
func orderDocuments(docs []models.Document, order []string) []models.Document {
	rank := make(map[string]int, len(order))
	for i, t := range order {
		rank[t] = i
	}

	out := append([]models.Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iKnown := rank[out[i].Type]
		rj, jKnown := rank[out[j].Type]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return out[i].Type < out[j].Type
		}
	})
	return out
}

// requiredDocumentTypes reads the required document list from servicer
// requirements, falling back to adapter defaults.
func requiredDocumentTypes(cfg models.ServicerConfig, defaults []string) []string {
	raw, ok := cfg.Requirements["required_documents"]
	if !ok {
		return defaults
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return defaults
	}
}

// classifyHTTPStatus maps non-2xx responses into the failure taxonomy.
func classifyHTTPStatus(servicerID string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.NewAuthenticationError(servicerID, detail)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return errors.NewValidationError(detail)
	case resp.StatusCode >= 500:
		return errors.NewServicerUnavailableError(servicerID, detail)
	default:
		return errors.NewSubmissionFailedError(servicerID, fmt.Errorf("%s", detail))
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "context deadline exceeded")
}
