package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"submission-engine/internal/common/errors"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"
)

// Bank of America accepts uploads through its servicing portal, which caps
// the whole package rather than individual files and requires a cover sheet.
const bofaMaxPackageSize = 50 * 1024 * 1024

// BofAAdapter drives Bank of America's document upload portal.
type BofAAdapter struct {
	cfg    models.ServicerConfig
	deps   Dependencies
	logger logger.Logger
}

func NewBofAAdapter(cfg models.ServicerConfig, deps Dependencies) *BofAAdapter {
	return &BofAAdapter{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.WithFields(map[string]interface{}{"adapter": cfg.ID}),
	}
}

func (a *BofAAdapter) ServicerID() string { return a.cfg.ID }

func (a *BofAAdapter) ValidateRequirements(ctx context.Context, app *models.PreparedApplication) (*models.ValidationResult, error) {
	result := &models.ValidationResult{Valid: true}

	if app.LoanNumber == "" {
		result.AddError("loan number is required")
	}
	if len(app.Documents) == 0 {
		result.AddError("at least one document is required")
	}

	for _, required := range requiredDocumentTypes(a.cfg, []string{"hardship_letter"}) {
		if _, ok := app.DocumentByType(required); !ok {
			result.AddError(fmt.Sprintf("missing required document: %s", required))
		}
	}

	if total := app.TotalSize(); total > bofaMaxPackageSize {
		result.AddError(fmt.Sprintf("package size %d exceeds the 50MB portal limit", total))
		result.Suggestions = append(result.Suggestions, "split the package or compress scanned documents")
	}

	return result, nil
}

type bofaUpload struct {
	LoanNumber string   `json:"loanNumber"`
	CaseID     string   `json:"caseId"`
	Borrowers  []string `json:"borrowers"`
	CoverSheet string   `json:"coverSheet"`
	Files      []struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	} `json:"files"`
}

// Transform synthesizes the portal cover sheet and packages the documents for
// upload.
func (a *BofAAdapter) Transform(ctx context.Context, app *models.PreparedApplication) (*models.TransformedApplication, error) {
	upload := bofaUpload{
		LoanNumber: app.LoanNumber,
		CaseID:     app.CaseID,
		Borrowers:  append([]string(nil), app.BorrowerNames...),
		CoverSheet: buildCoverSheet(app),
	}
	for _, doc := range app.Documents {
		upload.Files = append(upload.Files, struct {
			Filename string `json:"filename"`
			Content  string `json:"content"`
		}{
			Filename: doc.Filename,
			Content:  base64.StdEncoding.EncodeToString(doc.Content),
		})
	}

	body, err := json.Marshal(upload)
	if err != nil {
		return nil, errors.NewTransformFailedError(a.cfg.ID, err)
	}

	return &models.TransformedApplication{
		Format:      "portal-upload",
		Payload:     body,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Submit authenticates against the portal, then posts the upload package
// within the same session.
func (a *BofAAdapter) Submit(ctx context.Context, transformed *models.TransformedApplication) (*models.SubmissionResult, error) {
	token, err := a.login(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := a.deps.HTTP.PostJSON(ctx, a.cfg.Endpoint+"/upload", transformed.Payload, headers)
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

	var parsed struct {
		ReferenceNumber string `json:"referenceNumber"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, fmt.Errorf("decode upload response: %w", err))
	}

	return &models.SubmissionResult{
		Success:               true,
		TrackingNumber:        parsed.ReferenceNumber,
		SubmittedAt:           time.Now().UTC(),
		EstimatedResponseTime: "5-7 business days",
		NextSteps:             []string{"confirm receipt in the servicing portal after one business day"},
	}, nil
}

func (a *BofAAdapter) login(ctx context.Context) (string, error) {
	creds := map[string]string{
		"username": a.cfg.Credential("username"),
		"password": a.cfg.Credential("password"),
	}
	body, _ := json.Marshal(creds)

	resp, err := a.deps.HTTP.PostJSON(ctx, a.cfg.Endpoint+"/login", body, nil)
	if err != nil {
		if isTimeout(err) {
			return "", errors.NewNetworkTimeoutError(a.cfg.ID, err)
		}
		return "", errors.NewSubmissionFailedError(a.cfg.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", errors.NewAuthenticationError(a.cfg.ID, "portal login rejected")
	}
	if err := classifyHTTPStatus(a.cfg.ID, resp); err != nil {
		return "", err
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.NewSubmissionFailedError(a.cfg.ID, fmt.Errorf("decode login response: %w", err))
	}
	if parsed.Token == "" {
		return "", errors.NewAuthenticationError(a.cfg.ID, "portal login returned no session token")
	}
	return parsed.Token, nil
}

func (a *BofAAdapter) CheckStatus(ctx context.Context, trackingNumber string) (*models.StatusResult, error) {
	token, err := a.login(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := a.deps.HTTP.Get(ctx, a.cfg.Endpoint+"/uploads/"+trackingNumber, headers)
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

func (a *BofAAdapter) TestConnection(ctx context.Context) (*models.ConnectionResult, error) {
	if _, err := a.login(ctx); err != nil {
		return &models.ConnectionResult{Success: false, Message: err.Error()}, nil
	}
	return &models.ConnectionResult{Success: true, Message: "portal login succeeded"}, nil
}

// buildCoverSheet renders the portal's required package summary.
func buildCoverSheet(app *models.PreparedApplication) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DOCUMENT SUBMISSION COVER SHEET\n")
	fmt.Fprintf(&b, "Loan Number: %s\n", app.LoanNumber)
	fmt.Fprintf(&b, "Case ID: %s\n", app.CaseID)
	fmt.Fprintf(&b, "Borrower(s): %s\n", strings.Join(app.BorrowerNames, ", "))
	fmt.Fprintf(&b, "Enclosed Documents (%d):\n", len(app.Documents))
	for i, doc := range app.Documents {
		fmt.Fprintf(&b, "  %d. %s (%s)\n", i+1, doc.Filename, doc.Type)
	}
	return b.String()
}
