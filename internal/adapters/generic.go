package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"

	"submission-engine/internal/common/errors"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"
)

const genericMaxDocumentSize = 10 * 1024 * 1024

// GenericAdapter serves servicers without a dedicated integration. It applies
// conservative requirements and submits over whichever channel the servicer
// configuration declares.
type GenericAdapter struct {
	cfg    models.ServicerConfig
	deps   Dependencies
	logger logger.Logger
}

func NewGenericAdapter(cfg models.ServicerConfig, deps Dependencies) *GenericAdapter {
	return &GenericAdapter{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.WithFields(map[string]interface{}{"adapter": cfg.ID}),
	}
}

func (a *GenericAdapter) ServicerID() string { return a.cfg.ID }

func (a *GenericAdapter) ValidateRequirements(ctx context.Context, app *models.PreparedApplication) (*models.ValidationResult, error) {
	result := &models.ValidationResult{Valid: true}

	if app.LoanNumber == "" {
		result.AddError("loan number is required")
	}
	if len(app.Documents) == 0 {
		result.AddError("at least one document is required")
	}

	for _, required := range requiredDocumentTypes(a.cfg, nil) {
		if _, ok := app.DocumentByType(required); !ok {
			result.AddError(fmt.Sprintf("missing required document: %s", required))
		}
	}

	for _, doc := range app.Documents {
		if doc.Size > genericMaxDocumentSize {
			result.AddError(fmt.Sprintf("document %s exceeds 10MB limit", doc.Filename))
		}
	}

	return result, nil
}

type genericPayload struct {
	LoanNumber string   `json:"loanNumber"`
	CaseID     string   `json:"caseId"`
	Borrowers  []string `json:"borrowers"`
	Documents  []struct {
		DocumentType string `json:"documentType"`
		Filename     string `json:"filename"`
		Content      string `json:"content"`
	} `json:"documents"`
}

func (a *GenericAdapter) Transform(ctx context.Context, app *models.PreparedApplication) (*models.TransformedApplication, error) {
	payload := genericPayload{
		LoanNumber: app.LoanNumber,
		CaseID:     app.CaseID,
		Borrowers:  append([]string(nil), app.BorrowerNames...),
	}
	for _, doc := range app.Documents {
		payload.Documents = append(payload.Documents, struct {
			DocumentType string `json:"documentType"`
			Filename     string `json:"filename"`
			Content      string `json:"content"`
		}{
			DocumentType: doc.Type,
			Filename:     doc.Filename,
			Content:      base64.StdEncoding.EncodeToString(doc.Content),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewTransformFailedError(a.cfg.ID, err)
	}

	transformed := &models.TransformedApplication{
		Format:      "json",
		Payload:     body,
		GeneratedAt: time.Now().UTC(),
	}
	if a.cfg.ChannelType == models.ChannelEmail {
		for _, doc := range app.Documents {
			transformed.Attachments = append(transformed.Attachments, models.Attachment{
				Filename: doc.Filename,
				Content:  doc.Content,
				MimeType: doc.MimeType,
			})
		}
	}
	return transformed, nil
}

func (a *GenericAdapter) Submit(ctx context.Context, transformed *models.TransformedApplication) (*models.SubmissionResult, error) {
	switch a.cfg.ChannelType {
	case models.ChannelEmail:
		return a.submitEmail(ctx, transformed)
	case models.ChannelManual:
		return a.submitManual(), nil
	default:
		return a.submitHTTP(ctx, transformed)
	}
}

func (a *GenericAdapter) submitHTTP(ctx context.Context, transformed *models.TransformedApplication) (*models.SubmissionResult, error) {
	headers := map[string]string{}
	if key := a.cfg.Credential("api_key"); key != "" {
		headers["X-API-Key"] = key
	}

	resp, err := a.deps.HTTP.PostJSON(ctx, a.cfg.Endpoint, transformed.Payload, headers)
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
		TrackingNumber string `json:"trackingNumber"`
	}
	// Some endpoints return an empty body on accept; generate a local
	// reference when they do.
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	if parsed.TrackingNumber == "" {
		parsed.TrackingNumber = fmt.Sprintf("GEN-%s", uuid.New().String()[:8])
	}

	return &models.SubmissionResult{
		Success:        true,
		TrackingNumber: parsed.TrackingNumber,
		SubmittedAt:    time.Now().UTC(),
		NextSteps:      []string{"confirm receipt with the servicer"},
	}, nil
}

func (a *GenericAdapter) submitEmail(ctx context.Context, transformed *models.TransformedApplication) (*models.SubmissionResult, error) {
	if a.deps.SES == nil {
		return nil, errors.NewServicerUnavailableError(a.cfg.ID, "email transport not configured")
	}

	var payload genericPayload
	if err := json.Unmarshal(transformed.Payload, &payload); err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, fmt.Errorf("decode payload: %w", err))
	}

	subject := fmt.Sprintf("Document Submission - Loan %s", payload.LoanNumber)
	body := fmt.Sprintf("Attached: document package for loan %s, case %s.", payload.LoanNumber, payload.CaseID)
	raw, err := buildMIMEMessage(a.deps.FromEmail, a.cfg.Endpoint, subject, body, transformed.Attachments)
	if err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, err)
	}

	out, err := a.deps.SES.SendRawEmail(ctx, &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Source:       aws.String(a.deps.FromEmail),
		Destinations: []string{a.cfg.Endpoint},
	})
	if err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, err)
	}

	return &models.SubmissionResult{
		Success:            true,
		TrackingNumber:     fmt.Sprintf("GEN-EMAIL-%s", uuid.New().String()[:8]),
		ConfirmationNumber: aws.ToString(out.MessageId),
		SubmittedAt:        time.Now().UTC(),
		Warnings:           []string{"email delivery is not acknowledged by the servicer"},
	}, nil
}

func (a *GenericAdapter) submitManual() *models.SubmissionResult {
	return &models.SubmissionResult{
		Success:        true,
		TrackingNumber: fmt.Sprintf("MANUAL-%s", uuid.New().String()[:8]),
		SubmittedAt:    time.Now().UTC(),
		NextSteps: []string{
			"package queued for manual handling",
			"an operator must deliver the documents and record the outcome",
		},
		Warnings: []string{"manual channel: no automated delivery performed"},
	}
}

func (a *GenericAdapter) CheckStatus(ctx context.Context, trackingNumber string) (*models.StatusResult, error) {
	return &models.StatusResult{
		Status:      models.SubmissionStatusPending,
		Message:     "no status integration for this servicer",
		LastUpdated: time.Now().UTC(),
	}, nil
}

func (a *GenericAdapter) TestConnection(ctx context.Context) (*models.ConnectionResult, error) {
	switch a.cfg.ChannelType {
	case models.ChannelEmail:
		if a.deps.SES == nil {
			return &models.ConnectionResult{Success: false, Message: "email transport not configured"}, nil
		}
		if _, err := a.deps.SES.GetSendQuota(ctx); err != nil {
			return &models.ConnectionResult{Success: false, Message: err.Error()}, nil
		}
		return &models.ConnectionResult{Success: true, Message: "email transport reachable"}, nil
	case models.ChannelManual:
		return &models.ConnectionResult{Success: true, Message: "manual channel requires no connection"}, nil
	default:
		resp, err := a.deps.HTTP.Get(ctx, a.cfg.Endpoint, nil)
		if err != nil {
			return &models.ConnectionResult{Success: false, Message: err.Error()}, nil
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return &models.ConnectionResult{Success: false, Message: fmt.Sprintf("endpoint returned %d", resp.StatusCode)}, nil
		}
		return &models.ConnectionResult{Success: true, Message: "endpoint reachable"}, nil
	}
}
