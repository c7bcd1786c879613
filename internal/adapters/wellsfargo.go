package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"

	"submission-engine/internal/common/errors"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"
)

// Wells Fargo accepts packages only by email to its intake mailbox: PDF
// attachments, 25MB combined, no delivery feedback beyond the send itself.
const wellsFargoMaxEmailSize = 25 * 1024 * 1024

// WellsFargoAdapter submits by email through SES.
type WellsFargoAdapter struct {
	cfg    models.ServicerConfig
	deps   Dependencies
	logger logger.Logger
}

func NewWellsFargoAdapter(cfg models.ServicerConfig, deps Dependencies) *WellsFargoAdapter {
	return &WellsFargoAdapter{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.WithFields(map[string]interface{}{"adapter": cfg.ID}),
	}
}

func (a *WellsFargoAdapter) ServicerID() string { return a.cfg.ID }

func (a *WellsFargoAdapter) ValidateRequirements(ctx context.Context, app *models.PreparedApplication) (*models.ValidationResult, error) {
	result := &models.ValidationResult{Valid: true}

	if app.LoanNumber == "" {
		result.AddError("loan number is required")
	}
	if len(app.Documents) == 0 {
		result.AddError("at least one document is required")
	}

	for _, doc := range app.Documents {
		if doc.MimeType != "application/pdf" {
			result.AddError(fmt.Sprintf("document %s is %s; the intake mailbox accepts only PDF", doc.Filename, doc.MimeType))
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("convert %s to PDF", doc.Filename))
		}
	}

	if total := app.TotalSize(); total > wellsFargoMaxEmailSize {
		result.AddError(fmt.Sprintf("package size %d exceeds the 25MB email limit", total))
	}

	return result, nil
}

type wellsFargoManifest struct {
	LoanNumber string   `json:"loanNumber"`
	CaseID     string   `json:"caseId"`
	Borrowers  []string `json:"borrowers"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// Transform builds the email manifest and carries the PDFs as attachments.
func (a *WellsFargoAdapter) Transform(ctx context.Context, app *models.PreparedApplication) (*models.TransformedApplication, error) {
	manifest := wellsFargoManifest{
		LoanNumber: app.LoanNumber,
		CaseID:     app.CaseID,
		Borrowers:  append([]string(nil), app.BorrowerNames...),
		Subject:    fmt.Sprintf("Loss Mitigation Package - Loan %s", app.LoanNumber),
		Body: fmt.Sprintf(
			"Please find attached the loss mitigation document package for loan %s (case %s). The package contains %d document(s).",
			app.LoanNumber, app.CaseID, len(app.Documents)),
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return nil, errors.NewTransformFailedError(a.cfg.ID, err)
	}

	transformed := &models.TransformedApplication{
		Format:      "email",
		Payload:     payload,
		GeneratedAt: time.Now().UTC(),
	}
	for _, doc := range app.Documents {
		transformed.Attachments = append(transformed.Attachments, models.Attachment{
			Filename: doc.Filename,
			Content:  doc.Content,
			MimeType: doc.MimeType,
		})
	}
	return transformed, nil
}

// Submit sends the MIME message to the intake mailbox. The tracking number is
// generated locally since email provides no acknowledgment.
func (a *WellsFargoAdapter) Submit(ctx context.Context, transformed *models.TransformedApplication) (*models.SubmissionResult, error) {
	if a.deps.SES == nil {
		return nil, errors.NewServicerUnavailableError(a.cfg.ID, "email transport not configured")
	}

	var manifest wellsFargoManifest
	if err := json.Unmarshal(transformed.Payload, &manifest); err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, fmt.Errorf("decode manifest: %w", err))
	}

	raw, err := buildMIMEMessage(a.deps.FromEmail, a.cfg.Endpoint, manifest.Subject, manifest.Body, transformed.Attachments)
	if err != nil {
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, err)
	}

	out, err := a.deps.SES.SendRawEmail(ctx, &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Source:       aws.String(a.deps.FromEmail),
		Destinations: []string{a.cfg.Endpoint},
	})
	if err != nil {
		if isTimeout(err) {
			return nil, errors.NewNetworkTimeoutError(a.cfg.ID, err)
		}
		return nil, errors.NewSubmissionFailedError(a.cfg.ID, err)
	}

	tracking := fmt.Sprintf("WF-EMAIL-%s", uuid.New().String()[:8])
	a.logger.Info("email package sent", map[string]interface{}{
		"messageId":      aws.ToString(out.MessageId),
		"trackingNumber": tracking,
	})

	return &models.SubmissionResult{
		Success:               true,
		TrackingNumber:        tracking,
		ConfirmationNumber:    aws.ToString(out.MessageId),
		SubmittedAt:           time.Now().UTC(),
		EstimatedResponseTime: "7-10 business days",
		NextSteps:             []string{"call the servicer to confirm receipt after two business days"},
		Warnings:              []string{"email delivery is not acknowledged by the servicer"},
	}, nil
}

// CheckStatus always reports pending: the mailbox gives no feedback.
func (a *WellsFargoAdapter) CheckStatus(ctx context.Context, trackingNumber string) (*models.StatusResult, error) {
	return &models.StatusResult{
		Status:      models.SubmissionStatusPending,
		Message:     "email submissions provide no status feedback; confirm by phone",
		LastUpdated: time.Now().UTC(),
	}, nil
}

func (a *WellsFargoAdapter) TestConnection(ctx context.Context) (*models.ConnectionResult, error) {
	if a.deps.SES == nil {
		return &models.ConnectionResult{Success: false, Message: "email transport not configured"}, nil
	}
	if _, err := a.deps.SES.GetSendQuota(ctx); err != nil {
		return &models.ConnectionResult{Success: false, Message: err.Error()}, nil
	}
	return &models.ConnectionResult{Success: true, Message: "email transport reachable"}, nil
}

func buildMIMEMessage(from, to, subject, body string, attachments []models.Attachment) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	for _, att := range attachments {
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {att.MimeType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", att.Filename)},
		})
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(att.Content)
		if _, err := part.Write([]byte(encoded)); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
