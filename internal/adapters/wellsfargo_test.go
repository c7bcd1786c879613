package adapters

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submission-engine/internal/models"
)

func wellsFargoTestConfig() models.ServicerConfig {
	return models.ServicerConfig{
		ID:          "wells_fargo",
		Name:        "Wells Fargo",
		ChannelType: models.ChannelEmail,
		Endpoint:    "intake@example.com",
	}
}

func wellsFargoTestApplication() *models.PreparedApplication {
	return &models.PreparedApplication{
		CaseID:        "case-7",
		LoanNumber:    "LN-4004",
		BorrowerNames: []string{"Dana Lee"},
		Documents: []models.Document{
			{Type: "hardship_letter", Filename: "hardship.pdf", Content: []byte("hl"), MimeType: "application/pdf", Size: 2},
		},
	}
}

func TestWellsFargoAdapter_ValidateRequirements_PDFOnly(t *testing.T) {
	adapter := NewWellsFargoAdapter(wellsFargoTestConfig(), chaseTestDeps(t))

	app := wellsFargoTestApplication()
	app.Documents = append(app.Documents, models.Document{
		Type: "bank_statement", Filename: "bank.docx",
		MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Size:     10,
	})

	result, err := adapter.ValidateRequirements(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "only PDF")
	assert.Contains(t, result.Suggestions[0], "convert")
}

func TestWellsFargoAdapter_ValidateRequirements_CombinedSizeCap(t *testing.T) {
	adapter := NewWellsFargoAdapter(wellsFargoTestConfig(), chaseTestDeps(t))

	app := wellsFargoTestApplication()
	app.Documents[0].Size = 26 * 1024 * 1024

	result, err := adapter.ValidateRequirements(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "25MB")
}

func TestWellsFargoAdapter_Transform_CarriesAttachments(t *testing.T) {
	adapter := NewWellsFargoAdapter(wellsFargoTestConfig(), chaseTestDeps(t))

	transformed, err := adapter.Transform(context.Background(), wellsFargoTestApplication())
	require.NoError(t, err)
	assert.Equal(t, "email", transformed.Format)
	require.Len(t, transformed.Attachments, 1)
	assert.Equal(t, "hardship.pdf", transformed.Attachments[0].Filename)

	var manifest wellsFargoManifest
	require.NoError(t, json.Unmarshal(transformed.Payload, &manifest))
	assert.Contains(t, manifest.Subject, "LN-4004")
	assert.Contains(t, manifest.Body, "case-7")
}

func TestWellsFargoAdapter_CheckStatus_AlwaysPending(t *testing.T) {
	adapter := NewWellsFargoAdapter(wellsFargoTestConfig(), chaseTestDeps(t))

	status, err := adapter.CheckStatus(context.Background(), "WF-EMAIL-abc")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusPending, status.Status)
}

func TestBuildMIMEMessage(t *testing.T) {
	raw, err := buildMIMEMessage("noreply@example.com", "intake@example.com",
		"Loss Mitigation Package - Loan LN-4004", "body text",
		[]models.Attachment{
			{Filename: "hardship.pdf", Content: []byte("hl"), MimeType: "application/pdf"},
		})
	require.NoError(t, err)

	msg := string(raw)
	assert.Contains(t, msg, "From: noreply@example.com")
	assert.Contains(t, msg, "To: intake@example.com")
	assert.Contains(t, msg, "Subject: Loss Mitigation Package - Loan LN-4004")
	assert.Contains(t, msg, "multipart/mixed")
	assert.Contains(t, msg, `attachment; filename="hardship.pdf"`)
}
