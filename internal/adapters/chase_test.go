package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submission-engine/internal/common/errors"
	httpclient "submission-engine/internal/common/http"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"
)

// ==========================
// Test Helpers
// ==========================

func chaseTestConfig(endpoint string) models.ServicerConfig {
	return models.ServicerConfig{
		ID:          "chase",
		Name:        "Chase",
		ChannelType: models.ChannelAPI,
		Endpoint:    endpoint,
		Credentials: map[string]string{"api_key": "test-key"},
	}
}

func chaseTestDeps(t *testing.T) Dependencies {
	return Dependencies{
		HTTP:   httpclient.NewClient(5 * time.Second),
		Logger: logger.NewTestLogger(t),
	}
}

func chaseTestApplication() *models.PreparedApplication {
	return &models.PreparedApplication{
		CaseID:        "case-9",
		LoanNumber:    "LN-2002",
		BorrowerNames: []string{"Alex Rivera"},
		Documents: []models.Document{
			{Type: "tax_return", Filename: "tax.pdf", Content: []byte("tax"), MimeType: "application/pdf", Size: 3},
			{Type: "hardship_letter", Filename: "hardship.pdf", Content: []byte("hl"), MimeType: "application/pdf", Size: 2},
			{Type: "financial_statement", Filename: "fin.pdf", Content: []byte("fin"), MimeType: "application/pdf", Size: 3},
		},
	}
}

// ==========================
// Validation Tests
// ==========================

func TestChaseAdapter_ValidateRequirements(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(app *models.PreparedApplication)
		wantValid  bool
		wantErrors int
	}{
		{
			name:      "complete package passes",
			mutate:    func(app *models.PreparedApplication) {},
			wantValid: true,
		},
		{
			name: "missing loan number",
			mutate: func(app *models.PreparedApplication) {
				app.LoanNumber = ""
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "missing required document",
			mutate: func(app *models.PreparedApplication) {
				app.Documents = app.Documents[:2]
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "oversized document",
			mutate: func(app *models.PreparedApplication) {
				app.Documents[0].Size = 11 * 1024 * 1024
			},
			wantValid:  false,
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewChaseAdapter(chaseTestConfig("http://unused"), chaseTestDeps(t))
			app := chaseTestApplication()
			tt.mutate(app)

			result, err := adapter.ValidateRequirements(context.Background(), app)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)
			assert.Len(t, result.Errors, tt.wantErrors)
		})
	}
}

// ==========================
// Transform Tests
// ==========================

func TestChaseAdapter_Transform_OrdersDocuments(t *testing.T) {
	adapter := NewChaseAdapter(chaseTestConfig("http://unused"), chaseTestDeps(t))

	transformed, err := adapter.Transform(context.Background(), chaseTestApplication())
	require.NoError(t, err)
	assert.Equal(t, "json", transformed.Format)
	assert.Equal(t, "test-key", transformed.Headers["X-API-Key"])

	var payload chasePayload
	require.NoError(t, json.Unmarshal(transformed.Payload, &payload))

	var types []string
	for _, doc := range payload.Documents {
		types = append(types, doc.DocumentType)
	}
	assert.Equal(t, []string{"hardship_letter", "financial_statement", "tax_return"}, types)
}

func TestChaseAdapter_Transform_IsDeterministic(t *testing.T) {
	adapter := NewChaseAdapter(chaseTestConfig("http://unused"), chaseTestDeps(t))

	first, err := adapter.Transform(context.Background(), chaseTestApplication())
	require.NoError(t, err)
	second, err := adapter.Transform(context.Background(), chaseTestApplication())
	require.NoError(t, err)

	assert.Equal(t, first.Payload, second.Payload)
}

func TestChaseAdapter_Transform_RejectsSchemaViolations(t *testing.T) {
	adapter := NewChaseAdapter(chaseTestConfig("http://unused"), chaseTestDeps(t))

	app := chaseTestApplication()
	app.BorrowerNames = nil

	_, err := adapter.Transform(context.Background(), app)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.Classify(err))
}

// ==========================
// Submit Tests
// ==========================

func TestChaseAdapter_Submit_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(chaseSubmitResponse{
			TrackingNumber:        "CHASE-123",
			ConfirmationNumber:    "CONF-9",
			EstimatedResponseTime: "3-5 business days",
		})
	}))
	defer server.Close()

	adapter := NewChaseAdapter(chaseTestConfig(server.URL), chaseTestDeps(t))
	transformed, err := adapter.Transform(context.Background(), chaseTestApplication())
	require.NoError(t, err)

	result, err := adapter.Submit(context.Background(), transformed)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "CHASE-123", result.TrackingNumber)
	assert.Equal(t, "CONF-9", result.ConfirmationNumber)
}

func TestChaseAdapter_Submit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		wantCategory errors.Category
	}{
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantCategory: errors.CategoryAuthentication},
		{name: "forbidden", statusCode: http.StatusForbidden, wantCategory: errors.CategoryAuthentication},
		{name: "bad request", statusCode: http.StatusBadRequest, wantCategory: errors.CategoryValidation},
		{name: "unprocessable", statusCode: http.StatusUnprocessableEntity, wantCategory: errors.CategoryValidation},
		{name: "server error", statusCode: http.StatusInternalServerError, wantCategory: errors.CategoryTransient},
		{name: "bad gateway", statusCode: http.StatusBadGateway, wantCategory: errors.CategoryTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			adapter := NewChaseAdapter(chaseTestConfig(server.URL), chaseTestDeps(t))
			transformed, err := adapter.Transform(context.Background(), chaseTestApplication())
			require.NoError(t, err)

			_, err = adapter.Submit(context.Background(), transformed)
			require.Error(t, err)
			assert.Equal(t, tt.wantCategory, errors.Classify(err))
		})
	}
}

// ==========================
// Status and Connection Tests
// ==========================

func TestChaseAdapter_CheckStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/CHASE-123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "in_review",
			"message": "under review",
		})
	}))
	defer server.Close()

	adapter := NewChaseAdapter(chaseTestConfig(server.URL), chaseTestDeps(t))
	status, err := adapter.CheckStatus(context.Background(), "CHASE-123")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusInReview, status.Status)
}

func TestChaseAdapter_TestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewChaseAdapter(chaseTestConfig(server.URL), chaseTestDeps(t))
	result, err := adapter.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
}
