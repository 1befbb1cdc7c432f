package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Eric-Kumenda/Breast-Cancer/internal/auth"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/prediction"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/repository"
	"github.com/Eric-Kumenda/Breast-Cancer/internal/usecase"
)

const testJWTSecret = "test-secret"

type stubService struct {
	modelLoaded  bool
	submitResult *usecase.SubmitResult
	submitErr    error
	submitUser   string
	submitName   string
	getScan      *repository.Scan
	getErr       error
	listScans    []*repository.Scan
	listErr      error
	deleteErr    error
	deletedIDs   []string
	deleteUser   string
}

func (s *stubService) ModelLoaded() bool { return s.modelLoaded }

func (s *stubService) Submit(ctx context.Context, userID, filename, contentType string, data []byte) (*usecase.SubmitResult, error) {
	s.submitUser = userID
	s.submitName = filename
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return s.submitResult, nil
}

func (s *stubService) GetScan(ctx context.Context, userID, scanID string) (*repository.Scan, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.getScan, nil
}

func (s *stubService) ListScans(ctx context.Context, userID string) ([]*repository.Scan, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.listScans, nil
}

func (s *stubService) Delete(ctx context.Context, userID, scanID string) error {
	s.deleteUser = userID
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedIDs = append(s.deletedIDs, scanID)
	return nil
}

func newTestRouter(svc ScanService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc, auth.Middleware(auth.NewJWTVerifier(testJWTSecret, "")))
	return router
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func buildMultipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func decodeJSON(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", resp.Body.String(), err)
	}
	return payload
}

func TestHealthReportsModelState(t *testing.T) {
	for _, loaded := range []bool{true, false} {
		router := newTestRouter(&stubService{modelLoaded: loaded})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("health must always be 200, got %d", resp.Code)
		}
		payload := decodeJSON(t, resp)
		if payload["status"] != "healthy" {
			t.Fatalf("unexpected status: %v", payload["status"])
		}
		if payload["model_loaded"] != loaded {
			t.Fatalf("expected model_loaded=%v, got %v", loaded, payload["model_loaded"])
		}
	}
}

func TestPredictRequiresAuth(t *testing.T) {
	svc := &stubService{modelLoaded: true}
	router := newTestRouter(svc)

	body, contentType := buildMultipartBody(t, "scan.png", "image/png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if svc.submitUser != "" {
		t.Fatal("submit must not run without authentication")
	}
}

func TestPredictReturnsResult(t *testing.T) {
	svc := &stubService{
		modelLoaded: true,
		submitResult: &usecase.SubmitResult{
			ScanID: "scan-1",
			Prediction: prediction.Result{
				Label:      prediction.Malignant,
				Confidence: 0.8,
				Raw:        []float32{0.2, 0.8},
			},
			ImageURL: "https://storage.test/mammo-scans/user-1/scan-1.png",
		},
	}
	router := newTestRouter(svc)

	body, contentType := buildMultipartBody(t, "scan.png", "image/png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	payload := decodeJSON(t, resp)
	if payload["prediction"] != "Malignant" {
		t.Fatalf("unexpected prediction: %v", payload["prediction"])
	}
	if payload["confidence"].(float64) != 0.8 {
		t.Fatalf("unexpected confidence: %v", payload["confidence"])
	}
	if payload["scan_id"] != "scan-1" {
		t.Fatalf("unexpected scan id: %v", payload["scan_id"])
	}
	if svc.submitUser != "user-1" || svc.submitName != "scan.png" {
		t.Fatalf("submit received wrong arguments: %s %s", svc.submitUser, svc.submitName)
	}
}

func TestPredictOmitsScanIDWhenNotPersisted(t *testing.T) {
	svc := &stubService{
		modelLoaded: true,
		submitResult: &usecase.SubmitResult{
			Prediction: prediction.Result{Label: prediction.Benign, Confidence: 0.9, Raw: []float32{0.9, 0.1}},
		},
	}
	router := newTestRouter(svc)

	body, contentType := buildMultipartBody(t, "scan.png", "image/png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	payload := decodeJSON(t, resp)
	if _, ok := payload["scan_id"]; ok {
		t.Fatal("scan_id must be omitted when the record was not persisted")
	}
	if payload["image_url"] != "" {
		t.Fatalf("expected empty image url, got %v", payload["image_url"])
	}
}

func TestPredictRejectsMissingFile(t *testing.T) {
	router := newTestRouter(&stubService{modelLoaded: true})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPredictRejectsOversizedUpload(t *testing.T) {
	router := newTestRouter(&stubService{modelLoaded: true})

	body, contentType := buildMultipartBody(t, "scan.png", "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
}

func TestPredictMapsModelUnavailable(t *testing.T) {
	router := newTestRouter(&stubService{submitErr: usecase.ErrModelUnavailable})

	body, contentType := buildMultipartBody(t, "scan.png", "image/png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	payload := decodeJSON(t, resp)
	if payload["error"] != "model not loaded" {
		t.Fatalf("unexpected error body: %v", payload["error"])
	}
}

func TestDeleteMapsOwnershipError(t *testing.T) {
	svc := &stubService{deleteErr: usecase.ErrForbidden}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/scans/scan-1", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "intruder"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestDeleteMapsNotFound(t *testing.T) {
	router := newTestRouter(&stubService{deleteErr: usecase.ErrNotFound})

	req := httptest.NewRequest(http.MethodDelete, "/scans/missing", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestDeleteSuccess(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/scans/scan-1", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "owner"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	payload := decodeJSON(t, resp)
	if payload["message"] != "Scan deleted successfully" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	if svc.deleteUser != "owner" || len(svc.deletedIDs) != 1 || svc.deletedIDs[0] != "scan-1" {
		t.Fatalf("delete received wrong arguments: %s %v", svc.deleteUser, svc.deletedIDs)
	}
}

func TestGetScanReturnsRecord(t *testing.T) {
	scan := &repository.Scan{
		ID:              "scan-1",
		UserID:          "owner",
		PredictionLabel: "Benign",
		ConfidenceScore: 0.95,
	}
	router := newTestRouter(&stubService{getScan: scan})

	req := httptest.NewRequest(http.MethodGet, "/scans/scan-1", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "owner"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	payload := decodeJSON(t, resp)
	if payload["id"] != "scan-1" || payload["prediction_label"] != "Benign" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestListScansReturnsCollection(t *testing.T) {
	router := newTestRouter(&stubService{listScans: []*repository.Scan{
		{ID: "a", UserID: "owner"},
		{ID: "b", UserID: "owner"},
	}})

	req := httptest.NewRequest(http.MethodGet, "/scans", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "owner"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	payload := decodeJSON(t, resp)
	scans, ok := payload["scans"].([]interface{})
	if !ok || len(scans) != 2 {
		t.Fatalf("unexpected scans payload: %v", payload["scans"])
	}
}
