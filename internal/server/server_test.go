package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finstat/internal"
	"finstat/internal/config"
	"finstat/internal/storage"
)

const reportText = "Annual Report 2024\fConsolidated balance sheet ($m)\nTotal assets 1,080,248\nTotal liabilities 1,000,000\nTotal equity 80,248"

func testSchema() []internal.MetricDefinition {
	return []internal.MetricDefinition{
		{StandardName: "total_assets", CandidateLabels: []string{"total assets"}, ValueKind: internal.KindAmount},
		{StandardName: "total_equity", CandidateLabels: []string{"total equity"}, ValueKind: internal.KindAmount},
	}
}

func newTestServer(t *testing.T) (http.Handler, *storage.DB) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cfg := config.Config{
		DataDir:               tmp,
		DefaultDollarCurrency: "USD",
		BalanceTolerance:      0.05,
		FinancialDocThreshold: 0.3,
		Workers:               1,
	}
	return New(db, cfg, testSchema()).Handler(), db
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func uploadBody(t *testing.T, name, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("bank", "Bank A"))
	require.NoError(t, mw.WriteField("period", "FY2024"))
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rr := do(t, h, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestDocumentFlow(t *testing.T) {
	h, _ := newTestServer(t)

	body, ctype := uploadBody(t, "fy24.txt", reportText)
	rr := do(t, h, http.MethodPost, "/api/upload", body, ctype)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var doc internal.Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.NotEmpty(t, doc.ID)
	require.NotNil(t, doc.Bank)
	assert.Equal(t, "Bank A", *doc.Bank)

	rr = do(t, h, http.MethodPost, "/api/upload", body, ctype)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/metrics/"+doc.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/extract/"+doc.ID, nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var processed struct {
		DocumentID string `json:"document_id"`
		NumMetrics int    `json:"num_metrics"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &processed))
	assert.Equal(t, doc.ID, processed.DocumentID)
	assert.Equal(t, 2, processed.NumMetrics)
	assert.Equal(t, "processed", processed.Status)

	rr = do(t, h, http.MethodGet, "/api/metrics/"+doc.ID, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var result internal.StoredResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assets := result.Selected("total_assets")
	require.NotNil(t, assets)
	assert.Equal(t, 1080248e6, assets.Value)

	review := []byte(`{"accepted":true,"reviewer":"qa","note":"checked"}`)
	rr = do(t, h, http.MethodPost, "/api/metrics/"+strconv.FormatInt(assets.ID, 10)+"/review", review, "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var reviewed internal.StoredMetric
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reviewed))
	require.NotNil(t, reviewed.Review)
	assert.True(t, reviewed.Review.Accepted)
	assert.Equal(t, "qa", reviewed.Review.Reviewer)

	rr = do(t, h, http.MethodGet, "/api/report?ids="+doc.ID, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "Bank A FY2024")
	assert.Contains(t, rr.Body.String(), "USD 1,080,248,000,000")

	rr = do(t, h, http.MethodGet, "/api/files", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var docs []internal.Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &docs))
	assert.Len(t, docs, 1)
}

func TestUploadUnsupported(t *testing.T) {
	h, _ := newTestServer(t)
	body, ctype := uploadBody(t, "logo.png", "png bytes")
	rr := do(t, h, http.MethodPost, "/api/upload", body, ctype)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body, ctype = uploadBody(t, "fake.pdf", "not a pdf")
	rr = do(t, h, http.MethodPost, "/api/upload", body, ctype)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	for _, tc := range []struct {
		method, target string
		body           []byte
	}{
		{http.MethodGet, "/api/files/missing", nil},
		{http.MethodPost, "/api/extract/missing", nil},
		{http.MethodGet, "/api/metrics/missing", nil},
		{http.MethodPost, "/api/metrics/999/review", []byte(`{"accepted":false}`)},
		{http.MethodGet, "/api/report?ids=missing", nil},
	} {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rr := do(t, h, tc.method, tc.target, tc.body, "application/json")
			assert.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
		})
	}
}

func TestExtractPages(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(t, h, http.MethodPost, "/api/extract", []byte(`{"pages":["Total assets 1,000"]}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result internal.ExtractionResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.NotNil(t, result.Selected("total_assets"))
	assert.Equal(t, 1000.0, result.Selected("total_assets").Value)

	for _, body := range []string{
		`{}`,
		`{"pages":["x"],"metrics":[{"standard_name":"a","candidate_labels":[],"value_kind":"amount"}]}`,
		`not json`,
	} {
		rr := do(t, h, http.MethodPost, "/api/extract", []byte(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}
