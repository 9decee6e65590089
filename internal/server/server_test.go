package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/report"
	"github.com/joseph-ayodele/lab-report-parser/internal/corrections"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/extract"
	"github.com/joseph-ayodele/lab-report-parser/internal/metrics"
	"github.com/joseph-ayodele/lab-report-parser/internal/ocr"
	"github.com/joseph-ayodele/lab-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

const labText = `Patient ID : PT000042
Name : SOK CHAN
LABORATORY REPORT
BIOCHEMISTRY
Urea : 5.1 mmol/L (2.5 - 7.5)
Validated By: Dr. KEO`

const snapshot = `{"patientInfo":{"name":"SOK CHAN","patientId":"PT000042","age":null,"gender":null,"phone":null},` +
	`"labInfo":{"labId":null,"requestedBy":null,"requestedDate":null,"collectedDate":null,"analysisDate":null,"validatedBy":"Dr. KEO"},` +
	`"testResults":[{"category":"biochemistry","testName":"Urea","result":"5.1","unit":"mmol/L","referenceRange":"2.5 - 7.5","flag":null}]}`

type fixture struct {
	api      *API
	reports  *repository.MemoryReportRepository
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	reports := repository.NewMemoryReportRepository()
	store := corrections.NewRepositoryStore(repository.NewMemoryCorrectionRepository(), nil, corrections.WithStoreMetrics(m))
	proc := pipeline.NewProcessor(nil,
		pipeline.NewOCRStage(extract.NewOCRAdapter(ocr.NewExtractor(ocr.Config{}, nil)), nil),
		pipeline.NewParseStage(report.NewAssembler(rules.Default(), report.WithCorrections(store), report.WithMetrics(m)), nil),
		reports,
	)
	return &fixture{
		api:      NewAPI(proc, reports, corrections.NewService(store, reports, nil), store, nil),
		reports:  reports,
		registry: reg,
	}
}

func dialBuf(t *testing.T, api *API) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogging(nil)))
	NewGRPCServer(api, nil).Register(s)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewClient(cc)
}

func TestGRPCParseGetAndCorrect(t *testing.T) {
	f := newFixture(t)
	c := dialBuf(t, f.api)
	ctx := context.Background()

	parsed, err := c.ParseText(ctx, ParseRequest{Text: labText, Source: "upload-1"})
	require.NoError(t, err)
	assert.Equal(t, string(constants.ReportStatusProcessed), parsed.Status)
	assert.Equal(t, "upload-1", parsed.SourcePath)

	var rep entity.Report
	require.NoError(t, json.Unmarshal(parsed.Report, &rep))
	assert.Equal(t, "PT000042", entity.StrVal(rep.PatientInfo.PatientID))

	got, err := c.GetReport(ctx, parsed.ReportID)
	require.NoError(t, err)
	assert.Equal(t, parsed.ReportID, got.ReportID)

	res, err := c.SubmitCorrections(ctx, SubmitRequest{
		ReportID:    parsed.ReportID,
		Corrections: []entity.CorrectionInput{{Original: "Urca", Corrected: "Urea", Type: "test_name"}},
		Snapshot:    json.RawMessage(snapshot),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Learned)

	best, err := c.BestCorrection(ctx, BestCorrectionRequest{Text: "Urca", Type: "testName"})
	require.NoError(t, err)
	assert.True(t, best.Found)
	assert.Equal(t, "Urea", best.Corrected)

	got, err = c.GetReport(ctx, parsed.ReportID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.ReportStatusCorrected), got.Status)
	assert.JSONEq(t, snapshot, string(got.Report))
}

func TestGRPCErrorCodes(t *testing.T) {
	c := dialBuf(t, newFixture(t).api)
	ctx := context.Background()

	_, err := c.ParseText(ctx, ParseRequest{Text: "  "})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.GetReport(ctx, "not-a-uuid")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.GetReport(ctx, uuid.NewString())
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.BestCorrection(ctx, BestCorrectionRequest{Text: "x", Type: "colour"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func newRouter(f *fixture, health HealthFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(f.api, f.registry, health, nil)
}

func do(r http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHTTPParseAndFetch(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, nil)

	w := do(r, http.MethodPost, "/v1/reports/parse", "text/plain", labText)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var created ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "api", created.SourcePath)

	w = do(r, http.MethodGet, "/v1/reports/"+created.ReportID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.JSONEq(t, string(created.Report), string(fetched.Report))

	body, _ := json.Marshal(map[string]any{
		"corrections": []map[string]string{{"original": "Urca", "corrected": "Urea", "type": "test_name"}},
		"snapshot":    json.RawMessage(snapshot),
	})
	w = do(r, http.MethodPost, "/v1/reports/"+created.ReportID+"/corrections", "application/json", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"learned":1,"skipped":0}`, w.Body.String())

	w = do(r, http.MethodGet, "/v1/corrections/best?text=Urca&type=test_name", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"found":true,"corrected":"Urea"}`, w.Body.String())
}

func TestHTTPErrors(t *testing.T) {
	r := newRouter(newFixture(t), nil)

	cases := []struct {
		name, method, path, ctype, body string
		status                          int
		code                            string
	}{
		{"empty text", http.MethodPost, "/v1/reports/parse", "application/json", `{"text":""}`, http.StatusBadRequest, "NO_INPUT"},
		{"malformed json", http.MethodPost, "/v1/reports/parse", "application/json", `{`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad id", http.MethodGet, "/v1/reports/123", "", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown report", http.MethodGet, "/v1/reports/" + uuid.NewString(), "", "", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.method, tc.path, tc.ctype, tc.body)
			assert.Equal(t, tc.status, w.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
			if tc.code != "" {
				assert.Equal(t, tc.code, body.Error)
			}
		})
	}
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, func(context.Context) error { return nil })

	w := do(r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	do(r, http.MethodPost, "/v1/reports/parse", "text/plain", labText)
	w = do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "labreport_")

	down := newRouter(f, func(context.Context) error { return assert.AnError })
	w = do(down, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
