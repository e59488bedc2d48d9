package observability

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/objctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(DispatchCount("metrics-test", "complete"))
	RecordDispatch("metrics-test", "complete", 12*time.Millisecond)
	RecordDispatch("metrics-test", "rejected", 0)
	RecordResponseBytes("metrics-test", 42)

	if got := testutil.ToFloat64(DispatchCount("metrics-test", "complete")); got != before+1 {
		t.Fatalf("dispatch counter = %v, want %v", got, before+1)
	}
}

func TestRequestLoggerServesMetrics(t *testing.T) {
	testlog.Start(t)
	RecordResponseBytes("metrics-http", 7)
	srv := httptest.NewServer(Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `objctl_response_bytes_total{module="metrics-http"} 7`) {
		t.Fatalf("response bytes series missing from scrape")
	}

	missing, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestRequestLoggerRecordsStatusAndSize(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var out bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&out)))
	r.GET("/brew", func(c *gin.Context) {
		c.String(http.StatusTeapot, "tea")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	line := out.String()
	for _, want := range []string{`"level":"warn"`, `"path":"/brew"`, `"status":418`, `"bytes":3`, `"message":"http_request"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}
}
