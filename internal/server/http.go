package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

const maxBodyBytes = 5 << 20

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewRouter builds the REST surface over api. gatherer backs /metrics; health
// backs /healthz and may be nil.
func NewRouter(api *API, gatherer prometheus.Gatherer, health HealthFunc, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogging(logger))

	h := &httpHandlers{api: api}
	v1 := r.Group("/v1")
	v1.POST("/reports/parse", h.parse)
	v1.GET("/reports/:id", h.getReport)
	v1.POST("/reports/:id/corrections", h.submitCorrections)
	v1.GET("/corrections/best", h.bestCorrection)

	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

type httpHandlers struct {
	api *API
}

// parse accepts either {"text": "...", "source": "..."} or a text/plain body.
func (h *httpHandlers) parse(c *gin.Context) {
	var req ParseRequest
	if strings.HasPrefix(c.ContentType(), "text/plain") {
		b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			writeError(c, common.NewAppError("INVALID_ARGUMENT", "read body", common.ErrInvalidInput))
			return
		}
		req.Text = string(b)
		req.Source = c.Query("source")
	} else if !bindJSON(c, &req) {
		return
	}
	out, err := h.api.ParseText(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *httpHandlers) getReport(c *gin.Context) {
	out, err := h.api.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *httpHandlers) submitCorrections(c *gin.Context) {
	var req SubmitRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ReportID = c.Param("id")
	out, err := h.api.SubmitCorrections(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *httpHandlers) bestCorrection(c *gin.Context) {
	out, err := h.api.BestCorrection(c.Request.Context(), BestCorrectionRequest{
		Text: c.Query("text"),
		Type: c.Query("type"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func bindJSON(c *gin.Context, v any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, common.NewAppError("INVALID_ARGUMENT", "malformed JSON body: "+err.Error(), common.ErrInvalidInput))
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(common.HTTPStatus(err), errorBody{Error: common.ErrorCode(err), Message: err.Error()})
}

// requestLogging tags the request context with X-Request-ID (or a new id), echoes
// it back and logs the outcome.
func requestLogging(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		if id := c.GetHeader("X-Request-ID"); id != "" {
			ctx = common.WithRequestID(ctx, id)
		}
		ctx, reqID := common.EnsureRequestID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", reqID)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"request_id", reqID,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			logger.Error("http.request", attrs...)
		case status >= 400:
			logger.Warn("http.request", attrs...)
		case c.FullPath() == "/healthz" || c.FullPath() == "/metrics":
			logger.Debug("http.request", attrs...)
		default:
			logger.Info("http.request", attrs...)
		}
	}
}

// HTTPServer wraps http.Server with the router and graceful stop.
type HTTPServer struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving until Stop is called.
func (s *HTTPServer) Start() error {
	s.logger.Info("http.listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
