package handler

import (
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"servicesim/internal/metrics"
	"servicesim/internal/rules"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BodyFileParam names the parameter holding the path of a temporary file with
// the raw request body.
const BodyFileParam = "_body_file"

// Source yields the registry a request is resolved against.
type Source interface {
	Registry() *rules.Registry
}

// SourceFunc adapts a function to Source.
type SourceFunc func() *rules.Registry

func (f SourceFunc) Registry() *rules.Registry { return f() }

// Handler turns HTTP requests into rule lookups and writes the result back.
type Handler struct {
	source     Source
	Logger     *scribe.Scribe
	Metrics    *metrics.Metrics
	concurrent bool
	// TempDir is where body files are written; empty means os.TempDir.
	TempDir string

	mu sync.Mutex
}

// NewHandler creates a handler resolving requests against source. Unless
// concurrent is set, requests are resolved one at a time.
func NewHandler(logger *scribe.Scribe, source Source, m *metrics.Metrics, concurrent bool) *Handler {
	return &Handler{
		source:     source,
		Logger:     logger,
		Metrics:    m,
		concurrent: concurrent,
	}
}

// HandleRequest handles one request of any routed method.
func (h *Handler) HandleRequest(c *gin.Context) {
	start := time.Now()

	if h.Metrics != nil {
		h.Metrics.ActiveRequests.Inc()
		defer h.Metrics.ActiveRequests.Dec()
	}

	ctx := scribe.WithCtx(c.Request.Context())
	logCtx := scribe.GetLogContext(ctx)
	logCtx.Set("request_trace_id", uuid.New().String())
	c.Request = c.Request.WithContext(ctx)

	req := &rules.Request{
		Method: c.Request.Method,
		Path:   strings.Trim(c.Request.URL.EscapedPath(), "/"),
		Params: rules.Params{},
	}

	h.Logger.DebugCtx(ctx).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("ip", c.ClientIP()).
		Msg("Handling request")

	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			h.Logger.ErrorCtx(ctx).AnErr("error", err).Msg("Error reading request body")
		}
	}
	req.Body = body

	addValues(req.Params, parseForm(string(body)))

	bodyFile, err := h.writeBodyFile(body)
	if err != nil {
		h.Logger.ErrorCtx(ctx).AnErr("error", err).Msg("Error writing request body file")
	} else {
		defer os.Remove(bodyFile)
		req.Params[BodyFileParam] = bodyFile
	}

	addValues(req.Params, parseForm(c.Request.URL.RawQuery))

	out := h.dispatch(c, req)

	h.Logger.InfoCtx(ctx).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("call", out.Call).
		Str("response", out.Response).
		Int("status_code", out.Status).
		Msg("Request completed")

	c.Data(out.Status, out.ContentType, []byte(out.Body+"\n"))

	h.Metrics.ObserveRequest(req.Method, out.Call, out.Status, string(out.Miss), out.Delay, time.Since(start))
}

func (h *Handler) dispatch(c *gin.Context, req *rules.Request) rules.Outcome {
	if !h.concurrent {
		h.mu.Lock()
		defer h.mu.Unlock()
	}

	registry := h.source.Registry()
	if registry == nil {
		h.Logger.ErrorCtx(c.Request.Context()).Msg("No definitions loaded, returning 500")
		return rules.Outcome{Result: rules.InternalError, Miss: rules.MissCall}
	}
	return registry.Dispatch(c.Request.Context(), req)
}

func (h *Handler) writeBodyFile(body []byte) (string, error) {
	f, err := os.CreateTemp(h.TempDir, "servicesim-body-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// parseForm reads a URL-encoded string leniently. Malformed pairs are
// dropped, the rest are kept.
func parseForm(s string) url.Values {
	values, _ := url.ParseQuery(s)
	return values
}

// addValues copies the first non-blank value of every key into params.
func addValues(params rules.Params, values url.Values) {
	for key, list := range values {
		for _, v := range list {
			if v != "" {
				params[key] = v
				break
			}
		}
	}
}
