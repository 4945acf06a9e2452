package admin

import (
	"net/http"
	"time"

	"servicesim/internal/metrics"
	"servicesim/internal/rules"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/gin-gonic/gin"
)

// Backend is what the admin routes inspect and drive.
type Backend interface {
	Registry() *rules.Registry
	Reload() error
}

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    int         `json:"code,omitempty"`
}

// NewSuccessResponse creates a successful API response
func NewSuccessResponse(data interface{}, message ...string) *APIResponse {
	msg := ""
	if len(message) > 0 {
		msg = message[0]
	}
	return &APIResponse{Success: true, Message: msg, Data: data, Code: http.StatusOK}
}

// NewErrorResponse creates an error API response
func NewErrorResponse(err error, code int) *APIResponse {
	return &APIResponse{Success: false, Error: err.Error(), Code: code}
}

// CallInfo describes one loaded call.
type CallInfo struct {
	Name               string   `json:"name"`
	Method             string   `json:"method"`
	Path               string   `json:"path"`
	Placeholders       []string `json:"placeholders,omitempty"`
	Responses          []string `json:"responses"`
	Timeout            float64  `json:"timeout,omitempty"`
	TimeoutProbability float64  `json:"timeout_probability,omitempty"`
}

type handler struct {
	backend Backend
	logger  *scribe.Scribe
}

// NewRouter builds the admin router: Prometheus metrics plus a small API to
// inspect and reload the active definitions.
func NewRouter(backend Backend, m *metrics.Metrics, logger *scribe.Scribe) *gin.Engine {
	h := &handler{backend: backend, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/health", h.health)
		api.GET("/calls", h.calls)
		api.POST("/reload", h.reload)
	}
	return router
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, NewSuccessResponse(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}, "Service is healthy"))
}

func (h *handler) calls(c *gin.Context) {
	registry := h.backend.Registry()
	infos := []CallInfo{}
	if registry != nil {
		for _, call := range registry.Calls() {
			info := CallInfo{
				Name:               call.Name,
				Method:             call.Method,
				Path:               call.Path.String(),
				Placeholders:       call.Path.Names(),
				Timeout:            call.Timeout,
				TimeoutProbability: call.TimeoutProbability,
			}
			for _, r := range call.Responses {
				info.Responses = append(info.Responses, r.Name)
			}
			infos = append(infos, info)
		}
	}
	c.JSON(http.StatusOK, NewSuccessResponse(infos))
}

func (h *handler) reload(c *gin.Context) {
	h.logger.Info().Str("ip", c.ClientIP()).Msg("Reload requested through admin API")

	if err := h.backend.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err, http.StatusInternalServerError))
		return
	}

	calls := 0
	if registry := h.backend.Registry(); registry != nil {
		calls = registry.Len()
	}
	c.JSON(http.StatusOK, NewSuccessResponse(map[string]int{"calls": calls}, "Definitions reloaded"))
}
