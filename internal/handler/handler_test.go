package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"servicesim/internal/chaos"
	"servicesim/internal/logger"
	"servicesim/internal/metrics"
	"servicesim/internal/rules"
	"servicesim/internal/script"

	"github.com/gin-gonic/gin"
)

func staticResponse(name string, status int, body string, predicates ...rules.Predicate) *rules.Response {
	return &rules.Response{
		Name:        name,
		Status:      status,
		ContentType: "text/plain",
		Predicates:  predicates,
		Generation:  rules.Static{Body: body},
	}
}

func newCall(t *testing.T, name, method, path string, responses ...*rules.Response) *rules.Call {
	t.Helper()
	call, err := rules.NewCall(name, method, path, responses, 0, 0)
	if err != nil {
		t.Fatalf("Failed to create call: %v", err)
	}
	return call
}

func newHandler(t *testing.T, concurrent bool, calls ...*rules.Call) *Handler {
	t.Helper()
	reg := rules.NewRegistry(calls, rules.Env{Log: logger.Quiet()})
	h := NewHandler(logger.Quiet(), SourceFunc(func() *rules.Registry { return reg }), metrics.New(), concurrent)
	h.TempDir = t.TempDir()
	return h
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	h.HandleRequest(c)
	return w
}

func TestHandleRequestWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHandler(t, false, newCall(t, "ping.ini", "GET", "ping", staticResponse("pong", 200, "pong")))

	req, err := http.NewRequest(http.MethodGet, "/ping?x=1", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if req.Body != nil {
		t.Fatal("Expected a request without body")
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	h.HandleRequest(c)

	if w.Code != http.StatusOK || w.Body.String() != "pong\n" {
		t.Errorf("Unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestHandleRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := newHandler(t, false,
		newCall(t, "ping.ini", "GET", "ping", staticResponse("pong", 200, "pong")),
		newCall(t, "user.ini", "POST", "user/$id",
			staticResponse("bob", 201, "created bob", rules.ParsePredicate("id", "bob")),
		),
	)

	tests := []struct {
		name           string
		method         string
		target         string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{"simple GET", "GET", "/ping", "", 200, "pong\n"},
		{"surrounding slashes ignored", "GET", "/ping/", "", 200, "pong\n"},
		{"placeholder predicate", "POST", "/user/bob", "", 201, "created bob\n"},
		{"no response matches", "POST", "/user/alice", "", 500, "Internal server error\n"},
		{"no call matches", "GET", "/nothing", "", 500, "Internal server error\n"},
		{"method must match", "PUT", "/ping", "", 500, "Internal server error\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, tt.method, tt.target, tt.body)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status code %d, got %d", tt.expectedStatus, w.Code)
			}
			if w.Body.String() != tt.expectedBody {
				t.Errorf("Expected body %q, got %q", tt.expectedBody, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "text/plain" {
				t.Errorf("Expected Content-Type text/plain, got %q", ct)
			}
		})
	}
}

func TestParameterPrecedence(t *testing.T) {
	gin.SetMode(gin.TestMode)

	program, err := script.Compile(`out.Write(data["a"], ",", data["b"], ",", data["c"], ",", "d" in data)`, time.Second)
	if err != nil {
		t.Fatalf("Failed to compile script: %v", err)
	}
	echo := &rules.Response{
		Name:        "echo",
		Status:      200,
		ContentType: "text/plain",
		Generation:  rules.Scripted{Program: program},
	}
	h := newHandler(t, false, newCall(t, "item.ini", "POST", "item/$b", echo))

	w := serve(h, "POST", "/item/path?a=query&b=query", "a=body&b=body&c=body&c=second&d=")

	if w.Code != 200 {
		t.Fatalf("Expected status code 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "query,path,body,false\n" {
		t.Errorf("Unexpected parameter map rendering %q", got)
	}
}

func TestBodyFile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cat := &rules.Response{
		Name:        "cat",
		Status:      200,
		ContentType: "application/octet-stream",
		Generation:  rules.Command{Template: "cat $_body_file"},
	}
	h := newHandler(t, false, newCall(t, "upload.ini", "PUT", "upload", cat))

	w := serve(h, "PUT", "/upload", `{"raw": true}`)

	if w.Code != 200 {
		t.Fatalf("Expected status code 200, got %d", w.Code)
	}
	if w.Body.String() != "{\"raw\": true}\n" {
		t.Errorf("Expected body file contents, got %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Expected Content-Type application/octet-stream, got %q", ct)
	}

	entries, err := os.ReadDir(h.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected body file to be removed, found %d files", len(entries))
	}
}

func TestNoRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandler(logger.Quiet(), SourceFunc(func() *rules.Registry { return nil }), nil, false)
	h.TempDir = t.TempDir()

	w := serve(h, "GET", "/anything", "")
	if w.Code != 500 || w.Body.String() != "Internal server error\n" {
		t.Errorf("Unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestSnapshotPerRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	first := rules.NewRegistry([]*rules.Call{newCall(t, "v.ini", "GET", "version", staticResponse("v", 200, "one"))}, rules.Env{})
	second := rules.NewRegistry([]*rules.Call{newCall(t, "v.ini", "GET", "version", staticResponse("v", 200, "two"))}, rules.Env{})

	var current atomic.Pointer[rules.Registry]
	current.Store(first)
	h := NewHandler(logger.Quiet(), SourceFunc(current.Load), nil, false)
	h.TempDir = t.TempDir()

	if body := serve(h, "GET", "/version", "").Body.String(); body != "one\n" {
		t.Errorf("Expected first registry, got %q", body)
	}
	current.Store(second)
	if body := serve(h, "GET", "/version", "").Body.String(); body != "two\n" {
		t.Errorf("Expected swapped registry, got %q", body)
	}
}

func TestSerialDispatch(t *testing.T) {
	gin.SetMode(gin.TestMode)

	stalled, err := rules.NewCall("slow.ini", "GET", "slow", []*rules.Response{staticResponse("s", 200, "slow")}, 0.05, 1)
	if err != nil {
		t.Fatal(err)
	}

	run := func(concurrent bool) time.Duration {
		reg := rules.NewRegistry([]*rules.Call{stalled}, rules.Env{Log: logger.Quiet(), Chaos: chaos.NewEngine()})
		h := NewHandler(logger.Quiet(), SourceFunc(func() *rules.Registry { return reg }), nil, concurrent)
		h.TempDir = t.TempDir()

		start := time.Now()
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				serve(h, "GET", "/slow", "")
			}()
		}
		wg.Wait()
		return time.Since(start)
	}

	if elapsed := run(false); elapsed < 200*time.Millisecond {
		t.Errorf("Expected serial dispatch to take at least 200ms, took %s", elapsed)
	}
	if elapsed := run(true); elapsed >= 200*time.Millisecond {
		t.Errorf("Expected concurrent dispatch to overlap stalls, took %s", elapsed)
	}
}

func TestAddValues(t *testing.T) {
	params := rules.Params{}
	addValues(params, parseForm("a=1&a=2&b=&c=%20x&bad=%zz"))

	if params["a"] != "1" {
		t.Errorf("Expected first value to win, got %q", params["a"])
	}
	if _, ok := params["b"]; ok {
		t.Error("Expected blank value to be dropped")
	}
	if params["c"] != " x" {
		t.Errorf("Expected decoded value, got %q", params["c"])
	}
	if _, ok := params["bad"]; ok {
		t.Error("Expected malformed pair to be dropped")
	}
	if !strings.Contains(params.String(), `"a": "1"`) {
		t.Errorf("Unexpected rendering %s", params.String())
	}
}
