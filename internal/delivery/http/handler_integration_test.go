package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pricechecker/admin/config"
	"github.com/pricechecker/admin/internal/domain"
	"github.com/pricechecker/admin/internal/infrastructure/flowstore"
	"github.com/pricechecker/admin/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	exitCode := m.Run()

	os.Exit(exitCode)
}

// stubClient is a test double for domain.ContentClient.
type stubClient struct {
	fetchFn    func(ctx context.Context) (*domain.Catalog, string, error)
	writeFn    func(ctx context.Context, catalog *domain.Catalog, sha, message string) (string, error)
	writeCalls int
}

func (s *stubClient) Fetch(ctx context.Context) (*domain.Catalog, string, error) {
	if s.fetchFn == nil {
		return nil, "", errors.New("unexpected Fetch call")
	}
	return s.fetchFn(ctx)
}

func (s *stubClient) Write(ctx context.Context, catalog *domain.Catalog, sha, message string) (string, error) {
	s.writeCalls++
	if s.writeFn == nil {
		return "", errors.New("unexpected Write call")
	}
	return s.writeFn(ctx, catalog, sha, message)
}

func remoteCatalog() *domain.Catalog {
	return &domain.Catalog{
		Columns: []string{"barcode", "name", "price", "category"},
		Rows: []domain.Row{
			{"barcode": "123", "name": "Widget A", "price": "10.00", "category": "Electronics"},
			{"barcode": "456", "name": "Mop", "price": "5.00", "category": "Cleaning"},
		},
	}
}

// setupTestRouter creates a test router wired to the given content client
func setupTestRouter(client domain.ContentClient) *gin.Engine {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:8080"},
		},
		GitHub: config.GitHubConfig{
			Repo:     "acme/price-data",
			FilePath: "products.csv",
			Branch:   "main",
			Timeout:  30 * time.Second,
		},
		Session: config.SessionConfig{Secret: "test-secret", TTL: time.Hour},
		Admin:   config.AdminConfig{Password: "test-password"},
	}

	gate := usecase.NewGate(cfg.Admin.Password)
	handler := NewHandler(gate, client, flowstore.NewStore(), cfg.Session.TTL)

	return SetupRouter(cfg, handler)
}

// login authenticates against the router and returns the session cookies.
func login(t *testing.T, router *gin.Engine) []*http.Cookie {
	t.Helper()

	req, _ := http.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(`{"password":"test-password"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login failed: status = %d, body = %s", w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func doJSON(router *gin.Engine, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return body
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status without authentication", func(t *testing.T) {
		router := setupTestRouter(&stubClient{})

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decodeBody(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "pricecheck-admin" {
			t.Errorf("service = %v, want pricecheck-admin", response["service"])
		}
	})
}

// TestAuthEndpoints tests the credential gate over HTTP
func TestAuthEndpoints(t *testing.T) {
	t.Run("rejects a wrong password", func(t *testing.T) {
		router := setupTestRouter(&stubClient{})

		w := doJSON(router, "POST", "/api/v1/auth/login", `{"password":"wrong"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("accepts the configured password and marks session", func(t *testing.T) {
		router := setupTestRouter(&stubClient{})
		cookies := login(t, router)

		w := doJSON(router, "GET", "/api/v1/auth/session", "", cookies)
		body := decodeBody(t, w)
		if body["authenticated"] != true {
			t.Errorf("authenticated = %v, want true", body["authenticated"])
		}
	})

	t.Run("logout clears the session", func(t *testing.T) {
		client := &stubClient{
			fetchFn: func(ctx context.Context) (*domain.Catalog, string, error) {
				return remoteCatalog(), "abc", nil
			},
		}
		router := setupTestRouter(client)
		cookies := login(t, router)

		w := doJSON(router, "POST", "/api/v1/auth/logout", "", cookies)
		if w.Code != http.StatusNoContent {
			t.Fatalf("logout status = %d, want %d", w.Code, http.StatusNoContent)
		}

		// The browser replaces the session cookie with the cleared one from
		// the logout response; it no longer grants access.
		cleared := w.Result().Cookies()
		w = doJSON(router, "GET", "/api/v1/catalog", "", cleared)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("post-logout status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("catalog endpoints require authentication", func(t *testing.T) {
		router := setupTestRouter(&stubClient{})

		paths := []struct{ method, path string }{
			{"GET", "/api/v1/catalog"},
			{"PUT", "/api/v1/catalog/rows"},
			{"POST", "/api/v1/catalog/save"},
			{"POST", "/api/v1/upload"},
			{"POST", "/api/v1/upload/commit"},
		}
		for _, p := range paths {
			w := doJSON(router, p.method, p.path, "", nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s: status = %d, want %d", p.method, p.path, w.Code, http.StatusUnauthorized)
			}
		}
	})
}

// TestViewEditFlow exercises load → edit → save end to end
func TestViewEditFlow(t *testing.T) {
	t.Run("load, edit and save", func(t *testing.T) {
		var writtenSHA string
		var written *domain.Catalog

		client := &stubClient{
			fetchFn: func(ctx context.Context) (*domain.Catalog, string, error) {
				return &domain.Catalog{
					Columns: []string{"barcode", "name", "price"},
					Rows:    []domain.Row{{"barcode": "123", "name": "A", "price": "10.00"}},
				}, "abc", nil
			},
			writeFn: func(ctx context.Context, catalog *domain.Catalog, sha, message string) (string, error) {
				writtenSHA = sha
				written = catalog
				return "def", nil
			},
		}
		router := setupTestRouter(client)
		cookies := login(t, router)

		w := doJSON(router, "GET", "/api/v1/catalog", "", cookies)
		if w.Code != http.StatusOK {
			t.Fatalf("GET catalog status = %d, body = %s", w.Code, w.Body.String())
		}
		view := decodeBody(t, w)
		if view["state"] != "loaded" {
			t.Errorf("state = %v, want loaded", view["state"])
		}
		if view["sha"] != "abc" {
			t.Errorf("sha = %v, want abc", view["sha"])
		}

		w = doJSON(router, "PUT", "/api/v1/catalog/rows",
			`{"query":"","rows":[{"barcode":"123","name":"A","price":"12.00"}]}`, cookies)
		if w.Code != http.StatusOK {
			t.Fatalf("PUT rows status = %d, body = %s", w.Code, w.Body.String())
		}

		w = doJSON(router, "POST", "/api/v1/catalog/save", `{"message":""}`, cookies)
		if w.Code != http.StatusOK {
			t.Fatalf("save status = %d, body = %s", w.Code, w.Body.String())
		}
		if body := decodeBody(t, w); body["sha"] != "def" {
			t.Errorf("sha = %v, want def", body["sha"])
		}

		if writtenSHA != "abc" {
			t.Errorf("write used sha %q, want abc", writtenSHA)
		}
		if written.Rows[0]["price"] != "12.00" {
			t.Errorf("written price = %q, want 12.00", written.Rows[0]["price"])
		}
	})

	t.Run("search filters the view", func(t *testing.T) {
		client := &stubClient{
			fetchFn: func(ctx context.Context) (*domain.Catalog, string, error) {
				return remoteCatalog(), "abc", nil
			},
		}
		router := setupTestRouter(client)
		cookies := login(t, router)

		w := doJSON(router, "GET", "/api/v1/catalog?q=electr", "", cookies)
		view := decodeBody(t, w)

		rows, _ := view["rows"].([]interface{})
		if len(rows) != 1 {
			t.Fatalf("len(rows) = %d, want 1", len(rows))
		}
		if view["visible_rows"] != float64(1) || view["total_rows"] != float64(2) {
			t.Errorf("visible/total = %v/%v, want 1/2", view["visible_rows"], view["total_rows"])
		}
	})

	t.Run("fetch failure reports unavailable", func(t *testing.T) {
		client := &stubClient{
			fetchFn: func(ctx context.Context) (*domain.Catalog, string, error) {
				return nil, "", fmt.Errorf("%w: status 404", domain.ErrCatalogUnavailable)
			},
		}
		router := setupTestRouter(client)
		cookies := login(t, router)

		w := doJSON(router, "GET", "/api/v1/catalog", "", cookies)
		if w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
		}
		view := decodeBody(t, w)
		if view["state"] != "unavailable" {
			t.Errorf("state = %v, want unavailable", view["state"])
		}
	})

	t.Run("write conflict returns 409 and keeps the editor open", func(t *testing.T) {
		client := &stubClient{
			fetchFn: func(ctx context.Context) (*domain.Catalog, string, error) {
				return remoteCatalog(), "abc", nil
			},
			writeFn: func(ctx context.Context, catalog *domain.Catalog, sha, message string) (string, error) {
				return "", fmt.Errorf("%w (status 409)", domain.ErrWriteConflict)
			},
		}
		router := setupTestRouter(client)
		cookies := login(t, router)

		doJSON(router, "GET", "/api/v1/catalog", "", cookies)

		w := doJSON(router, "POST", "/api/v1/catalog/save", `{"message":"msg"}`, cookies)
		if w.Code != http.StatusConflict {
			t.Fatalf("save status = %d, want %d", w.Code, http.StatusConflict)
		}

		// The flow survives the conflict; the view still has the rows.
		w = doJSON(router, "GET", "/api/v1/catalog", "", cookies)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		view := decodeBody(t, w)
		if view["state"] != "save_failed" {
			t.Errorf("state = %v, want save_failed", view["state"])
		}
		if view["total_rows"] != float64(2) {
			t.Errorf("total_rows = %v, want 2", view["total_rows"])
		}
	})
}

// uploadCSVRequest builds a multipart upload request for the given CSV body.
func uploadCSVRequest(t *testing.T, csvBody string, cookies []*http.Cookie) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "products.csv")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(csvBody)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	writer.Close()

	req, _ := http.NewRequest("POST", "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

// TestUploadFlow exercises the bulk upload tab end to end
func TestUploadFlow(t *testing.T) {
	t.Run("valid file previews then commits", func(t *testing.T) {
		var writtenSHA string
		var written *domain.Catalog

		client := &stubClient{
			fetchFn: func(ctx context.Context) (*domain.Catalog, string, error) {
				return remoteCatalog(), "current-sha", nil
			},
			writeFn: func(ctx context.Context, catalog *domain.Catalog, sha, message string) (string, error) {
				writtenSHA = sha
				written = catalog
				return "new-sha", nil
			},
		}
		router := setupTestRouter(client)
		cookies := login(t, router)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadCSVRequest(t, "barcode,name,price\n111,New Item,3.50\n", cookies))
		if w.Code != http.StatusOK {
			t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
		}
		view := decodeBody(t, w)
		if view["state"] != "ready" {
			t.Errorf("state = %v, want ready", view["state"])
		}
		if view["total_rows"] != float64(1) {
			t.Errorf("total_rows = %v, want 1", view["total_rows"])
		}

		w2 := doJSON(router, "POST", "/api/v1/upload/commit", `{"message":""}`, cookies)
		if w2.Code != http.StatusOK {
			t.Fatalf("commit status = %d, body = %s", w2.Code, w2.Body.String())
		}
		if body := decodeBody(t, w2); body["sha"] != "new-sha" {
			t.Errorf("sha = %v, want new-sha", body["sha"])
		}

		if writtenSHA != "current-sha" {
			t.Errorf("write used sha %q, want current-sha", writtenSHA)
		}
		if len(written.Rows) != 1 || written.Rows[0]["barcode"] != "111" {
			t.Errorf("written rows = %v, want the uploaded file's rows", written.Rows)
		}
	})

	t.Run("preview caps at ten rows", func(t *testing.T) {
		client := &stubClient{}
		router := setupTestRouter(client)
		cookies := login(t, router)

		var sb strings.Builder
		sb.WriteString("barcode,name,price\n")
		for i := 0; i < 15; i++ {
			fmt.Fprintf(&sb, "%d,Item %d,1.00\n", i, i)
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadCSVRequest(t, sb.String(), cookies))
		view := decodeBody(t, w)

		preview, _ := view["preview"].([]interface{})
		if len(preview) != 10 {
			t.Errorf("len(preview) = %d, want 10", len(preview))
		}
		if view["total_rows"] != float64(15) {
			t.Errorf("total_rows = %v, want 15", view["total_rows"])
		}
	})

	t.Run("missing required column is rejected and commit refuses", func(t *testing.T) {
		client := &stubClient{}
		router := setupTestRouter(client)
		cookies := login(t, router)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadCSVRequest(t, "barcode,name\n111,New Item\n", cookies))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("upload status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		view := decodeBody(t, w)
		if view["state"] != "rejected" {
			t.Errorf("state = %v, want rejected", view["state"])
		}
		missing, _ := view["missing_columns"].([]interface{})
		if len(missing) != 1 || missing[0] != "price" {
			t.Errorf("missing_columns = %v, want [price]", missing)
		}

		w2 := doJSON(router, "POST", "/api/v1/upload/commit", `{"message":"msg"}`, cookies)
		if w2.Code != http.StatusBadRequest {
			t.Errorf("commit status = %d, want %d", w2.Code, http.StatusBadRequest)
		}
		if client.writeCalls != 0 {
			t.Errorf("writeCalls = %d, want 0", client.writeCalls)
		}
	})

	t.Run("malformed CSV is rejected", func(t *testing.T) {
		router := setupTestRouter(&stubClient{})
		cookies := login(t, router)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadCSVRequest(t, "barcode,name\n123,\"broken\n", cookies))
		if w.Code != http.StatusBadRequest {
			t.Errorf("upload status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("token fetch failure aborts the commit without writing", func(t *testing.T) {
		client := &stubClient{
			fetchFn: func(ctx context.Context) (*domain.Catalog, string, error) {
				return nil, "", fmt.Errorf("%w: status 500", domain.ErrCatalogUnavailable)
			},
		}
		router := setupTestRouter(client)
		cookies := login(t, router)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, uploadCSVRequest(t, "barcode,name,price\n111,New Item,3.50\n", cookies))
		if w.Code != http.StatusOK {
			t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
		}

		w2 := doJSON(router, "POST", "/api/v1/upload/commit", `{"message":"msg"}`, cookies)
		if w2.Code != http.StatusBadGateway {
			t.Errorf("commit status = %d, want %d", w2.Code, http.StatusBadGateway)
		}
		if client.writeCalls != 0 {
			t.Errorf("writeCalls = %d, want 0", client.writeCalls)
		}
	})
}

// TestServeUI checks the embedded single page is served at the root
func TestServeUI(t *testing.T) {
	router := setupTestRouter(&stubClient{})

	req, _ := http.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "Price Checker Admin") {
		t.Errorf("page body does not contain the app title")
	}
}
