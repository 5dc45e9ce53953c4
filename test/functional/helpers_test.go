//go:build functional

// Package functional provides functional tests for the products API and
// its WebSocket event feed.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/productos-api/internal/config"
	"github.com/vyrodovalexey/productos-api/internal/model"
	"github.com/vyrodovalexey/productos-api/internal/server"
	"github.com/vyrodovalexey/productos-api/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost = "TEST_SERVER_HOST"
	EnvTestServerPort = "TEST_SERVER_PORT"
	EnvTestTimeout    = "TEST_TIMEOUT"
)

// Default test configuration values.
const (
	DefaultTestHost         = "localhost"
	DefaultTestPort         = 0 // 0 means auto-assign
	DefaultTestTimeout      = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
)

// TestConfig holds test configuration loaded from environment.
type TestConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// LoadTestConfig loads test configuration from environment variables.
func LoadTestConfig() *TestConfig {
	cfg := &TestConfig{
		Host:    DefaultTestHost,
		Port:    DefaultTestPort,
		Timeout: DefaultTestTimeout,
	}

	if host := os.Getenv(EnvTestServerHost); host != "" {
		cfg.Host = host
	}

	if portStr := os.Getenv(EnvTestServerPort); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}

	if timeoutStr := os.Getenv(EnvTestTimeout); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	return cfg
}

// TestServer runs the real server against a data file in a temp dir.
type TestServer struct {
	Server   *server.Server
	Store    *store.FileStore
	Config   *config.Config
	BaseURL  string
	WSURL    string
	listener net.Listener
	t        *testing.T
	mu       sync.Mutex
	started  bool
}

// ServerOption adjusts the server configuration before start.
type ServerOption func(*config.Config)

// WithStrictNotFound enables 404 answers for unknown ids.
func WithStrictNotFound() ServerOption {
	return func(c *config.Config) {
		c.StrictNotFound = true
	}
}

// NewTestServer creates a new test server instance.
func NewTestServer(t *testing.T, opts ...ServerOption) *TestServer {
	t.Helper()

	testCfg := LoadTestConfig()

	// Find an available port
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", testCfg.Host, testCfg.Port))
	if err != nil {
		t.Fatalf("Failed to find available port: %v", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port

	cfg := &config.Config{
		ServerPort:         port,
		LogLevel:           "error",
		ShutdownTimeout:    DefaultShutdownTimeout,
		MetricsEnabled:     true,
		DataFilePath:       filepath.Join(t.TempDir(), "productos.json"),
		StoreDriver:        store.DriverFile,
		CORSAllowedOrigins: "*",
		WebSocketEnabled:   true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fileStore := store.NewFileStore(cfg.DataFilePath)
	if err := fileStore.EnsureFileExists(); err != nil {
		t.Fatalf("Failed to create data file: %v", err)
	}

	return &TestServer{
		Server:   server.New(cfg, zap.NewNop(), fileStore),
		Store:    fileStore,
		Config:   cfg,
		BaseURL:  fmt.Sprintf("http://%s:%d", testCfg.Host, port),
		WSURL:    fmt.Sprintf("ws://%s:%d", testCfg.Host, port),
		listener: listener,
		t:        t,
	}
}

// Start starts the test server.
func (ts *TestServer) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return
	}

	// Close the listener we used to find the port
	ts.listener.Close()

	go func() {
		if err := ts.Server.Start(); err != nil {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	ts.waitForReady()
	ts.started = true
}

// waitForReady waits for the server to be ready to accept connections.
func (ts *TestServer) waitForReady() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ts.t.Fatalf("Server did not become ready within timeout")
		case <-ticker.C:
			resp, err := http.Get(ts.BaseURL + "/health")
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}
	}
}

// Stop stops the test server.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}

	ts.started = false
}

// ReadDataFile returns the raw contents of the server's data file.
func (ts *TestServer) ReadDataFile() string {
	ts.t.Helper()

	data, err := os.ReadFile(ts.Config.DataFilePath)
	if err != nil {
		ts.t.Fatalf("Failed to read data file: %v", err)
	}
	return string(data)
}

// HTTPClient provides a configured HTTP client for tests.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a new HTTP client for testing.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		baseURL: baseURL,
	}
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do executes an HTTP request and returns the response.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body []byte, headers map[string]string) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post performs a POST request with a raw JSON body.
func (c *HTTPClient) Post(ctx context.Context, path, body string) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, []byte(body), nil)
}

// ParseProducts decodes a JSON array of products.
func ParseProducts(body []byte) ([]model.Product, error) {
	var products []model.Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, fmt.Errorf("failed to parse products: %w", err)
	}
	return products, nil
}

// ParseErrorResponse parses an error response from bytes.
func ParseErrorResponse(body []byte) (*model.ErrorResponse, error) {
	var resp model.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse error response: %w", err)
	}
	return &resp, nil
}

// AssertStatusCode asserts that the response has the expected status code.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, string(resp.Body))
	}
}

// AssertBody asserts the trimmed response body.
func AssertBody(t *testing.T, resp *Response, expected string) {
	t.Helper()
	if got := string(bytes.TrimSpace(resp.Body)); got != expected {
		t.Errorf("Expected body %s, got %s", expected, got)
	}
}

// AssertHeader asserts that the response has the expected header value.
func AssertHeader(t *testing.T, resp *Response, key, expected string) {
	t.Helper()
	actual := resp.Headers.Get(key)
	if actual != expected {
		t.Errorf("Expected header %s to be %q, got %q", key, expected, actual)
	}
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}

// LogTestEnd logs the end of a test.
func LogTestEnd(t *testing.T, testID string) {
	t.Helper()
	t.Logf("Completed test %s", testID)
}
