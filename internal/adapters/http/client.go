package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ohmynofan/blum-farming-bot/internal/config"
	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
	"github.com/ohmynofan/blum-farming-bot/internal/platform/logger"
	"github.com/ohmynofan/blum-farming-bot/pkg/utils"
)

// HTTPError is returned for every non-2xx response. Body holds the raw
// response so callers can inspect service-specific error messages.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP Error %d: %s %s", e.StatusCode, e.Status, utils.TruncateForLog(strings.TrimSpace(string(e.Body)), 200))
}

// AuthorizeFunc prepares an outgoing request, typically by attaching a
// bearer credential.
type AuthorizeFunc func(ctx context.Context, req *http.Request) error

type FetchOptions struct {
	Method            string
	Body              interface{}
	RawBody           []byte
	AdditionalHeaders map[string]string
	// Anonymous skips the Authorize hook.
	Anonymous bool
}

type APIClient struct {
	Proxy      string
	UserAgent  string
	Service    config.Service
	HTTPClient *http.Client
	Authorize  AuthorizeFunc
	Log        *logger.ClassLogger
}

func NewAPIClient(service config.Service, proxy, cookieFile string, session *model.Session) (*APIClient, error) {
	transport, err := newTransport(proxy)
	if err != nil {
		return nil, err
	}

	jar, err := newFileCookieJar(cookieFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cookie jar: %w", err)
	}

	apiClient := &APIClient{
		Proxy:     proxy,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36 Edg/128.0.0.0",
		Service:   service,
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			Jar:       jar,
		},
	}
	apiClient.Log = logger.NewLogger(apiClient, session)

	return apiClient, nil
}

func (c *APIClient) ClearCookies() error {
	if jar, ok := c.HTTPClient.Jar.(*fileCookieJar); ok {
		return jar.Clear()
	}
	return nil
}

func (c *APIClient) generateHeaders() map[string]string {
	headers := map[string]string{
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    "en-US,en;q=0.9",
		"Content-Type":       "application/json",
		"User-Agent":         c.UserAgent,
		"Lang":               "en",
		"Priority":           "u=1, i",
		"Sec-Ch-Ua":          "\"Chromium\";v=\"128\", \"Not;A=Brand\";v=\"24\", \"Microsoft Edge\";v=\"128\", \"Microsoft Edge WebView2\";v=\"128\"",
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": "\"Windows\"",
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-site",
	}
	if c.Service.Origin != "" {
		headers["Origin"] = c.Service.Origin
	}
	if c.Service.Referer != "" {
		headers["Referer"] = c.Service.Referer
	}
	return headers
}

// Fetch sends a request and, on a 2xx response, decodes the JSON body into
// out when out is non-nil. Non-2xx responses return *HTTPError.
func (c *APIClient) Fetch(ctx context.Context, endpoint string, opts *FetchOptions, out interface{}) error {
	if opts == nil {
		opts = &FetchOptions{}
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	if opts.RawBody != nil && opts.Body != nil {
		return fmt.Errorf("cannot specify both Body and RawBody")
	}

	var bodyBytes []byte
	hasBody := opts.RawBody != nil || (method != http.MethodGet && opts.Body != nil)
	if hasBody {
		if opts.RawBody != nil {
			bodyBytes = opts.RawBody
		} else {
			encoded, err := json.Marshal(opts.Body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyBytes = encoded
		}
	}

	var reqBody io.Reader
	if hasBody {
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.generateHeaders() {
		req.Header.Set(key, value)
	}
	for key, value := range opts.AdditionalHeaders {
		req.Header.Set(key, value)
	}
	if !hasBody {
		req.Header.Del("Content-Type")
	}

	if !opts.Anonymous && c.Authorize != nil {
		if err := c.Authorize(ctx, req); err != nil {
			return fmt.Errorf("authorize %s %s: %w", method, endpoint, err)
		}
	}

	if c.Log != nil {
		if hasBody {
			c.Log.JustLog(fmt.Sprintf("%s %s\nBody:\n%s", method, endpoint, utils.BeautifyJSON(bodyBytes)))
		} else {
			c.Log.JustLog(fmt.Sprintf("%s %s", method, endpoint))
		}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer res.Body.Close()

	resBodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if c.Log != nil {
		c.Log.JustLog(fmt.Sprintf("Response %d:\n%s", res.StatusCode, utils.BeautifyJSON(resBodyBytes)))
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: res.StatusCode,
			Status:     res.Status,
			Body:       resBodyBytes,
		}
	}

	if out == nil || len(bytes.TrimSpace(resBodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resBodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}
