// Package dropbox talks to the Dropbox HTTP API, which hosts the shared
// warranty workbook. Only the three endpoints this system needs are
// implemented: the refresh-token exchange, file download and file
// upload.
package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultAPIBase     = "https://api.dropbox.com"
	defaultContentBase = "https://content.dropboxapi.com"

	// tokenSafetyMargin renews the cached access token slightly before
	// Dropbox expires it, so an in-flight request never races expiry.
	tokenSafetyMargin = time.Minute
)

// ErrPathNotFound is returned when the requested file does not exist in
// the Dropbox folder.
var ErrPathNotFound = errors.New("dropbox: path not found")

// Credentials holds the app's long-lived Dropbox secrets. Access tokens
// are short lived and derived from the refresh token on demand.
type Credentials struct {
	AppKey       string
	AppSecret    string
	RefreshToken string
}

// Client is a minimal Dropbox API client with automatic access token
// renewal. Safe for concurrent use.
type Client struct {
	creds       Credentials
	http        *retryablehttp.Client
	logger      *log.Logger
	apiBase     string
	contentBase string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default retrying HTTP client.
func WithHTTPClient(hc *retryablehttp.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEndpoints points the client at alternative API hosts. Used by
// tests to target a local server.
func WithEndpoints(apiBase, contentBase string) Option {
	return func(c *Client) {
		if apiBase != "" {
			c.apiBase = strings.TrimRight(apiBase, "/")
		}
		if contentBase != "" {
			c.contentBase = strings.TrimRight(contentBase, "/")
		}
	}
}

// NewClient creates a Dropbox client from credentials.
func NewClient(creds Credentials, opts ...Option) *Client {
	logger := log.New(log.Writer(), "[DROPBOX] ", log.LstdFlags)

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 5
	retryClient.Logger = log.New(io.Discard, "", 0)

	c := &Client{
		creds:       creds,
		http:        retryClient,
		logger:      logger,
		apiBase:     defaultAPIBase,
		contentBase: defaultContentBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a valid access token, exchanging the refresh token when
// the cached one is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.creds.RefreshToken},
		"client_id":     {c.creds.AppKey},
		"client_secret": {c.creds.AppSecret},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/oauth2/token", []byte(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed: %s", readAPIError(resp.Body, resp.StatusCode))
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("dropbox: token response had no access_token")
	}

	c.accessToken = token.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenSafetyMargin)
	c.logger.Printf("refreshed access token, valid for %ds", token.ExpiresIn)
	return c.accessToken, nil
}

// Download fetches the file at path. A missing file yields
// ErrPathNotFound.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.contentBase+"/2/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	arg, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return nil, fmt.Errorf("encoding download arg: %w", err)
	}
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := readAPIError(resp.Body, resp.StatusCode)
		if strings.Contains(apiErr, "path/not_found") {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("downloading %s failed: %s", path, apiErr)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading download body: %w", err)
	}
	c.logger.Printf("downloaded %s (%d bytes)", path, len(data))
	return data, nil
}

// Upload writes data to path, overwriting any existing file.
func (c *Client) Upload(ctx context.Context, path string, data []byte) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.contentBase+"/2/files/upload", data)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	arg, err := json.Marshal(map[string]any{
		"path":       path,
		"mode":       "overwrite",
		"autorename": false,
	})
	if err != nil {
		return fmt.Errorf("encoding upload arg: %w", err)
	}
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("uploading %s failed: %s", path, readAPIError(resp.Body, resp.StatusCode))
	}

	c.logger.Printf("uploaded %s (%d bytes)", path, len(data))
	return nil
}

// readAPIError renders a Dropbox error response for wrapping. Bodies
// are capped, they can carry whole HTML pages on gateway errors.
func readAPIError(body io.Reader, status int) string {
	data, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(data)))
}
