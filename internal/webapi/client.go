// Package webapi is the HTTP client for the backend's session-authenticated endpoints.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

const (
	sessionCookie = "sessionid"
	csrfCookie    = "csrftoken"
	csrfHeader    = "X-CSRFToken"

	maxErrorBody = 4 << 10
)

// ErrMoodRejected is returned when the mood form is re-rendered instead of accepted
var ErrMoodRejected = errors.New("mood form was rejected")

// RequestError is a non-success HTTP response
type RequestError struct {
	Method string
	Path   string
	Status int
	// Message is the server's error text when it sent one
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Config configures a Client
type Config struct {
	BaseURL *url.URL
	// SessionID and CSRFToken seed the cookie jar the way a signed-in browser has them
	SessionID string
	CSRFToken string
	// Token is sent as "Authorization: <TokenScheme> <Token>"
	Token       string
	TokenScheme string
	// Timeout applies to catalog requests only; message sends are never timed out
	Timeout time.Duration
}

// Client talks to the backend with the user's session cookies and CSRF token
type Client struct {
	base        *url.URL
	http        *http.Client
	jar         http.CookieJar
	csrfToken   string
	token       string
	tokenScheme string
	timeout     time.Duration
	logger      *zap.Logger
}

var (
	_ repositories.ConversationAPI = (*Client)(nil)
	_ repositories.ComfortMailer   = (*Client)(nil)
	_ repositories.MoodRecorder    = (*Client)(nil)
	_ repositories.VoiceCatalog    = (*Client)(nil)
)

// New creates a client with a cookie jar seeded from cfg
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == nil {
		return nil, errors.New("webapi base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	var cookies []*http.Cookie
	if cfg.SessionID != "" {
		cookies = append(cookies, &http.Cookie{Name: sessionCookie, Value: cfg.SessionID, Path: "/"})
	}
	if cfg.CSRFToken != "" {
		cookies = append(cookies, &http.Cookie{Name: csrfCookie, Value: cfg.CSRFToken, Path: "/"})
	}
	if len(cookies) > 0 {
		jar.SetCookies(cfg.BaseURL, cookies)
	}

	scheme := cfg.TokenScheme
	if scheme == "" {
		scheme = "Token"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		base:        cfg.BaseURL,
		http:        &http.Client{Jar: jar},
		jar:         jar,
		csrfToken:   cfg.CSRFToken,
		token:       cfg.Token,
		tokenScheme: scheme,
		timeout:     timeout,
		logger:      logger.With(zap.String("component", "webapi")),
	}, nil
}

// HTTPClient returns the cookie-aware client, e.g. for downloading voice files
func (c *Client) HTTPClient() *http.Client { return c.http }

// Jar returns the session cookie jar shared with the websocket handshake
func (c *Client) Jar() http.CookieJar { return c.jar }

// BaseURL returns the backend origin
func (c *Client) BaseURL() *url.URL { return c.base }

// SetCSRFToken overrides the token, typically with the one embedded in a fetched page
func (c *Client) SetCSRFToken(token string) {
	if token != "" {
		c.csrfToken = token
	}
}

// CSRFToken returns the configured token or the csrftoken cookie the server set
func (c *Client) CSRFToken() string {
	if c.csrfToken != "" {
		return c.csrfToken
	}
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == csrfCookie {
			return ck.Value
		}
	}
	return ""
}

// Header returns the auth headers for requests outside this client, such as the websocket handshake
func (c *Client) Header() http.Header {
	h := http.Header{}
	if token := c.CSRFToken(); token != "" {
		h.Set(csrfHeader, token)
	}
	if c.token != "" {
		h.Set("Authorization", c.tokenScheme+" "+c.token)
	}
	h.Set("Origin", c.base.Scheme+"://"+c.base.Host)
	return h
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.Header() {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.base.String())
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body, "application/json")
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newRequestError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: invalid response: %w", path, err)
	}
	return nil
}

func newRequestError(resp *http.Response) *RequestError {
	rerr := &RequestError{
		Method: resp.Request.Method,
		Path:   resp.Request.URL.Path,
		Status: resp.StatusCode,
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			rerr.Message = payload.Error
		case payload.Detail != "":
			rerr.Message = payload.Detail
		default:
			rerr.Message = payload.Message
		}
	}
	return rerr
}

type sendMessageRequest struct {
	Content string `json:"content"`
	VoiceID string `json:"voice_id"`
}

// SendMessage posts a message through the request/response endpoint and returns both stored messages.
// The request has no timeout of its own.
func (c *Client) SendMessage(ctx context.Context, conversationID, content, voiceID string) (*repositories.SendMessageResult, error) {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/send_message/"

	resp, err := c.postJSON(ctx, path, sendMessageRequest{Content: content, VoiceID: voiceID})
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newRequestError(resp)
	}

	var result repositories.SendMessageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("POST %s: invalid response: %w", path, err)
	}

	c.logger.Debug("Message sent over HTTP",
		zap.String("conversationID", conversationID),
		zap.Bool("voice", result.VoiceFile != ""))
	return &result, nil
}

// SendComfortEmail asks the backend to send a comfort email now. The server reports
// failures in the JSON body, so the body is decoded whatever the status.
func (c *Client) SendComfortEmail(ctx context.Context) (*repositories.ComfortEmailResult, error) {
	const path = "/agents/comfort-email/send/"

	resp, err := c.postJSON(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result repositories.ComfortEmailResult
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &RequestError{Method: http.MethodPost, Path: path, Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("POST %s: invalid response: %w", path, err)
	}
	return &result, nil
}

// RecordMood submits the mood form. The backend redirects on success and re-renders the form otherwise.
func (c *Client) RecordMood(ctx context.Context, mood entities.Mood, notes string) error {
	const path = "/accounts/mood/record/"

	form := url.Values{}
	form.Set("mood", string(mood))
	form.Set("notes", notes)
	form.Set("csrfmiddlewaretoken", c.CSRFToken())

	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/html")

	noRedirect := *c.http
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := noRedirect.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode <= 399:
		c.logger.Debug("Mood recorded", zap.String("mood", string(mood)), zap.String("location", resp.Header.Get("Location")))
		return nil
	case resp.StatusCode == http.StatusOK:
		return ErrMoodRejected
	default:
		return &RequestError{Method: http.MethodPost, Path: path, Status: resp.StatusCode}
	}
}

// VoiceProfiles lists the available voices. Both a plain array and a paginated body are accepted.
func (c *Client) VoiceProfiles(ctx context.Context) ([]entities.VoiceProfile, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/voice-profiles/", &raw); err != nil {
		return nil, err
	}

	var profiles []entities.VoiceProfile
	if err := json.Unmarshal(raw, &profiles); err == nil {
		return profiles, nil
	}

	var page struct {
		Results []entities.VoiceProfile `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("invalid voice profile list: %w", err)
	}
	return page.Results, nil
}

// VoiceSample returns the sample audio URL of a profile
func (c *Client) VoiceSample(ctx context.Context, profileID int) (string, error) {
	var out struct {
		SampleURL string `json:"sample_url"`
	}
	if err := c.getJSON(ctx, "/api/voice-profiles/"+strconv.Itoa(profileID)+"/sample/", &out); err != nil {
		return "", err
	}
	return out.SampleURL, nil
}

// FetchPage downloads a server-rendered page, e.g. /conversations/42/ or /dashboard/
func (c *Client) FetchPage(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newRequestError(resp)
	}
	return io.ReadAll(resp.Body)
}
