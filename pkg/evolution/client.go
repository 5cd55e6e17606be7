// Package evolution is a small client for the Evolution API WhatsApp gateway.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Webhook event names as delivered by Evolution API
const (
	EventMessagesUpsert   = "messages.upsert"
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
)

// ErrNotConfigured is returned when no base URL was given
var ErrNotConfigured = errors.New("evolution API is not configured")

// APIError is a non-2xx answer from the gateway
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("evolution API returned %d: %s", e.StatusCode, e.Body)
}

// Observer is notified after every gateway call
type Observer func(operation string, elapsed time.Duration, err error)

// Client talks to one Evolution API server with a global API key
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   Observer
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces outbound requests; perSecond <= 0 disables pacing
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithObserver registers a callback for request metrics
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a gateway client
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MessageKey identifies a WhatsApp message
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// SendResult is the answer to a send request
type SendResult struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status"`
}

// QRCode is a pairing code as returned by connect and create
type QRCode struct {
	PairingCode string `json:"pairingCode"`
	Code        string `json:"code"`
	Base64      string `json:"base64"`
	Count       int    `json:"count"`
}

// Instance describes a gateway instance
type Instance struct {
	InstanceName string `json:"instanceName"`
	InstanceID   string `json:"instanceId"`
	Status       string `json:"status"`
	State        string `json:"state"`
}

// CreateInstanceResult is the answer to instance creation
type CreateInstanceResult struct {
	Instance Instance `json:"instance"`
	Hash     string   `json:"hash"`
	QRCode   QRCode   `json:"qrcode"`
}

type webhookConfig struct {
	URL      string   `json:"url"`
	ByEvents bool     `json:"byEvents"`
	Base64   bool     `json:"base64"`
	Events   []string `json:"events"`
}

type createInstanceRequest struct {
	InstanceName string         `json:"instanceName"`
	QRCode       bool           `json:"qrcode"`
	Integration  string         `json:"integration"`
	Webhook      *webhookConfig `json:"webhook,omitempty"`
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText sends a plain text message and returns the gateway message id
func (c *Client) SendText(ctx context.Context, instance, number, text string) (*SendResult, error) {
	var out SendResult
	err := c.do(ctx, "send_text", http.MethodPost, "/message/sendText/"+url.PathEscape(instance),
		sendTextRequest{Number: number, Text: text}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateInstance registers a new instance whose events are posted to webhookURL
func (c *Client) CreateInstance(ctx context.Context, name, webhookURL string) (*CreateInstanceResult, error) {
	req := createInstanceRequest{
		InstanceName: name,
		QRCode:       true,
		Integration:  "WHATSAPP-BAILEYS",
	}
	if webhookURL != "" {
		req.Webhook = &webhookConfig{
			URL:    webhookURL,
			Base64: true,
			Events: []string{"MESSAGES_UPSERT", "CONNECTION_UPDATE", "QRCODE_UPDATED"},
		}
	}

	var out CreateInstanceResult
	if err := c.do(ctx, "create_instance", http.MethodPost, "/instance/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connect asks the gateway for a fresh pairing QR code
func (c *Client) Connect(ctx context.Context, instance string) (*QRCode, error) {
	var out QRCode
	if err := c.do(ctx, "connect", http.MethodGet, "/instance/connect/"+url.PathEscape(instance), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectionState returns the raw gateway state: open, connecting or close
func (c *Client) ConnectionState(ctx context.Context, instance string) (string, error) {
	var out struct {
		Instance Instance `json:"instance"`
	}
	err := c.do(ctx, "connection_state", http.MethodGet, "/instance/connectionState/"+url.PathEscape(instance), nil, &out)
	if err != nil {
		return "", err
	}
	return out.Instance.State, nil
}

// Logout ends the WhatsApp session of an instance
func (c *Client) Logout(ctx context.Context, instance string) error {
	return c.do(ctx, "logout", http.MethodDelete, "/instance/logout/"+url.PathEscape(instance), nil, nil)
}

// DeleteInstance removes an instance from the gateway
func (c *Client) DeleteInstance(ctx context.Context, instance string) error {
	return c.do(ctx, "delete_instance", http.MethodDelete, "/instance/delete/"+url.PathEscape(instance), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	if c.observer != nil {
		defer func() { c.observer(op, time.Since(start), err) }()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("evolution %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid %s response: %w", op, err)
	}
	return nil
}
