// Package inference calls a hosted text to image model.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	DefaultURL        = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-2"
	DefaultTimeout    = 60 * time.Second
	DefaultRetryDelay = 5 * time.Second
	DefaultAttempts   = 3

	defaultContentType = "image/png"
	maxImageBytes      = 20 << 20
)

var Logger = zerolog.Nop()

func SetLogger(logger zerolog.Logger) {
	Logger = logger
}

// Error is a non 2xx answer from the inference API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference API returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether another attempt can succeed.
func (e *Error) Retryable() bool {
	return e.StatusCode == http.StatusServiceUnavailable ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Image is a generated picture as returned by the API.
type Image struct {
	Data        []byte
	ContentType string
}

// DataURI renders the image for an <img src> attribute.
func (i *Image) DataURI() string {
	contentType := i.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	RetryDelay time.Duration
	Attempts   int
	HTTPClient *http.Client
}

// Generator produces one image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Image, error)
}

type Client struct {
	url        string
	apiKey     string
	timeout    time.Duration
	retryDelay time.Duration
	attempts   int
	httpClient *http.Client
}

var _ Generator = (*Client)(nil)

// NewClient fills unset fields with the defaults.
func NewClient(config Config) *Client {
	c := &Client{
		url:        config.URL,
		apiKey:     config.APIKey,
		timeout:    config.Timeout,
		retryDelay: config.RetryDelay,
		attempts:   config.Attempts,
		httpClient: config.HTTPClient,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.attempts <= 0 {
		c.attempts = DefaultAttempts
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.apiKey == "" {
		Logger.Warn().Msg("Inference API key is not set, requests will be anonymous")
	}
	return c
}

type generateRequest struct {
	Inputs string `json:"inputs"`
}

/*
Generate posts the prompt and returns the image bytes.

Each attempt runs under its own timeout. A 503 answer waits the retry delay
before the next attempt, other 5xx answers and transport failures retry
immediately, 4xx answers fail at once.

Returns:
- *Image: the generated image
- error: *Error for API errors, or the last transport error
*/
func (c *Client) Generate(ctx context.Context, prompt string) (*Image, error) {
	body, err := json.Marshal(generateRequest{Inputs: prompt})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		image, err := c.attempt(ctx, body)
		if err == nil {
			return image, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *Error
		isAPIErr := errors.As(err, &apiErr)
		// 4xx other than 429 is returned at once. 5xx, 429 and transport errors consume
		// an attempt. DESIGN.md decision 13 records the change from retrying every error.
		if isAPIErr && !apiErr.Retryable() {
			return nil, err
		}

		Logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("attempts", c.attempts).
			Msg("Image generation attempt failed")

		if attempt == c.attempts {
			break
		}
		if isAPIErr && apiErr.StatusCode == http.StatusServiceUnavailable {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, body []byte) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png, image/*")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Failed to close response body")
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp, data)}
	}
	// the API answers 200 with a JSON body while the model is warming up
	if contentType == "application/json" {
		return nil, &Error{StatusCode: http.StatusBadGateway, Message: errorMessage(resp, data)}
	}
	if len(data) == 0 {
		return nil, &Error{StatusCode: http.StatusBadGateway, Message: "empty image"}
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = defaultContentType
	}
	return &Image{Data: data, ContentType: contentType}, nil
}

// errorMessage reads {"error": "..."} or {"error": ["...", ...]}.
func errorMessage(resp *http.Response, body []byte) string {
	if gjson.ValidBytes(body) {
		field := gjson.GetBytes(body, "error")
		switch {
		case field.IsArray():
			parts := make([]string, 0)
			for _, item := range field.Array() {
				parts = append(parts, item.String())
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		case field.Exists() && field.String() != "":
			return field.String()
		}
	}
	return fmt.Sprintf("Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(header)
	}
	return mt
}
