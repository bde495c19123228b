// Package remote holds HTTP clients for the captioning and translation
// services the analysis pipeline depends on.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const TimeOutSeconds = 30

// ErrBadResponse is returned when a service answers with a non-2xx status or
// a body missing the expected field.
var ErrBadResponse = errors.New("unexpected response from remote service")

func newClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = TimeOutSeconds * time.Second
	}
	return resty.New().SetTimeout(timeout)
}

type captionResponse struct {
	Description string `json:"description"`
}

// CaptionClient posts an encoded image as multipart field "image" and reads
// back {"description": "..."}.
type CaptionClient struct {
	url    string
	client *resty.Client
}

func NewCaptionClient(url string, timeout time.Duration) *CaptionClient {
	return &CaptionClient{url: url, client: newClient(timeout)}
}

func (c *CaptionClient) Caption(ctx context.Context, image []byte) (string, error) {
	var body captionResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("image", "upload", bytes.NewReader(image)).
		SetResult(&body).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("caption request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: caption service returned %s: %s", ErrBadResponse, resp.Status(), resp.String())
	}
	if strings.TrimSpace(body.Description) == "" {
		return "", fmt.Errorf("%w: caption service returned no description", ErrBadResponse)
	}
	return body.Description, nil
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// TranslateClient talks to a LibreTranslate compatible endpoint.
type TranslateClient struct {
	url    string
	apiKey string
	client *resty.Client
}

func NewTranslateClient(url, apiKey string, timeout time.Duration) *TranslateClient {
	return &TranslateClient{url: url, apiKey: apiKey, client: newClient(timeout)}
}

func (c *TranslateClient) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	var body translateResponse
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(translateRequest{Q: text, Source: "auto", Target: target, Format: "text"}).
		SetResult(&body)
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := req.Post(c.url)
	if err != nil {
		return "", fmt.Errorf("translate request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: translate service returned %s: %s", ErrBadResponse, resp.Status(), resp.String())
	}
	if body.TranslatedText == "" {
		return "", fmt.Errorf("%w: translate service returned no text", ErrBadResponse)
	}
	return body.TranslatedText, nil
}
