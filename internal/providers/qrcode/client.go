// Package qrcode wraps the remote services that decode an uploaded QR code
// and render its content back into a clean QR image.
package qrcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/sdapi"
)

// templateImage is the style template the decode service expects alongside
// the uploaded code.
const templateImage = "https://img.2weima.com/qr_template/2021/6/26/8857784941a0f2d2a024044f414c69f9.jpg"

var ErrEmptyContent = errors.New("qrcode: decoded content is empty")

type Options struct {
	DecodeURL   string
	DecodeToken string
	RenderURL   string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

type Client struct {
	http      *resty.Client
	decodeURL string
	token     string
	renderURL string
	logger    zerolog.Logger
}

type decodeResponse struct {
	Content string `json:"qr_content"`
}

func NewClient(opts Options) *Client {
	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rc.SetTimeout(timeout).SetHeader("User-Agent", "time-sea-plus/1.0")
	renderURL := strings.TrimSpace(opts.RenderURL)
	if renderURL != "" && !strings.HasSuffix(renderURL, "/") {
		renderURL += "/"
	}
	return &Client{
		http:      rc,
		decodeURL: strings.TrimRight(opts.DecodeURL, "/"),
		token:     opts.DecodeToken,
		renderURL: renderURL,
		logger:    infra.Component(opts.Logger, "qrcode"),
	}
}

// Decode extracts the text encoded in a base64 QR image.
func (c *Client) Decode(ctx context.Context, imageBase64 string) (string, error) {
	if c.decodeURL == "" {
		return "", errors.New("qrcode: decode url is not configured")
	}
	var result decodeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetAuthToken(c.token).
		SetFormData(map[string]string{
			"qr_image":  templateImage,
			"qr_base64": "data:image/jpg;base64," + imageBase64,
			"qr_detype": "jie2weima",
			"qr_multi":  "one",
		}).
		SetResult(&result).
		Post(c.decodeURL + "/api/qrdecode")
	if err != nil {
		return "", fmt.Errorf("qrcode: decode request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("qrcode: decode status %d: %s", resp.StatusCode(), resp.String())
	}
	content := strings.TrimSpace(result.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	c.logger.Debug().Int("content_len", len(content)).Msg("qr code decoded")
	return content, nil
}

// Render asks the tool service to draw content as a QR image and returns
// the image as bare base64.
func (c *Client) Render(ctx context.Context, content string) (string, error) {
	if c.renderURL == "" {
		return "", errors.New("qrcode: render url is not configured")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("url", content).
		Get(c.renderURL + "qrcode")
	if err != nil {
		return "", fmt.Errorf("qrcode: render request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("qrcode: render status %d: %s", resp.StatusCode(), resp.String())
	}
	encoded := sdapi.StripDataURI(resp.String())
	if encoded == "" {
		return "", errors.New("qrcode: render returned no image")
	}
	return encoded, nil
}
