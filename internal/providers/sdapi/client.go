// Package sdapi talks to a Stable Diffusion WebUI instance.
package sdapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra/sdconfig"
)

const txt2imgPath = "/sdapi/v1/txt2img"

// Options configures the client.
type Options struct {
	Config         sdconfig.Provider
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client posts txt2img requests. The backend URL and credentials are read
// from the config provider on every call so operator changes apply without
// a restart.
type Client struct {
	config     sdconfig.Provider
	httpClient *http.Client
	logger     *infra.Logger
	timeout    time.Duration
}

type txt2imgResponse struct {
	Images *[]string `json:"images"`
	Info   string    `json:"info"`
}

// NewClient constructs a client with injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("sdapi: config provider is required")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	return &Client{config: opts.Config, httpClient: httpClient, logger: logger, timeout: timeout}, nil
}

// Generate performs one txt2img call. It never retries.
func (c *Client) Generate(ctx context.Context, req *TxtToImageRequest) (GeneratedImages, error) {
	if err := req.Validate(); err != nil {
		return GeneratedImages{}, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	settings, err := c.config.Get(ctx)
	if err != nil {
		return GeneratedImages{}, fmt.Errorf("%w: load config: %v", domain.ErrGeneration, err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return GeneratedImages{}, fmt.Errorf("%w: encode request: %v", domain.ErrGeneration, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := strings.TrimRight(settings.URL, "/") + txt2imgPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return GeneratedImages{}, fmt.Errorf("%w: build request: %v", domain.ErrGeneration, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if settings.Username != "" || settings.Password != "" {
		httpReq.SetBasicAuth(settings.Username, settings.Password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return GeneratedImages{}, fmt.Errorf("%w: http request: %v", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return GeneratedImages{}, fmt.Errorf("%w: read response: %v", domain.ErrGeneration, err)
	}
	if resp.StatusCode >= 300 {
		return GeneratedImages{}, fmt.Errorf("%w: status %d: %s", domain.ErrGeneration, resp.StatusCode, truncate(raw, 256))
	}

	var decoded txt2imgResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return GeneratedImages{}, fmt.Errorf("%w: decode response: %v", domain.ErrGeneration, err)
	}
	if decoded.Images == nil {
		return GeneratedImages{}, fmt.Errorf("%w: response has no images field", domain.ErrGeneration)
	}
	if len(*decoded.Images) == 0 || (*decoded.Images)[0] == "" {
		return GeneratedImages{}, fmt.Errorf("%w: response has no images", domain.ErrGeneration)
	}

	images := newGeneratedImages(*decoded.Images)
	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("images", len(*decoded.Images)).
		Int("controlnet_args", len(req.ControlNetArgs())).
		Dur("elapsed", time.Since(start)).
		Msg("sdapi: txt2img completed")
	return images, nil
}

func truncate(raw []byte, n int) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
