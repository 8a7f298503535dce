// Package gallery samples a random published example from a public model
// gallery and extracts the generation parameters it was made with.
package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
)

const (
	pageSize       = 30
	nextDataScript = "__NEXT_DATA__"
)

var (
	ErrNoListings = errors.New("gallery: listing returned no entries")
	ErrNoScript   = errors.New("gallery: __NEXT_DATA__ script not found")
	ErrNoImages   = errors.New("gallery: example has no images")
	ErrIncomplete = errors.New("gallery: example is missing generation parameters")
)

// Example is the parameter set of one published image.
type Example struct {
	Seed           int64
	CFGScale       float64
	Prompt         string
	NegativePrompt string
	Sampler        string
	Steps          int
	Checkpoint     string
	Width          int
	Height         int
}

type Options struct {
	ListURL      string
	DetailURL    string
	CollectionID string
	MaxPage      int
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
	// IntN returns a value in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

type Client struct {
	http         *resty.Client
	listURL      string
	detailURL    string
	collectionID string
	maxPage      int
	intN         func(n int) int
	logger       zerolog.Logger
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
	maxPage := opts.MaxPage
	if maxPage <= 0 {
		maxPage = 1
	}
	intN := opts.IntN
	if intN == nil {
		intN = rand.Intn
	}
	return &Client{
		http:         rc,
		listURL:      opts.ListURL,
		detailURL:    opts.DetailURL,
		collectionID: opts.CollectionID,
		maxPage:      maxPage,
		intN:         intN,
		logger:       infra.Component(opts.Logger, "gallery"),
	}
}

type listRequest struct {
	CID      string   `json:"cid"`
	Keyword  string   `json:"keyword"`
	Limit    int      `json:"limit"`
	Models   []string `json:"models"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
	Sort     int      `json:"sort"`
	TagID    string   `json:"tagId"`
	Time     string   `json:"time"`
	Types    []string `json:"types"`
}

type listResponse struct {
	Data struct {
		Data []struct {
			UUID string `json:"uuid"`
		} `json:"data"`
	} `json:"data"`
}

// RandomExample picks a random page, a random entry on it, and a random
// image of that entry.
func (c *Client) RandomExample(ctx context.Context) (Example, error) {
	id, err := c.randomEntry(ctx)
	if err != nil {
		return Example{}, err
	}
	resp, err := c.http.R().SetContext(ctx).Get(c.detailURL + id)
	if err != nil {
		return Example{}, fmt.Errorf("gallery: detail request: %w", err)
	}
	if resp.IsError() {
		return Example{}, fmt.Errorf("gallery: detail status %d", resp.StatusCode())
	}
	example, err := c.exampleFromPage(resp.Body())
	if err != nil {
		return Example{}, err
	}
	c.logger.Debug().Str("entry", id).Int64("seed", example.Seed).Msg("gallery example sampled")
	return example, nil
}

func (c *Client) randomEntry(ctx context.Context) (string, error) {
	body := listRequest{
		CID:      c.collectionID,
		Limit:    pageSize,
		Models:   []string{},
		Page:     1 + c.intN(c.maxPage),
		PageSize: pageSize,
		Types:    []string{},
	}
	var result listResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result).
		Post(c.listURL)
	if err != nil {
		return "", fmt.Errorf("gallery: list request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gallery: list status %d", resp.StatusCode())
	}
	var ids []string
	for _, entry := range result.Data.Data {
		if id := strings.TrimSpace(entry.UUID); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", ErrNoListings
	}
	return ids[c.intN(len(ids))], nil
}

type nextData struct {
	Props struct {
		PageProps struct {
			ModelData struct {
				Versions []struct {
					ImageGroup struct {
						Images []imageItem `json:"images"`
					} `json:"imageGroup"`
				} `json:"versions"`
			} `json:"modelData"`
		} `json:"pageProps"`
	} `json:"props"`
}

type imageItem struct {
	Width        flexNumber    `json:"width"`
	Height       flexNumber    `json:"height"`
	GenerateInfo *generateInfo `json:"generateInfo"`
}

type generateInfo struct {
	Seed              flexNumber `json:"seed"`
	CFGScale          flexNumber `json:"cfgScale"`
	NegativePrompt    string     `json:"negativePrompt"`
	Prompt            string     `json:"prompt"`
	SamplingMethod    string     `json:"samplingMethod"`
	SamplingStep      flexNumber `json:"samplingStep"`
	OriginalModelName string     `json:"originalModelName"`
}

func (c *Client) exampleFromPage(page []byte) (Example, error) {
	script, err := findScript(page, nextDataScript)
	if err != nil {
		return Example{}, err
	}
	var data nextData
	if err := json.Unmarshal([]byte(script), &data); err != nil {
		return Example{}, fmt.Errorf("gallery: decode page data: %w", err)
	}
	versions := data.Props.PageProps.ModelData.Versions
	if len(versions) == 0 || len(versions[0].ImageGroup.Images) == 0 {
		return Example{}, ErrNoImages
	}
	images := versions[0].ImageGroup.Images
	return images[c.intN(len(images))].toExample()
}

func (item imageItem) toExample() (Example, error) {
	info := item.GenerateInfo
	if info == nil {
		return Example{}, fmt.Errorf("%w: generateInfo", ErrIncomplete)
	}
	ex := Example{
		Seed:           int64(info.Seed.value),
		CFGScale:       info.CFGScale.value,
		Prompt:         strings.TrimSpace(info.Prompt),
		NegativePrompt: info.NegativePrompt,
		Sampler:        strings.TrimSpace(info.SamplingMethod),
		Steps:          int(info.SamplingStep.value),
		Checkpoint:     strings.TrimSpace(info.OriginalModelName),
		Width:          int(item.Width.value),
		Height:         int(item.Height.value),
	}
	var missing []string
	if !info.Seed.set {
		missing = append(missing, "seed")
	}
	if !info.CFGScale.set {
		missing = append(missing, "cfgScale")
	}
	if ex.Prompt == "" {
		missing = append(missing, "prompt")
	}
	if ex.Sampler == "" {
		missing = append(missing, "samplingMethod")
	}
	if ex.Steps <= 0 {
		missing = append(missing, "samplingStep")
	}
	if ex.Width <= 0 || ex.Height <= 0 {
		missing = append(missing, "size")
	}
	if len(missing) > 0 {
		return Example{}, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return ex, nil
}

// findScript returns the text of the <script> element with the given id.
func findScript(page []byte, id string) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("gallery: parse page: %w", err)
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, attr := range n.Attr {
				if attr.Key == "id" && attr.Val == id {
					found = n
					return
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	if found == nil {
		return "", ErrNoScript
	}
	var sb strings.Builder
	for child := found.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrNoScript
	}
	return sb.String(), nil
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber struct {
	value float64
	set   bool
}

func (f *flexNumber) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return fmt.Errorf("gallery: not a number: %s", raw)
	}
	f.value, f.set = v, true
	return nil
}
