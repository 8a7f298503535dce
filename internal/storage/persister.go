// Package storage moves generated images from the backend into durable
// storage and reports the public path clients use to fetch them.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
)

// Uploader copies a local file to storage and returns its full URL.
type Uploader interface {
	Upload(ctx context.Context, category, localPath, filename string) (string, error)
}

type PersisterOptions struct {
	Uploader        Uploader
	TransientDir    string
	DeleteTransient bool
	Logger          zerolog.Logger
}

// Persister decodes a base64 image, stages it as a PNG in the transient
// directory, and uploads it under a fresh random name.
type Persister struct {
	uploader        Uploader
	transientDir    string
	deleteTransient bool
	logger          zerolog.Logger
	newName         func() string
}

func NewPersister(opts PersisterOptions) (*Persister, error) {
	if opts.Uploader == nil {
		return nil, errors.New("storage: uploader is required")
	}
	dir := strings.TrimSpace(opts.TransientDir)
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure transient dir: %w", err)
	}
	return &Persister{
		uploader:        opts.Uploader,
		transientDir:    dir,
		deleteTransient: opts.DeleteTransient,
		logger:          infra.Component(opts.Logger, "persister"),
		newName:         func() string { return uuid.NewString() + ".png" },
	}, nil
}

// Persist stores one image and returns its public path, "/<category>/<file>".
func (p *Persister) Persist(ctx context.Context, encoded, category string) (string, error) {
	data, err := decodeBase64(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: decode base64: %v", domain.ErrPersist, err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode image: %v", domain.ErrPersist, err)
	}

	filename := p.newName()
	localPath := filepath.Join(p.transientDir, filename)
	if err := writePNG(localPath, img); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersist, err)
	}
	if p.deleteTransient {
		defer func() {
			if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				p.logger.Warn().Err(err).Str("path", localPath).Msg("remove transient file")
			}
		}()
	}

	fullURL, err := p.uploader.Upload(ctx, category, localPath, filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}
	path, err := PublicPath(fullURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}
	p.logger.Debug().Str("source_format", format).Str("path", path).Msg("artifact persisted")
	return path, nil
}

// PublicPath keeps the last two path segments of an uploaded URL.
func PublicPath(fullURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(fullURL))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", fullURL, err)
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) < 2 {
		return "", fmt.Errorf("url %q has fewer than two path segments", fullURL)
	}
	return "/" + strings.Join(segments[len(segments)-2:], "/"), nil
}

func decodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if _, after, found := strings.Cut(encoded, ","); found {
		encoded = after
	}
	if encoded == "" {
		return nil, errors.New("empty payload")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func writePNG(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
