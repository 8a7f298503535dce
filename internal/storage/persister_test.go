package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
)

type recordingUploader struct {
	calls []uploadCall
	err   error
}

type uploadCall struct {
	category, localPath, filename string
	existed                       bool
}

func (u *recordingUploader) Upload(ctx context.Context, category, localPath, filename string) (string, error) {
	_, statErr := os.Stat(localPath)
	u.calls = append(u.calls, uploadCall{category: category, localPath: localPath, filename: filename, existed: statErr == nil})
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.com/bucket/" + category + "/" + filename, nil
}

func encodedPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 3, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestPersister(t *testing.T, up Uploader, deleteTransient bool) (*Persister, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := NewPersister(PersisterOptions{Uploader: up, TransientDir: dir, DeleteTransient: deleteTransient, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return p, dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPersistUploadsUniquePNGs(t *testing.T) {
	up := &recordingUploader{}
	p, dir := newTestPersister(t, up, true)
	img := encodedPNG(t)

	first, err := p.Persist(context.Background(), img, "painting")
	require.NoError(t, err)
	second, err := p.Persist(context.Background(), "data:image/png;base64,"+img, "painting")
	require.NoError(t, err)

	require.Len(t, up.calls, 2)
	require.NotEqual(t, up.calls[0].filename, up.calls[1].filename)
	for _, c := range up.calls {
		require.Equal(t, "painting", c.category)
		require.True(t, strings.HasSuffix(c.filename, ".png"))
		require.True(t, c.existed, "file must exist while uploading")
	}
	require.Equal(t, "/painting/"+up.calls[0].filename, first)
	require.Equal(t, "/painting/"+up.calls[1].filename, second)
	require.Empty(t, dirEntries(t, dir))
}

func TestPersistRemovesTransientFileOnUploadFailure(t *testing.T) {
	up := &recordingUploader{err: errors.New("bucket gone")}
	p, dir := newTestPersister(t, up, true)

	_, err := p.Persist(context.Background(), encodedPNG(t), "painting")
	require.ErrorIs(t, err, domain.ErrUpload)
	require.Len(t, up.calls, 1)
	require.Empty(t, dirEntries(t, dir))
}

func TestPersistKeepsTransientFileWhenConfigured(t *testing.T) {
	up := &recordingUploader{}
	p, dir := newTestPersister(t, up, false)

	_, err := p.Persist(context.Background(), encodedPNG(t), "painting")
	require.NoError(t, err)
	require.Equal(t, []string{up.calls[0].filename}, dirEntries(t, dir))
}

func TestPersistRejectsUndecodableInput(t *testing.T) {
	up := &recordingUploader{}
	p, dir := newTestPersister(t, up, true)

	cases := map[string]string{
		"not base64": "%%%",
		"not image":  base64.StdEncoding.EncodeToString([]byte("plain text")),
		"empty":      "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Persist(context.Background(), in, "painting")
			require.ErrorIs(t, err, domain.ErrPersist)
		})
	}
	require.Empty(t, up.calls)
	require.Empty(t, dirEntries(t, dir))
}

func TestPublicPath(t *testing.T) {
	cases := map[string]string{
		"https://oss.example.com/painting/a.png":          "/painting/a.png",
		"https://oss.example.com/bucket/painting/a.png?x": "/painting/a.png",
		"http://localhost:8080/static/painting/b.png":     "/painting/b.png",
	}
	for in, want := range cases {
		got, err := PublicPath(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := PublicPath("https://oss.example.com/a.png")
	require.Error(t, err)
}

func TestFileStoreUpload(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(filepath.Join(root, "static"), "http://localhost:8080/static/")
	require.NoError(t, err)

	src := filepath.Join(root, "src.png")
	require.NoError(t, os.WriteFile(src, []byte("png-bytes"), 0o644))

	url, err := store.Upload(context.Background(), "painting", src, "x.png")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/static/painting/x.png", url)

	data, err := os.ReadFile(filepath.Join(root, "static", "painting", "x.png"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	require.NoError(t, err)
	_, err = store.Write(context.Background(), "../escape.png", []byte("x"))
	require.Error(t, err)
}
