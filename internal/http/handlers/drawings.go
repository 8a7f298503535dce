package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/drawing"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/middleware"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/payload"
)

// DrawText handles POST /v1/sd/text. The guide is the uploaded image when
// present, otherwise entryText rendered onto a canvas.
func (a *App) DrawText(w http.ResponseWriter, r *http.Request) {
	if err := a.parseForm(w, r); err != nil {
		a.writeError(w, r, err)
		return
	}
	common, err := commonParams(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	params := payload.TextParams{CommonParams: common}
	upload, err := formImage(r)
	switch {
	case err != nil:
		a.writeError(w, r, err)
		return
	case upload != nil:
		params.Guide = *upload
	case strings.TrimSpace(r.FormValue("entryText")) != "":
		params.Guide = payload.TextGuide{Text: r.FormValue("entryText")}
	}
	if err := params.Validate(); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.draw(w, r, drawing.Request{
		Mode: domain.DrawingModeText,
		Env:  r.FormValue("env"),
		Text: &params,
	})
}

// DrawImage handles POST /v1/sd/image, where the upload is a QR code.
func (a *App) DrawImage(w http.ResponseWriter, r *http.Request) {
	if err := a.parseForm(w, r); err != nil {
		a.writeError(w, r, err)
		return
	}
	common, err := commonParams(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	upload, err := formImage(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if upload == nil {
		a.writeError(w, r, fmt.Errorf("%w: images file is required", domain.ErrInvalidParams))
		return
	}
	params := payload.QRParams{CommonParams: common, Image: *upload}
	if err := params.Validate(); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.draw(w, r, drawing.Request{
		Mode: domain.DrawingModeQR,
		Env:  r.FormValue("env"),
		QR:   &params,
	})
}

// DrawRandom handles POST /v1/sd/random.
func (a *App) DrawRandom(w http.ResponseWriter, r *http.Request) {
	a.draw(w, r, drawing.Request{Mode: domain.DrawingModeRandom})
}

func (a *App) draw(w http.ResponseWriter, r *http.Request, req drawing.Request) {
	req.UserID = a.currentUserID(r)
	req.RequestID = middleware.RequestIDFromContext(r.Context())
	res, err := a.drawer.Draw(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.ok(w, r, res)
}

type drawingResponse struct {
	DrawingID   string  `json:"drawingId"`
	Prompt      string  `json:"prompt"`
	OriginalURL *string `json:"originalUrl"`
	GenerateURL *string `json:"generateUrl"`
	IsPublic    bool    `json:"isPublic"`
	Env         string  `json:"env"`
	CreatedTime string  `json:"createdTime"`
}

// GetDrawing handles GET /v1/drawings/{id} for the owner of the drawing.
func (a *App) GetDrawing(w http.ResponseWriter, r *http.Request) {
	d, err := a.drawings.Get(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.ok(w, r, drawingResponse{
		DrawingID:   d.ID,
		Prompt:      d.Prompt,
		OriginalURL: d.OriginalURL,
		GenerateURL: d.GenerateURL,
		IsPublic:    d.IsPublic,
		Env:         d.Env,
		CreatedTime: d.CreatedAt.Format("2006-01-02 15:04:05"),
	})
}

func (a *App) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(a.maxUploadBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return fmt.Errorf("%w: parse form: %v", domain.ErrInvalidParams, err)
	}
	return nil
}

func commonParams(r *http.Request) (payload.CommonParams, error) {
	p := payload.CommonParams{
		Prompt:         r.FormValue("prompt"),
		NegativePrompt: r.FormValue("negative_prompt"),
		Sampler:        r.FormValue("sampler_index"),
		Checkpoint:     r.FormValue("modelName"),
	}
	ints := []struct {
		field string
		dst   *int
	}{
		{"controlNetType", &p.Selector},
		{"width", &p.Width},
		{"height", &p.Height},
		{"steps", &p.Steps},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(r.FormValue(f.field)))
		if err != nil {
			return payload.CommonParams{}, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidParams, f.field)
		}
		*f.dst = v
	}
	return p, nil
}

// formImage reads the optional "images" upload. A missing file is nil.
func formImage(r *http.Request) (*payload.ImageGuide, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("images")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read images: %v", domain.ErrInvalidParams, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read images: %v", domain.ErrInvalidParams, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &payload.ImageGuide{Data: data, ContentType: header.Header.Get("Content-Type")}, nil
}
