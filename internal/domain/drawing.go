package domain

import "time"

// DrawingMode enumerates the request flows that produce a drawing.
type DrawingMode string

const (
	DrawingModeText   DrawingMode = "text"
	DrawingModeQR     DrawingMode = "qr"
	DrawingModeRandom DrawingMode = "random"
)

// DefaultEnv is recorded when the caller does not provide an env tag.
const DefaultEnv = "0"

// Drawing is the durable record of one completed generation request.
type Drawing struct {
	ID          string
	UserID      string
	Prompt      string
	OriginalURL *string
	GenerateURL *string
	IsPublic    bool
	Env         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewDrawing carries the fields written when a drawing is recorded.
type NewDrawing struct {
	UserID      string
	Prompt      string
	OriginalURL *string
	GenerateURL *string
	Env         string
}
