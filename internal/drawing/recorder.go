package drawing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/sqlinline"
)

// Recorder writes and reads drawing rows.
type Recorder struct {
	db infra.SQLExecutor
}

func NewRecorder(db infra.SQLExecutor) *Recorder {
	return &Recorder{db: db}
}

// Record inserts one private drawing and returns its generated id.
func (r *Recorder) Record(ctx context.Context, d domain.NewDrawing) (string, error) {
	env := strings.TrimSpace(d.Env)
	if env == "" {
		env = domain.DefaultEnv
	}
	var id string
	err := r.db.QueryRow(ctx, sqlinline.QInsertDrawing,
		d.UserID,
		d.Prompt,
		d.OriginalURL,
		d.GenerateURL,
		env,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRecord, err)
	}
	return id, nil
}

// Get returns a drawing owned by userID.
func (r *Recorder) Get(ctx context.Context, drawingID, userID string) (*domain.Drawing, error) {
	if _, err := uuid.Parse(drawingID); err != nil {
		return nil, domain.ErrNotFound
	}
	var d domain.Drawing
	err := r.db.QueryRow(ctx, sqlinline.QSelectDrawingForUser, drawingID, userID).Scan(
		&d.ID,
		&d.UserID,
		&d.Prompt,
		&d.OriginalURL,
		&d.GenerateURL,
		&d.IsPublic,
		&d.Env,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("drawing: get %s: %w", drawingID, err)
	}
	return &d, nil
}

var _ domain.DrawingRepository = (*Recorder)(nil)
