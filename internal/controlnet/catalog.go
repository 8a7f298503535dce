// Package controlnet reads the control-net profile catalog.
package controlnet

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/sqlinline"
)

// Catalog is a read-only view over t_sd_control_net.
type Catalog struct {
	db infra.SQLExecutor
}

func NewCatalog(db infra.SQLExecutor) *Catalog {
	return &Catalog{db: db}
}

// ByType returns the profile for selector, or domain.ErrProfileNotFound.
func (c *Catalog) ByType(ctx context.Context, selector int) (*domain.ControlNetProfile, error) {
	row := c.db.QueryRow(ctx, sqlinline.QSelectControlNetByType, selector)
	profile, err := scanProfile(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("%w: type %d", domain.ErrProfileNotFound, selector)
		}
		return nil, fmt.Errorf("controlnet: load type %d: %w", selector, err)
	}
	return profile, nil
}

// List returns every profile ordered by selector.
func (c *Catalog) List(ctx context.Context) ([]domain.ControlNetProfile, error) {
	rows, err := c.db.Query(ctx, sqlinline.QListControlNets)
	if err != nil {
		return nil, fmt.Errorf("controlnet: list: %w", err)
	}
	defer rows.Close()

	var out []domain.ControlNetProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("controlnet: scan: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("controlnet: list: %w", err)
	}
	return out, nil
}

func scanProfile(row pgx.Row) (*domain.ControlNetProfile, error) {
	var p domain.ControlNetProfile
	if err := row.Scan(
		&p.Type,
		&p.TypeName,
		&p.Text,
		&p.IsSelected,
		&p.GuidanceStart,
		&p.GuidanceEnd,
		&p.Model,
		&p.Module,
		&p.Weight,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ domain.ControlNetRepository = (*Catalog)(nil)
