package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"LendCore/internal/oracle"
)

var ErrNotFound = errors.New("query: not found")

// Service provides read-only access to the projected read model and the
// in-process degradation log. Responses carry as_of_seq so consumers can
// reason about freshness against the cache-push sequence.
type Service struct {
	db          *sql.DB
	degradation *oracle.DegradationLog
}

func NewService(db *sql.DB, degradation *oracle.DegradationLog) *Service {
	return &Service{db: db, degradation: degradation}
}

// PositionView is the projected state of one (user, asset) position.
type PositionView struct {
	UserID     uuid.UUID `json:"user_id"`
	Asset      string    `json:"asset"`
	Collateral int64     `json:"collateral"`
	Debt       int64     `json:"debt"`
	Version    uint64    `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
	AsOfSeq    uint64    `json:"as_of_seq"`
}

// Position returns the projected row for (user, asset).
func (s *Service) Position(ctx context.Context, userID uuid.UUID, asset string) (*PositionView, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	p := PositionView{UserID: userID, Asset: asset, AsOfSeq: asOf}
	err = s.db.QueryRowContext(ctx, `
		SELECT collateral, debt, version, updated_at
		FROM projections.positions
		WHERE user_id = $1 AND asset = $2
	`, userID, asset).Scan(&p.Collateral, &p.Debt, &p.Version, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: position %s/%s", ErrNotFound, userID, asset)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Positions returns all projected positions of a user.
func (s *Service) Positions(ctx context.Context, userID uuid.UUID) ([]PositionView, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, collateral, debt, version, updated_at
		FROM projections.positions
		WHERE user_id = $1
		ORDER BY asset
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionView
	for rows.Next() {
		p := PositionView{UserID: userID, AsOfSeq: asOf}
		if err := rows.Scan(&p.Asset, &p.Collateral, &p.Debt, &p.Version, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Degradations returns the most recent n degradation events, newest first.
func (s *Service) Degradations(n int) []oracle.Degradation {
	return s.degradation.Recent(n)
}

// DegradationStats returns the aggregate degradation counters.
func (s *Service) DegradationStats() oracle.DegradationStats {
	return s.degradation.Stats()
}

func (s *Service) watermark(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_seq FROM projections.watermark WHERE worker_id = 'positions'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("watermark: %w", err)
	}
	return seq, nil
}
