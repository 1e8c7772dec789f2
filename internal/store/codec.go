package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"quantlab/internal/domain"
)

// Helpers shared by the SQLite and Postgres stores. Curves and metrics are
// persisted as JSON columns; optional scalar fields map to database NULLs.

func marshalCurve(points []domain.CurvePoint) (sql.NullString, error) {
	if len(points) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(points)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding curve: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalCurve(ns sql.NullString) ([]domain.CurvePoint, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var points []domain.CurvePoint
	if err := json.Unmarshal([]byte(ns.String), &points); err != nil {
		return nil, fmt.Errorf("decoding curve: %w", err)
	}
	return points, nil
}

func marshalMetrics(m *domain.Metrics) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding metrics: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMetrics(ns sql.NullString) (*domain.Metrics, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m domain.Metrics
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, fmt.Errorf("decoding metrics: %w", err)
	}
	return &m, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
