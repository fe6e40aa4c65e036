// Package store persists forecasts, predictions, and validation records in
// SQLite. Losing a forecast record is not locally recoverable, so save
// failures propagate as fatal errors instead of being swallowed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// ErrNotFound is returned when a forecast id has no row.
var ErrNotFound = errors.New("forecast not found")

// SQLite is the forecast/validation store backed by a single database file
// (or :memory: in tests).
type SQLite struct {
	db *sql.DB
}

// Open opens the database and applies the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS forecasts (
			id TEXT PRIMARY KEY,
			bundle_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			confidence REAL NOT NULL,
			category TEXT NOT NULL,
			factors TEXT NOT NULL,
			events TEXT NOT NULL,
			locations TEXT NOT NULL,
			metadata TEXT NOT NULL,
			validation_state TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			forecast_id TEXT NOT NULL,
			shore TEXT NOT NULL,
			valid_time DATETIME NOT NULL,
			height_ft REAL NOT NULL,
			period_s REAL NOT NULL,
			direction_deg REAL NOT NULL,
			size_category TEXT NOT NULL,
			FOREIGN KEY (forecast_id) REFERENCES forecasts(id)
		);

		CREATE TABLE IF NOT EXISTS validations (
			id TEXT PRIMARY KEY,
			prediction_id TEXT NOT NULL UNIQUE,
			forecast_id TEXT NOT NULL,
			observed_height_ft REAL NOT NULL,
			observed_period_s REAL NOT NULL,
			observed_direction_deg REAL NOT NULL,
			height_error_ft REAL NOT NULL,
			period_error_s REAL NOT NULL,
			direction_error_deg REAL NOT NULL,
			category_match INTEGER NOT NULL,
			matched_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (prediction_id) REFERENCES predictions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_forecasts_state ON forecasts(validation_state, created_at);
		CREATE INDEX IF NOT EXISTS idx_predictions_forecast ON predictions(forecast_id);
		CREATE INDEX IF NOT EXISTS idx_validations_forecast ON validations(forecast_id);
		CREATE INDEX IF NOT EXISTS idx_validations_created ON validations(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveForecast writes a forecast and its extracted predictions in one
// transaction.
func (s *SQLite) SaveForecast(ctx context.Context, f domain.SwellForecast, preds []domain.Prediction) error {
	factors, err := json.Marshal(f.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	events, err := json.Marshal(f.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	locations, err := json.Marshal(f.Locations)
	if err != nil {
		return fmt.Errorf("marshal locations: %w", err)
	}
	metadata, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO forecasts (id, bundle_id, created_at, confidence, category, factors, events, locations, metadata, validation_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.BundleID, f.CreatedAt.UTC(), f.Confidence, f.Category,
		string(factors), string(events), string(locations), string(metadata), string(f.State),
	)
	if err != nil {
		return fmt.Errorf("insert forecast: %w", err)
	}

	for _, p := range preds {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO predictions (id, forecast_id, shore, valid_time, height_ft, period_s, direction_deg, size_category)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.ForecastID, p.Shore, p.ValidTime.UTC(), p.HeightFt, p.PeriodS, p.DirectionDeg, p.SizeCategory,
		)
		if err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
	}

	return tx.Commit()
}

// GetForecast loads a forecast by id. Returns ErrNotFound for unknown ids.
func (s *SQLite) GetForecast(ctx context.Context, id string) (domain.SwellForecast, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bundle_id, created_at, confidence, category, factors, events, locations, metadata, validation_state
		FROM forecasts WHERE id = ?`, id)

	var f domain.SwellForecast
	var factors, events, locations, metadata, state string
	err := row.Scan(&f.ID, &f.BundleID, &f.CreatedAt, &f.Confidence, &f.Category,
		&factors, &events, &locations, &metadata, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SwellForecast{}, ErrNotFound
	}
	if err != nil {
		return domain.SwellForecast{}, fmt.Errorf("scan forecast: %w", err)
	}

	f.State = domain.ValidationState(state)
	f.CreatedAt = f.CreatedAt.UTC()
	if err := json.Unmarshal([]byte(factors), &f.Factors); err != nil {
		return domain.SwellForecast{}, fmt.Errorf("unmarshal factors: %w", err)
	}
	if err := json.Unmarshal([]byte(events), &f.Events); err != nil {
		return domain.SwellForecast{}, fmt.Errorf("unmarshal events: %w", err)
	}
	if err := json.Unmarshal([]byte(locations), &f.Locations); err != nil {
		return domain.SwellForecast{}, fmt.Errorf("unmarshal locations: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &f.Metadata); err != nil {
		return domain.SwellForecast{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return f, nil
}

// Predictions returns a forecast's predictions in shore order.
func (s *SQLite) Predictions(ctx context.Context, forecastID string) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, forecast_id, shore, valid_time, height_ft, period_s, direction_deg, size_category
		FROM predictions WHERE forecast_id = ? ORDER BY shore`, forecastID)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var preds []domain.Prediction
	for rows.Next() {
		var p domain.Prediction
		if err := rows.Scan(&p.ID, &p.ForecastID, &p.Shore, &p.ValidTime, &p.HeightFt, &p.PeriodS, &p.DirectionDeg, &p.SizeCategory); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.ValidTime = p.ValidTime.UTC()
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

// SaveValidation appends validation records and flips the forecast's state
// in one transaction. Once a forecast is terminal the call is a no-op, so
// repeated sweeps never overwrite an existing audit trail.
func (s *SQLite) SaveValidation(ctx context.Context, forecastID string, state domain.ValidationState, records []domain.ValidationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var current string
	err = tx.QueryRowContext(ctx, `SELECT validation_state FROM forecasts WHERE id = ?`, forecastID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read forecast state: %w", err)
	}
	if domain.ValidationState(current).Terminal() {
		return nil
	}

	for _, r := range records {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO validations
				(id, prediction_id, forecast_id, observed_height_ft, observed_period_s, observed_direction_deg,
				 height_error_ft, period_error_s, direction_error_deg, category_match, matched_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.PredictionID, r.ForecastID,
			r.ObservedHeightFt, r.ObservedPeriodS, r.ObservedDirectionDeg,
			r.HeightErrorFt, r.PeriodErrorS, r.DirectionErrorDeg,
			r.CategoryMatch, r.MatchedAt.UTC(), r.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert validation: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE forecasts SET validation_state = ? WHERE id = ?`, string(state), forecastID)
	if err != nil {
		return fmt.Errorf("update forecast state: %w", err)
	}

	return tx.Commit()
}

// Validations returns a forecast's stored validation records.
func (s *SQLite) Validations(ctx context.Context, forecastID string) ([]domain.ValidationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prediction_id, forecast_id, observed_height_ft, observed_period_s, observed_direction_deg,
		       height_error_ft, period_error_s, direction_error_deg, category_match, matched_at, created_at
		FROM validations WHERE forecast_id = ? ORDER BY created_at`, forecastID)
	if err != nil {
		return nil, fmt.Errorf("query validations: %w", err)
	}
	defer rows.Close()
	return scanValidations(rows)
}

// ValidationsSince returns every validation record created at or after the
// cutoff, for accuracy reporting and the historical-accuracy feedback loop.
func (s *SQLite) ValidationsSince(ctx context.Context, cutoff time.Time) ([]domain.ValidationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prediction_id, forecast_id, observed_height_ft, observed_period_s, observed_direction_deg,
		       height_error_ft, period_error_s, direction_error_deg, category_match, matched_at, created_at
		FROM validations WHERE created_at >= ? ORDER BY created_at`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query validations since: %w", err)
	}
	defer rows.Close()
	return scanValidations(rows)
}

func scanValidations(rows *sql.Rows) ([]domain.ValidationRecord, error) {
	var records []domain.ValidationRecord
	for rows.Next() {
		var r domain.ValidationRecord
		if err := rows.Scan(&r.ID, &r.PredictionID, &r.ForecastID,
			&r.ObservedHeightFt, &r.ObservedPeriodS, &r.ObservedDirectionDeg,
			&r.HeightErrorFt, &r.PeriodErrorS, &r.DirectionErrorDeg,
			&r.CategoryMatch, &r.MatchedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		r.MatchedAt = r.MatchedAt.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// ForecastsNeedingValidation returns ids of non-terminal forecasts created
// at or before the cutoff, oldest first.
func (s *SQLite) ForecastsNeedingValidation(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM forecasts
		WHERE validation_state = ? AND created_at <= ?
		ORDER BY created_at`, string(domain.StatePending), olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("query forecasts needing validation: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan forecast id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentMAE returns the mean absolute height error over validations created
// at or after the cutoff. ok is false when no history exists yet.
func (s *SQLite) RecentMAE(ctx context.Context, cutoff time.Time) (mae float64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT AVG(ABS(height_error_ft)), COUNT(*) FROM validations WHERE created_at >= ?`, cutoff.UTC())

	var avg sql.NullFloat64
	var count int
	if err := row.Scan(&avg, &count); err != nil {
		return 0, false, fmt.Errorf("query recent mae: %w", err)
	}
	if count == 0 || !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}
