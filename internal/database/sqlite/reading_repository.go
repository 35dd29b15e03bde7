package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
)

// ReadingRepository stores and reads sensor telemetry samples.
type ReadingRepository struct {
	db *sqlx.DB
}

func NewReadingRepository(db *sqlx.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

type readingRow struct {
	SensorID   string    `db:"sensor_id"`
	MetricType string    `db:"metric_type"`
	Value      float64   `db:"value"`
	Timestamp  time.Time `db:"timestamp"`
	Labels     string    `db:"labels"`
}

func (r *ReadingRepository) Insert(ctx context.Context, reading *alerting.SensorReading) error {
	labels, err := json.Marshal(reading.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sensor_readings (sensor_id, metric_type, value, timestamp, labels)
		VALUES (?, ?, ?, ?, ?)`,
		reading.SensorID, reading.MetricType, reading.Value, reading.Timestamp, string(labels))
	if err != nil {
		return fmt.Errorf("insert reading for sensor %s: %w", reading.SensorID, err)
	}
	return nil
}

// ReadingsSince returns all samples at or after since, oldest first.
func (r *ReadingRepository) ReadingsSince(ctx context.Context, since time.Time) ([]alerting.SensorReading, error) {
	var rows []readingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT sensor_id, metric_type, value, timestamp, labels
		 FROM sensor_readings WHERE timestamp >= ? ORDER BY timestamp`, since)
	if err != nil {
		return nil, err
	}

	readings := make([]alerting.SensorReading, 0, len(rows))
	for _, row := range rows {
		reading := alerting.SensorReading{
			SensorID:   row.SensorID,
			MetricType: row.MetricType,
			Value:      row.Value,
			Timestamp:  row.Timestamp,
		}
		if row.Labels != "" {
			if err := json.Unmarshal([]byte(row.Labels), &reading.Labels); err != nil {
				return nil, fmt.Errorf("unmarshal labels: %w", err)
			}
		}
		readings = append(readings, reading)
	}
	return readings, nil
}
