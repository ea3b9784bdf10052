package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AppendEventParams はAppendEventの引数。VersionはAppendEventが採番する。
type AppendEventParams struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Data          json.RawMessage
	CreatedAt     time.Time
}

// AppendEvent は集約の次のバージョンとしてイベントを追記し、採番したバージョンを返す。
// 採番と追記を原子的に行うため、トランザクション内で呼び出すこと。
func (q *Queries) AppendEvent(ctx context.Context, arg AppendEventParams) (int64, error) {
	var version int64
	if err := q.queryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM events WHERE aggregate_id = ?`,
		arg.AggregateID,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("イベントバージョンの採番に失敗: %w", err)
	}

	if _, err := q.exec(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.AggregateID, arg.AggregateType, arg.EventType, string(arg.Data), version, arg.CreatedAt.UTC(),
	); err != nil {
		return 0, classify(fmt.Errorf("イベントの追記に失敗: %w", err))
	}
	return version, nil
}

// ListEventsByAggregateID は集約のイベントをバージョン順に取得する。
func (q *Queries) ListEventsByAggregateID(ctx context.Context, aggregateID string) ([]Event, error) {
	rows, err := q.query(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events WHERE aggregate_id = ? ORDER BY version`,
		aggregateID,
	)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e    Event
			data string
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("イベント行の読み取りに失敗: %w", err)
		}
		e.Data = json.RawMessage(data)
		events = append(events, e)
	}
	return events, rows.Err()
}
