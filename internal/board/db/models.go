package db

import (
	"encoding/json"
	"time"
)

// Flag は投稿の公開範囲。
type Flag string

const (
	// FlagPublic は誰でも閲覧できる投稿。
	FlagPublic Flag = "PUBLIC"
	// FlagPrivate は作成者本人だけが閲覧できる投稿。
	FlagPrivate Flag = "PRIVATE"
)

// Valid はFlagが既知の値かどうかを返す。
func (f Flag) Valid() bool {
	return f == FlagPublic || f == FlagPrivate
}

// User はusersテーブルの行。
type User struct {
	ID        string
	Name      string
	APIKey    string
	CreatedAt time.Time
}

// Post はpostsテーブルの行。
type Post struct {
	ID        string
	AuthorID  string
	Message   string
	Flag      Flag
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event はeventsテーブルの行。
type Event struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Data          json.RawMessage
	Version       int64
	CreatedAt     time.Time
}
