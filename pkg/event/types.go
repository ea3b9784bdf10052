package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
	// AggregateTypePost は投稿エンティティを表す。
	AggregateTypePost AggregateType = "Post"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeUserRegistered はユーザーが登録されたことを表す。
	TypeUserRegistered Type = "UserRegistered"
	// TypeUserRenamed はユーザー名が変更されたことを表す。
	TypeUserRenamed Type = "UserRenamed"
	// TypeAPIKeyRotated はAPIキーが再発行されたことを表す。
	TypeAPIKeyRotated Type = "APIKeyRotated"

	// TypePostCreated は投稿が作成されたことを表す。
	TypePostCreated Type = "PostCreated"
	// TypePostMessageUpdated は投稿の本文が更新されたことを表す。
	TypePostMessageUpdated Type = "PostMessageUpdated"
)

// Event は状態変更を記録する不変のイベントレコードを表す。
// ユーザーと投稿のすべての状態変更は、変更と同じトランザクションで追記される。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。追記時に採番される。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// UserRegisteredData はUserRegisteredイベントのデータ。
// APIキーは含めない。
type UserRegisteredData struct {
	// Name は登録されたユーザー名。
	Name string `json:"name"`
}

// UserRenamedData はUserRenamedイベントのデータ。
type UserRenamedData struct {
	// OldName は変更前のユーザー名。
	OldName string `json:"old_name"`
	// NewName は変更後のユーザー名。
	NewName string `json:"new_name"`
}

// APIKeyRotatedData はAPIKeyRotatedイベントのデータ。
// 新旧どちらのキーも含めない。
type APIKeyRotatedData struct {
	// Name は再発行を行ったユーザー名。
	Name string `json:"name"`
}

// PostCreatedData はPostCreatedイベントのデータ。
type PostCreatedData struct {
	// AuthorID は投稿を作成したユーザーのID。
	AuthorID string `json:"author_id"`
	// Flag は投稿の公開範囲。
	Flag string `json:"flag"`
}

// PostMessageUpdatedData はPostMessageUpdatedイベントのデータ。
type PostMessageUpdatedData struct {
	// AuthorID は本文を更新したユーザーのID。
	AuthorID string `json:"author_id"`
}
