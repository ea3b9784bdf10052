package board

import (
	"encoding/json"
	"time"

	"github.com/nao1215/postboard/internal/board/db"
)

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Name は登録するユーザー名。
	Name string `json:"name" binding:"required,max=64"`
}

// renameRequest はユーザー名変更リクエストのJSON構造。
type renameRequest struct {
	// NewName は変更後のユーザー名。
	NewName string `json:"newName" binding:"required,max=64"`
}

// createPostRequest は投稿作成リクエストのJSON構造。
type createPostRequest struct {
	// Message は投稿の本文。
	Message string `json:"message" binding:"required"`
	// Flag は投稿の公開範囲。
	Flag string `json:"flag" binding:"required,oneof=PUBLIC PRIVATE"`
}

// updatePostRequest は投稿更新リクエストのJSON構造。
// UserIDは互換性のために受け付けるが、権限の判定には使わない。
type updatePostRequest struct {
	// PostID は更新する投稿のID。
	PostID string `json:"postId" binding:"required"`
	// UserID はクライアントが申告する作成者ID。
	UserID string `json:"userId"`
	// Message は新しい本文。
	Message string `json:"message" binding:"required"`
}

// offsetBody は一覧系エンドポイントがボディで受け付けるオフセット。
type offsetBody struct {
	Offset *int `json:"offset"`
}

// tokenResponse はユーザー登録のレスポンス。
type tokenResponse struct {
	Token string `json:"token"`
	Key   string `json:"key"`
}

// userResponse はユーザーのJSONレスポンス構造。APIキーは含めない。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Name はユーザー名。
	Name string `json:"name"`
}

// userWithPostsResponse はユーザー一覧の要素。閲覧者に見せてよい投稿を含む。
type userWithPostsResponse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Posts []postResponse `json:"posts"`
}

// renameResponse はユーザー名変更のレスポンス。
type renameResponse struct {
	User  userResponse `json:"User"`
	Token string       `json:"token"`
}

// rotateKeyResponse はAPIキー再発行のレスポンス。
type rotateKeyResponse struct {
	APIKey string `json:"api_key"`
	Token  string `json:"token"`
}

// usersResponse はユーザー一覧のレスポンス。
type usersResponse struct {
	Users []userWithPostsResponse `json:"Users"`
}

// postResponse は投稿のJSONレスポンス構造。
type postResponse struct {
	// ID は投稿の一意識別子。
	ID string `json:"id"`
	// AuthorID は作成者のユーザーID。
	AuthorID string `json:"authorId"`
	// Message は本文。
	Message string `json:"message"`
	// Flag は公開範囲。
	Flag string `json:"flag"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"createdAt"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updatedAt"`
}

// postEnvelope は投稿作成のレスポンス。
type postEnvelope struct {
	Post postResponse `json:"Post"`
}

// postsResponse は投稿一覧のレスポンス。
type postsResponse struct {
	Posts []postResponse `json:"Posts"`
}

// eventResponse は変更履歴1件のJSONレスポンス構造。
type eventResponse struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Version       int64           `json:"version"`
	CreatedAt     string          `json:"created_at"`
}

// eventsResponse は変更履歴のレスポンス。
type eventsResponse struct {
	Events []eventResponse `json:"Events"`
}

func toEventResponse(e db.Event) eventResponse {
	return eventResponse{
		ID:            e.ID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Data:          e.Data,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u db.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name}
}

// toPostResponse はDB行をJSONレスポンスに変換する。
func toPostResponse(p db.Post) postResponse {
	return postResponse{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Message:   p.Message,
		Flag:      string(p.Flag),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// toPostResponses は空の場合もnullではなく空配列になるよう変換する。
func toPostResponses(posts []db.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	return out
}
