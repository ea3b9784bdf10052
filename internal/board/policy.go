package board

import (
	"github.com/nao1215/postboard/internal/board/db"
	"github.com/nao1215/postboard/pkg/apperr"
	"github.com/nao1215/postboard/pkg/token"
)

// 一覧系エンドポイントのページサイズ。
const (
	ownerPageSize  = 5
	publicPageSize = 20
	feedPageSize   = 20
	filterPageSize = 20
	usersPageSize  = 10
)

// クライアントに返すエラーメッセージ。
const (
	msgNotAuthorized = "NOT AUTHORIZED"
	msgUserExists    = "USER ALREADY EXISTS"
	msgUsernameTaken = "USERNAME TAKEN"
	msgNotPostOwner  = "CANNOT UPDATE ANOTHER USER'S POST"
	msgUserNotFound  = "USER NOT FOUND"
	msgPostNotFound  = "POST NOT FOUND"
	msgInvalidOffset = "OFFSET MUST BE A NON-NEGATIVE INTEGER"
	msgInvalidBody   = "INVALID REQUEST BODY"
	msgBodyTooLarge  = "REQUEST BODY TOO LARGE"
)

// requireClaims は認証が必須の操作でクレームの有無を確認する。
func requireClaims(claims *token.Claims) error {
	if claims == nil {
		return apperr.Unauthorized(msgNotAuthorized)
	}
	return nil
}

// authorizePostUpdate は投稿の本文を更新できるのが作成者本人だけであることを確認する。
// 判定にはクレームから解決したユーザーのIDだけを使う。
func authorizePostUpdate(actor db.User, post db.Post) error {
	if actor.ID != post.AuthorID {
		return apperr.Forbidden(msgNotPostOwner)
	}
	return nil
}

// userPostsView はユーザー別投稿一覧の検索条件を決める。
// 閲覧者が対象ユーザー本人なら非公開投稿も含めて5件、
// それ以外（未認証を含む）は公開投稿のみ20件ずつ返す。
func userPostsView(viewer *db.User, targetID string, offset int) db.ListPostsParams {
	if viewer != nil && viewer.ID == targetID {
		return db.ListPostsParams{
			AuthorID:  targetID,
			PrivateOf: viewer.ID,
			Offset:    offset,
			Limit:     ownerPageSize,
		}
	}
	return db.ListPostsParams{
		AuthorID: targetID,
		Offset:   offset,
		Limit:    publicPageSize,
	}
}

// feedView は全体フィードの検索条件を決める。
// 認証済みなら自分の非公開投稿も含める。
func feedView(viewer *db.User, offset int) db.ListPostsParams {
	return db.ListPostsParams{
		PrivateOf: privateScope(viewer),
		Offset:    offset,
		Limit:     feedPageSize,
	}
}

// filterView は作成者IDと部分文字列による絞り込みの検索条件を決める。
// 認証の有無にかかわらず公開投稿のみを対象にする。
func filterView(authorID, subString string, offset int) db.ListPostsParams {
	return db.ListPostsParams{
		AuthorID:  authorID,
		SubString: subString,
		Offset:    offset,
		Limit:     filterPageSize,
	}
}

// usersPage はユーザー一覧のページ指定を返す。
func usersPage(offset int) db.ListUsersParams {
	return db.ListUsersParams{Offset: offset, Limit: usersPageSize}
}

// privateScope は非公開投稿を見せてよいユーザーのIDを返す。未認証なら空文字列。
func privateScope(viewer *db.User) string {
	if viewer == nil {
		return ""
	}
	return viewer.ID
}
