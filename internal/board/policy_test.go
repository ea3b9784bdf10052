package board

import (
	"testing"

	"github.com/nao1215/postboard/internal/board/db"
	"github.com/nao1215/postboard/pkg/apperr"
	"github.com/nao1215/postboard/pkg/token"
)

// TestRequireClaims は認証必須の判定を検証する。
func TestRequireClaims(t *testing.T) {
	t.Parallel()

	if err := requireClaims(&token.Claims{Name: "alice", Key: "k"}); err != nil {
		t.Errorf("requireClaims() = %v, want nil", err)
	}
	err := requireClaims(nil)
	if apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Errorf("CodeOf() = %q, want %q", apperr.CodeOf(err), apperr.CodeUnauthenticated)
	}
	if apperr.MessageOf(err) != "NOT AUTHORIZED" {
		t.Errorf("MessageOf() = %q", apperr.MessageOf(err))
	}
}

// TestAuthorizePostUpdate は投稿更新の所有者判定を検証する。
func TestAuthorizePostUpdate(t *testing.T) {
	t.Parallel()

	post := db.Post{ID: "p-1", AuthorID: "u-1", Flag: db.FlagPublic}

	t.Run("作成者本人は許可されること", func(t *testing.T) {
		t.Parallel()

		if err := authorizePostUpdate(db.User{ID: "u-1"}, post); err != nil {
			t.Errorf("authorizePostUpdate() = %v, want nil", err)
		}
	})

	t.Run("作成者以外はForbiddenになること", func(t *testing.T) {
		t.Parallel()

		err := authorizePostUpdate(db.User{ID: "u-2"}, post)
		if apperr.CodeOf(err) != apperr.CodePermissionDenied {
			t.Fatalf("CodeOf() = %q, want %q", apperr.CodeOf(err), apperr.CodePermissionDenied)
		}
		if apperr.MessageOf(err) != "CANNOT UPDATE ANOTHER USER'S POST" {
			t.Errorf("MessageOf() = %q", apperr.MessageOf(err))
		}
	})
}

// TestUserPostsView はユーザー別投稿一覧の公開範囲とページサイズを検証する。
func TestUserPostsView(t *testing.T) {
	t.Parallel()

	owner := &db.User{ID: "u-1"}
	other := &db.User{ID: "u-2"}

	tests := []struct {
		name   string
		viewer *db.User
		want   db.ListPostsParams
	}{
		{
			name:   "本人は非公開投稿も含めて5件ずつ",
			viewer: owner,
			want:   db.ListPostsParams{AuthorID: "u-1", PrivateOf: "u-1", Offset: 3, Limit: 5},
		},
		{
			name:   "他のユーザーは公開投稿のみ20件ずつ",
			viewer: other,
			want:   db.ListPostsParams{AuthorID: "u-1", Offset: 3, Limit: 20},
		},
		{
			name:   "未認証は公開投稿のみ20件ずつ",
			viewer: nil,
			want:   db.ListPostsParams{AuthorID: "u-1", Offset: 3, Limit: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := userPostsView(tt.viewer, "u-1", 3); got != tt.want {
				t.Errorf("userPostsView() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestFeedView は全体フィードの公開範囲を検証する。
func TestFeedView(t *testing.T) {
	t.Parallel()

	if got, want := feedView(nil, 0), (db.ListPostsParams{Limit: 20}); got != want {
		t.Errorf("未認証: feedView() = %+v, want %+v", got, want)
	}
	if got, want := feedView(&db.User{ID: "u-1"}, 40), (db.ListPostsParams{PrivateOf: "u-1", Offset: 40, Limit: 20}); got != want {
		t.Errorf("認証済み: feedView() = %+v, want %+v", got, want)
	}
}

// TestFilterView は絞り込みが常に公開投稿のみを対象にすることを検証する。
func TestFilterView(t *testing.T) {
	t.Parallel()

	got := filterView("u-1", "hello", 20)
	want := db.ListPostsParams{AuthorID: "u-1", SubString: "hello", Offset: 20, Limit: 20}
	if got != want {
		t.Errorf("filterView() = %+v, want %+v", got, want)
	}
	if got.PrivateOf != "" {
		t.Errorf("PrivateOf = %q, want empty", got.PrivateOf)
	}
}

// TestUsersPage はユーザー一覧のページサイズを検証する。
func TestUsersPage(t *testing.T) {
	t.Parallel()

	if got, want := usersPage(10), (db.ListUsersParams{Offset: 10, Limit: 10}); got != want {
		t.Errorf("usersPage() = %+v, want %+v", got, want)
	}
}
