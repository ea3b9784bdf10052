package board

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/postboard/internal/board/db"
	"github.com/nao1215/postboard/pkg/apperr"
	"github.com/nao1215/postboard/pkg/event"
	"github.com/nao1215/postboard/pkg/token"
)

// Service はトークン・認可ポリシー・永続化をまとめて各操作を実行する。
// 返すエラーはすべてapperr.AppErrorで、HTTPステータスへの変換はServerが行う。
type Service struct {
	store  *db.Store
	tokens *token.Service
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService は新しいServiceを生成する。
func NewService(store *db.Store, tokens *token.Service, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
}

// Credentials はトークンとAPIキーの組。
type Credentials struct {
	Token  string
	APIKey string
}

// RenameResult はユーザー名変更の結果。
type RenameResult struct {
	User  db.User
	Token string
}

// UserWithPosts はユーザーと、閲覧者に見せてよいその投稿。
type UserWithPosts struct {
	User  db.User
	Posts []db.Post
}

// Register はユーザーを登録し、トークンとAPIキーを返す。
// 同名のユーザーが既に存在する場合はConflictを返す。
func (s *Service) Register(ctx context.Context, name string) (Credentials, error) {
	user := db.User{ID: s.newID(), Name: name, APIKey: s.newID(), CreatedAt: s.now()}

	err := s.store.InTx(ctx, func(q *db.Queries) error {
		if err := q.CreateUser(ctx, db.CreateUserParams{
			ID:        user.ID,
			Name:      user.Name,
			APIKey:    user.APIKey,
			CreatedAt: user.CreatedAt,
		}); err != nil {
			return err
		}
		return s.appendEvent(ctx, q, user.ID, event.AggregateTypeUser, event.TypeUserRegistered,
			event.UserRegisteredData{Name: user.Name})
	})
	if errors.Is(err, db.ErrUniqueViolation) {
		return Credentials{}, apperr.Conflict(msgUserExists)
	}
	if err != nil {
		return Credentials{}, apperr.Internal(fmt.Errorf("ユーザー登録に失敗: %w", err))
	}

	s.logger.InfoContext(ctx, "ユーザーを登録しました", "user_id", user.ID)

	tok, err := s.tokens.Issue(user.Name, user.APIKey)
	if err != nil {
		return Credentials{}, apperr.Internal(err)
	}
	return Credentials{Token: tok, APIKey: user.APIKey}, nil
}

// Rename はクレームのユーザーの名前を変更する。
// 空き確認と変更は1つのトランザクションで行い、変更後の名前でトークンを再発行する。
// 変更先の名前が既に使われている場合（自分自身の現在の名前を含む）はConflictを返す。
func (s *Service) Rename(ctx context.Context, claims *token.Claims, newName string) (RenameResult, error) {
	if err := requireClaims(claims); err != nil {
		return RenameResult{}, err
	}

	var user db.User
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		actor, err := s.actor(ctx, q, claims)
		if err != nil {
			return err
		}
		taken, err := q.UserNameExists(ctx, newName)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict(msgUsernameTaken)
		}
		if err := q.RenameUser(ctx, db.RenameUserParams{ID: actor.ID, Name: newName}); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, q, actor.ID, event.AggregateTypeUser, event.TypeUserRenamed,
			event.UserRenamedData{OldName: actor.Name, NewName: newName}); err != nil {
			return err
		}
		user, err = q.GetUserByID(ctx, actor.ID)
		return err
	})
	if errors.Is(err, db.ErrUniqueViolation) {
		return RenameResult{}, apperr.Conflict(msgUsernameTaken)
	}
	if err != nil {
		return RenameResult{}, s.classify("ユーザー名の変更に失敗", err)
	}
	s.logger.InfoContext(ctx, "ユーザー名を変更しました", "user_id", user.ID)

	tok, err := s.tokens.Issue(user.Name, user.APIKey)
	if err != nil {
		return RenameResult{}, apperr.Internal(err)
	}
	return RenameResult{User: user, Token: tok}, nil
}

// RotateKey はクレームのユーザーのAPIキーを新しい値に置き換える。
// 返すのは新しいキーと、それを載せた新しいトークンだけで、古いキーは返さない。
func (s *Service) RotateKey(ctx context.Context, claims *token.Claims) (Credentials, error) {
	if err := requireClaims(claims); err != nil {
		return Credentials{}, err
	}

	var user db.User
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		actor, err := s.actor(ctx, q, claims)
		if err != nil {
			return err
		}
		actor.APIKey = s.newID()
		if err := q.UpdateAPIKey(ctx, db.UpdateAPIKeyParams{ID: actor.ID, APIKey: actor.APIKey}); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, q, actor.ID, event.AggregateTypeUser, event.TypeAPIKeyRotated,
			event.APIKeyRotatedData{Name: actor.Name}); err != nil {
			return err
		}
		user = actor
		return nil
	})
	if err != nil {
		return Credentials{}, s.classify("APIキーの再発行に失敗", err)
	}
	s.logger.InfoContext(ctx, "APIキーを再発行しました", "user_id", user.ID)

	tok, err := s.tokens.Issue(user.Name, user.APIKey)
	if err != nil {
		return Credentials{}, apperr.Internal(err)
	}
	return Credentials{Token: tok, APIKey: user.APIKey}, nil
}

// UserEvents はクレームのユーザー自身の変更履歴をバージョン順に返す。
func (s *Service) UserEvents(ctx context.Context, claims *token.Claims) ([]db.Event, error) {
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	q := s.store.Queries()
	actor, err := s.actor(ctx, q, claims)
	if err != nil {
		return nil, s.classify("ユーザーの解決に失敗", err)
	}
	events, err := q.ListEventsByAggregateID(ctx, actor.ID)
	if err != nil {
		return nil, s.classify("変更履歴の取得に失敗", err)
	}
	return events, nil
}

// ListUsers はユーザーを10件ずつ返す。
// 各ユーザーの投稿は全体フィードと同じ公開範囲で絞り込む。
func (s *Service) ListUsers(ctx context.Context, claims *token.Claims, offset int) ([]UserWithPosts, error) {
	q := s.store.Queries()
	viewer, err := s.viewer(ctx, q, claims)
	if err != nil {
		return nil, s.classify("閲覧者の解決に失敗", err)
	}

	users, err := q.ListUsers(ctx, usersPage(offset))
	if err != nil {
		return nil, s.classify("ユーザー一覧の取得に失敗", err)
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	posts, err := q.ListPostsByAuthors(ctx, ids, privateScope(viewer))
	if err != nil {
		return nil, s.classify("ユーザー別投稿の取得に失敗", err)
	}

	byAuthor := make(map[string][]db.Post, len(users))
	for _, p := range posts {
		byAuthor[p.AuthorID] = append(byAuthor[p.AuthorID], p)
	}
	out := make([]UserWithPosts, 0, len(users))
	for _, u := range users {
		out = append(out, UserWithPosts{User: u, Posts: byAuthor[u.ID]})
	}
	return out, nil
}

// CreatePost はクレームのユーザーを作成者として投稿を作成する。
func (s *Service) CreatePost(ctx context.Context, claims *token.Claims, message string, flag db.Flag) (db.Post, error) {
	if err := requireClaims(claims); err != nil {
		return db.Post{}, err
	}
	if !flag.Valid() {
		return db.Post{}, apperr.InvalidArg(fmt.Sprintf("INVALID FLAG %q", flag))
	}

	now := s.now()
	post := db.Post{ID: s.newID(), Message: message, Flag: flag, CreatedAt: now, UpdatedAt: now}
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		actor, err := s.actor(ctx, q, claims)
		if err != nil {
			return err
		}
		post.AuthorID = actor.ID
		if err := q.CreatePost(ctx, db.CreatePostParams{
			ID:        post.ID,
			AuthorID:  post.AuthorID,
			Message:   post.Message,
			Flag:      post.Flag,
			CreatedAt: post.CreatedAt,
		}); err != nil {
			return err
		}
		return s.appendEvent(ctx, q, post.ID, event.AggregateTypePost, event.TypePostCreated,
			event.PostCreatedData{AuthorID: post.AuthorID, Flag: string(post.Flag)})
	})
	if err != nil {
		return db.Post{}, s.classify("投稿の作成に失敗", err)
	}
	return post, nil
}

// UpdatePost は投稿の本文を置き換える。公開範囲は変更しない。
// 取得・所有者確認・更新は1つのトランザクションで行う。
func (s *Service) UpdatePost(ctx context.Context, claims *token.Claims, postID, message string) (db.Post, error) {
	if err := requireClaims(claims); err != nil {
		return db.Post{}, err
	}

	var post db.Post
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		actor, err := s.actor(ctx, q, claims)
		if err != nil {
			return err
		}
		post, err = q.GetPostByID(ctx, postID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound(msgPostNotFound)
		}
		if err != nil {
			return err
		}
		if err := authorizePostUpdate(actor, post); err != nil {
			return err
		}

		post.Message = message
		post.UpdatedAt = s.now()
		if err := q.UpdatePostMessage(ctx, db.UpdatePostMessageParams{
			ID:        post.ID,
			Message:   post.Message,
			UpdatedAt: post.UpdatedAt,
		}); err != nil {
			return err
		}
		return s.appendEvent(ctx, q, post.ID, event.AggregateTypePost, event.TypePostMessageUpdated,
			event.PostMessageUpdatedData{AuthorID: actor.ID})
	})
	if err != nil {
		return db.Post{}, s.classify("投稿の更新に失敗", err)
	}
	return post, nil
}

// ListUserPosts は指定ユーザーの投稿を閲覧者に応じた公開範囲とページサイズで返す。
func (s *Service) ListUserPosts(ctx context.Context, claims *token.Claims, userID string, offset int) ([]db.Post, error) {
	q := s.store.Queries()
	viewer, err := s.viewer(ctx, q, claims)
	if err != nil {
		return nil, s.classify("閲覧者の解決に失敗", err)
	}
	return s.listPosts(ctx, q, userPostsView(viewer, userID, offset))
}

// Feed は全体フィードを返す。認証済みなら自分の非公開投稿も含む。
func (s *Service) Feed(ctx context.Context, claims *token.Claims, offset int) ([]db.Post, error) {
	q := s.store.Queries()
	viewer, err := s.viewer(ctx, q, claims)
	if err != nil {
		return nil, s.classify("閲覧者の解決に失敗", err)
	}
	return s.listPosts(ctx, q, feedView(viewer, offset))
}

// Filter は作成者IDと本文の部分文字列で公開投稿を絞り込む。
// 指定された条件はすべて満たす必要がある。どちらも空なら公開投稿をすべて対象にする。
func (s *Service) Filter(ctx context.Context, authorID, subString string, offset int) ([]db.Post, error) {
	return s.listPosts(ctx, s.store.Queries(), filterView(authorID, subString, offset))
}

func (s *Service) listPosts(ctx context.Context, q *db.Queries, params db.ListPostsParams) ([]db.Post, error) {
	posts, err := q.ListPosts(ctx, params)
	if err != nil {
		return nil, s.classify("投稿一覧の取得に失敗", err)
	}
	return posts, nil
}

// actor はクレームの名前から操作を行うユーザーを解決する。
// 存在しない場合、またはクレームのキーが現在のAPIキーと一致しない場合はNotFoundを返す。
func (s *Service) actor(ctx context.Context, q *db.Queries, claims *token.Claims) (db.User, error) {
	user, err := q.GetUserByName(ctx, claims.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return db.User{}, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return db.User{}, err
	}
	if !keyMatches(user, claims) {
		return db.User{}, apperr.NotFound(msgUserNotFound)
	}
	return user, nil
}

// viewer は閲覧者を解決する。未認証、クレームの名前が存在しない、
// またはキーが一致しない場合はnilを返す。
func (s *Service) viewer(ctx context.Context, q *db.Queries, claims *token.Claims) (*db.User, error) {
	if claims == nil {
		return nil, nil
	}
	user, err := q.GetUserByName(ctx, claims.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !keyMatches(user, claims) {
		return nil, nil
	}
	return &user, nil
}

// keyMatches はクレームのキーがユーザーの現在のAPIキーと一致するかを定数時間で比較する。
// 名前変更後に同じ名前で登録した別ユーザーや、キー再発行前のトークンはここで弾かれる。
func keyMatches(user db.User, claims *token.Claims) bool {
	return subtle.ConstantTimeCompare([]byte(user.APIKey), []byte(claims.Key)) == 1
}

// appendEvent はドメインイベントを同じトランザクションで追記する。
func (s *Service) appendEvent(ctx context.Context, q *db.Queries, aggregateID string,
	aggregateType event.AggregateType, eventType event.Type, data any,
) error {
	ev, err := event.New(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return err
	}
	_, err = q.AppendEvent(ctx, db.AppendEventParams{
		ID:            ev.ID,
		AggregateID:   ev.AggregateID,
		AggregateType: string(ev.AggregateType),
		EventType:     string(ev.EventType),
		Data:          ev.Data,
		CreatedAt:     ev.CreatedAt,
	})
	return err
}

// classify はAppErrorならそのまま返し、それ以外は内部エラーとして包む。
func (s *Service) classify(op string, err error) error {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}
