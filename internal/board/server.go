package board

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/nao1215/postboard/internal/board/db"
	"github.com/nao1215/postboard/internal/config"
	"github.com/nao1215/postboard/pkg/apperr"
	"github.com/nao1215/postboard/pkg/middleware"
	"github.com/nao1215/postboard/pkg/token"
)

// Server はpostboardのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// service は各操作の実行を担う。
	service *Service
	// store はデータベース接続。Closeで閉じる。
	store *db.Store
	// limiter はクライアントIPごとのレート制限。
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// NewServer は設定からデータベースとトークンサービスを初期化してサーバーを生成する。
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := token.NewService(cfg.JWT.Secret)
	if err != nil {
		return nil, fmt.Errorf("トークンサービスの初期化に失敗: %w", err)
	}

	store, err := db.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	logger.InfoContext(ctx, "データベースに接続しました", "dialect", store.Dialect().String())

	s, err := newServer(cfg.Port, store, tokens, logger, serverOptions{
		rateLimit:      cfg.RateLimit,
		allowedOrigins: cfg.CORS.AllowedOrigins,
		trustedProxies: cfg.HTTP.TrustedProxies,
		maxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// serverOptions はHTTP層の振る舞いを決める設定値。
type serverOptions struct {
	rateLimit      config.RateLimit
	allowedOrigins []string
	// trustedProxies が空ならX-Forwarded-Forを信頼せず、接続元アドレスでレート制限する。
	trustedProxies []string
	maxBodyBytes   int64
}

func newServer(port string, store *db.Store, tokens *token.Service, logger *slog.Logger,
	opts serverOptions,
) (*Server, error) {
	registerValidatorTagNames()

	router := gin.New()
	if err := router.SetTrustedProxies(opts.trustedProxies); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}

	limiter := middleware.NewRateLimiter(opts.rateLimit.Max, opts.rateLimit.Window)

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger, "/health"))
	router.Use(middleware.CORS(opts.allowedOrigins))
	router.Use(middleware.RateLimit(limiter, logger))
	router.Use(middleware.BodyLimit(opts.maxBodyBytes))
	router.Use(middleware.OptionalAuth(tokens))

	s := &Server{
		router:  router,
		port:    port,
		service: NewService(store, tokens, logger),
		store:   store,
		limiter: limiter,
		logger:  logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバーの停止に失敗: %w", err)
		}
		return nil
	}
}

// Close はレート制限とデータベース接続を解放する。
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.store.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ユーザー
	s.router.POST("/user", s.handleRegister())
	s.router.PATCH("/user", s.handleRename())
	s.router.GET("/user/key", s.handleRotateKey())
	s.router.GET("/user/events", s.handleUserEvents())
	s.router.GET("/users", s.handleListUsers())

	// 投稿
	s.router.POST("/posts", s.handleCreatePost())
	s.router.PATCH("/post", s.handleUpdatePost())
	s.router.GET("/posts", s.handleFeed())
	s.router.GET("/posts/filter", s.handleFilter())
	s.router.GET("/posts/:userId", s.handleUserPosts())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "postboard"})
	})
}

// handleRegister はユーザー登録を処理するハンドラを返す。
// 同名のユーザーが存在する場合は401を返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if !s.bindJSON(c, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, []fieldError{blankField("name")})
			return
		}

		creds, err := s.service.Register(c.Request.Context(), name)
		if apperr.CodeOf(err) == apperr.CodeAlreadyExists {
			c.JSON(http.StatusUnauthorized, apperr.MessageOf(err))
			return
		}
		if err != nil {
			s.respondError(c, "ユーザー登録", err)
			return
		}
		c.JSON(http.StatusOK, tokenResponse{Token: creds.Token, Key: creds.APIKey})
	}
}

// handleRename はユーザー名の変更を処理するハンドラを返す。
func (s *Server) handleRename() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			s.respondError(c, "ユーザー名変更", requireClaims(claims))
			return
		}

		var req renameRequest
		if !s.bindJSON(c, &req) {
			return
		}
		newName := strings.TrimSpace(req.NewName)
		if newName == "" {
			c.JSON(http.StatusBadRequest, []fieldError{blankField("newName")})
			return
		}

		res, err := s.service.Rename(c.Request.Context(), claims, newName)
		if err != nil {
			s.respondError(c, "ユーザー名変更", err)
			return
		}
		c.JSON(http.StatusOK, renameResponse{User: toUserResponse(res.User), Token: res.Token})
	}
}

// handleRotateKey はAPIキーの再発行を処理するハンドラを返す。
func (s *Server) handleRotateKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, err := s.service.RotateKey(c.Request.Context(), middleware.GetClaims(c))
		if err != nil {
			s.respondError(c, "APIキー再発行", err)
			return
		}
		c.JSON(http.StatusOK, rotateKeyResponse{APIKey: creds.APIKey, Token: creds.Token})
	}
}

// handleUserEvents は自分自身の変更履歴の取得を処理するハンドラを返す。
func (s *Server) handleUserEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := s.service.UserEvents(c.Request.Context(), middleware.GetClaims(c))
		if err != nil {
			s.respondError(c, "変更履歴取得", err)
			return
		}
		resp := eventsResponse{Events: make([]eventResponse, 0, len(events))}
		for _, e := range events {
			resp.Events = append(resp.Events, toEventResponse(e))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleListUsers はユーザー一覧の取得を処理するハンドラを返す。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := s.offset(c)
		if !ok {
			return
		}

		users, err := s.service.ListUsers(c.Request.Context(), middleware.GetClaims(c), offset)
		if err != nil {
			s.respondError(c, "ユーザー一覧取得", err)
			return
		}

		resp := usersResponse{Users: make([]userWithPostsResponse, 0, len(users))}
		for _, u := range users {
			resp.Users = append(resp.Users, userWithPostsResponse{
				ID:    u.User.ID,
				Name:  u.User.Name,
				Posts: toPostResponses(u.Posts),
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleCreatePost は投稿の作成を処理するハンドラを返す。
func (s *Server) handleCreatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			s.respondError(c, "投稿作成", requireClaims(claims))
			return
		}

		var req createPostRequest
		if !s.bindJSON(c, &req) {
			return
		}
		message := strings.TrimSpace(req.Message)
		if message == "" {
			c.JSON(http.StatusBadRequest, []fieldError{blankField("message")})
			return
		}

		post, err := s.service.CreatePost(c.Request.Context(), claims, message, db.Flag(req.Flag))
		if err != nil {
			s.respondError(c, "投稿作成", err)
			return
		}
		c.JSON(http.StatusOK, postEnvelope{Post: toPostResponse(post)})
	}
}

// handleUpdatePost は投稿本文の更新を処理するハンドラを返す。
// 作成者本人以外からの更新は400を返す。
func (s *Server) handleUpdatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			s.respondError(c, "投稿更新", requireClaims(claims))
			return
		}

		var req updatePostRequest
		if !s.bindJSON(c, &req) {
			return
		}
		message := strings.TrimSpace(req.Message)
		if message == "" {
			c.JSON(http.StatusBadRequest, []fieldError{blankField("message")})
			return
		}

		post, err := s.service.UpdatePost(c.Request.Context(), claims, req.PostID, message)
		if err != nil {
			s.respondError(c, "投稿更新", err)
			return
		}
		c.JSON(http.StatusOK, toPostResponse(post))
	}
}

// handleFeed は全体フィードの取得を処理するハンドラを返す。
func (s *Server) handleFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := s.offset(c)
		if !ok {
			return
		}
		posts, err := s.service.Feed(c.Request.Context(), middleware.GetClaims(c), offset)
		s.respondPosts(c, "フィード取得", posts, err)
	}
}

// handleFilter は作成者IDと部分文字列による絞り込みを処理するハンドラを返す。
func (s *Server) handleFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := s.offset(c)
		if !ok {
			return
		}
		posts, err := s.service.Filter(c.Request.Context(), c.Query("userId"), c.Query("subString"), offset)
		s.respondPosts(c, "投稿絞り込み", posts, err)
	}
}

// handleUserPosts はユーザー別投稿一覧の取得を処理するハンドラを返す。
func (s *Server) handleUserPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, ok := s.offset(c)
		if !ok {
			return
		}
		posts, err := s.service.ListUserPosts(c.Request.Context(), middleware.GetClaims(c), c.Param("userId"), offset)
		s.respondPosts(c, "ユーザー別投稿取得", posts, err)
	}
}

func (s *Server) respondPosts(c *gin.Context, op string, posts []db.Post, err error) {
	if err != nil {
		s.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, postsResponse{Posts: toPostResponses(posts)})
}

// respondError はエラーをステータスコードと文字列のボディに変換して返す。
// 内部エラーはログにだけ詳細を出力する。
func (s *Server) respondError(c *gin.Context, op string, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		s.logger.ErrorContext(c.Request.Context(), op+"エラー", "error", err)
	}
	c.JSON(statusOf(code), apperr.MessageOf(err))
}

// statusOf はエラーコードをHTTPステータスに変換する。
// 名前の重複と所有者以外による更新は400として返す。
func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodeAlreadyExists, apperr.CodePermissionDenied, apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fieldError は入力検証エラー配列の要素。
type fieldError struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Msg      string `json:"msg"`
	Location string `json:"location"`
}

func blankField(path string) fieldError {
	return fieldError{Type: "field", Path: path, Msg: "must not be blank", Location: "body"}
}

// bindJSON はボディをreqに読み込む。失敗した場合は400を返してfalseを返す。
// 検証エラーはフィールドごとの配列、それ以外の形式不正は固定文言で返す。
func (s *Server) bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	if tooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return false
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fieldError{
				Type:     "field",
				Path:     fe.Field(),
				Msg:      validationMessage(fe),
				Location: "body",
			})
		}
		c.JSON(http.StatusBadRequest, out)
		return false
	}
	c.JSON(http.StatusBadRequest, msgInvalidBody)
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

// offset は一覧系エンドポイントのオフセットを取得する。
// クエリの ?offset= を優先し、無ければJSONボディの {"offset": n} を読む。
// どちらも無ければ0。不正な値や負の値は400を返してfalseを返す。
func (s *Server) offset(c *gin.Context) (int, bool) {
	n, err := parseOffset(c)
	if tooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return 0, false
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, msgInvalidOffset)
		return 0, false
	}
	return n, true
}

// tooLarge はBodyLimitの上限を超えてボディを読んだことを表すエラーかを判定する。
func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func parseOffset(c *gin.Context) (int, error) {
	if raw, ok := c.GetQuery("offset"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, apperr.InvalidArg(msgInvalidOffset)
		}
		return n, nil
	}

	if c.Request.Body == nil {
		return 0, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return 0, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return 0, nil
	}

	var ob offsetBody
	if err := binding.JSON.BindBody(body, &ob); err != nil {
		return 0, err
	}
	if ob.Offset == nil {
		return 0, nil
	}
	if *ob.Offset < 0 {
		return 0, apperr.InvalidArg(msgInvalidOffset)
	}
	return *ob.Offset, nil
}

var registerTagNamesOnce sync.Once

// registerValidatorTagNames は検証エラーのフィールド名にJSONのキー名を使うよう設定する。
func registerValidatorTagNames() {
	registerTagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
}
