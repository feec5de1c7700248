package notification

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nao1215/pushrelay/internal/config"
	"github.com/nao1215/pushrelay/internal/pushgateway"
	"github.com/nao1215/pushrelay/pkg/middleware"
)

// maxDelay は送信要求で指定できる待機時間の上限。
const maxDelay = 24 * time.Hour

// Server はプッシュ通知リレーのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はrouterを公開するHTTPサーバー。
	httpServer *http.Server
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store は通知フィード。
	store *Store
	// registry は配信先トークン。
	registry *TokenRegistry
	// dispatcher は送信要求の処理。
	dispatcher *Dispatcher
}

// NewServer は新しいリレーサーバーを生成する。
// データベースの初期化を行い、SeedMessageが設定されていれば最初の通知を投入する。
func NewServer(ctx context.Context, cfg *config.Config, gateway pushgateway.Gateway) (*Server, error) {
	db, err := OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	s := newServer(db, gateway, cfg)
	if cfg.SeedMessage != "" {
		if _, err := s.store.Append(ctx, cfg.SeedMessage); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "初期通知の投入に失敗")
		}
	}
	return s, nil
}

func newServer(db *sql.DB, gateway pushgateway.Gateway, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	store := NewStore(db)
	registry := NewTokenRegistry()
	s := &Server{
		router:     router,
		db:         db,
		store:      store,
		registry:   registry,
		dispatcher: NewDispatcher(store, registry, gateway, cfg.DeliveryTimeout),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes(cfg.SendRateLimit)
	return s
}

// Run はHTTPサーバーを起動する。Shutdownで停止した場合はnilを返す。
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown はHTTPサーバーを止め、実行中の配信の終了を待ってからデータベースを閉じる。
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		firstErr = errors.Wrap(err, "HTTPサーバーの停止に失敗")
	}
	if err := s.dispatcher.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "データベースのクローズに失敗")
	}
	return firstErr
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(sendRateLimit uint) {
	api := s.router.Group("/api/v1")
	{
		notifications := api.Group("/notifications")
		{
			// 通知フィード取得
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllAsRead())
			// 通知送信
			notifications.POST("/send", middleware.RateLimit(time.Minute, sendRateLimit), s.handleSend())
		}

		// 配信先トークンの登録
		api.POST("/push-token", s.handleRegisterToken())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "pushrelay"})
	})
}

// handleList は通知フィードを挿入順で返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.store.List(c.Request.Context())
		if err != nil {
			log.WithError(err).Error("[API] 通知一覧取得エラー")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

// handleListUnread は未読の通知を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.store.ListUnread(c.Request.Context())
		if err != nil {
			log.WithError(err).Error("[API] 未読通知一覧取得エラー")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

// handleMarkAsRead は指定された通知を既読にし、更新後の通知を返すハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.store.MarkRead(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}
		if err != nil {
			log.WithError(err).Error("[API] 通知既読処理エラー")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

// handleMarkAllAsRead は全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := s.store.MarkAllRead(c.Request.Context())
		if err != nil {
			log.WithError(err).Error("[API] 全通知既読処理エラー")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// sendRequest は通知送信リクエストのJSON構造。
type sendRequest struct {
	// Message は通知本文。空文字列も許可し、省略のみを拒否する。
	Message *string `json:"message" binding:"required"`
	// DelayMs は配信前の待機時間（ミリ秒）。
	DelayMs int64 `json:"delay_ms" binding:"gte=0"`
	// Delay は配信前の待機時間（秒）。DelayMsが指定されていれば無視する。
	Delay int64 `json:"delay" binding:"gte=0"`
	// Data は通知に添付する追加データ。
	Data map[string]string `json:"data"`
}

// delay は待機時間を返す。maxDelayを超える場合はfalseを返す。
// Durationへの変換で桁あふれしないよう、変換前の値で上限を確認する。
func (r sendRequest) delay() (time.Duration, bool) {
	if r.DelayMs > 0 {
		if r.DelayMs > maxDelay.Milliseconds() {
			return 0, false
		}
		return time.Duration(r.DelayMs) * time.Millisecond, true
	}
	if r.Delay > int64(maxDelay/time.Second) {
		return 0, false
	}
	return time.Duration(r.Delay) * time.Second, true
}

// handleSend は通知を作成して配信するハンドラ。
// 待機時間を指定した場合、配信が終わるまでレスポンスを返さない。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		delay, ok := req.delay()
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("待機時間は%s以下で指定してください", maxDelay)})
			return
		}

		out, err := s.dispatcher.Send(c.Request.Context(), SendRequest{
			Message: *req.Message,
			Delay:   delay,
			Data:    req.Data,
		})
		switch {
		case errors.Is(err, ErrDispatcherClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "サーバーは停止処理中です"})
			return
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			log.WithError(err).Warn("[API] 配信結果を待たずにリクエストが終了しました")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "配信結果を待てませんでした"})
			return
		case err != nil:
			log.WithError(err).Error("[API] 通知送信エラー")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の送信に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// registerTokenRequest はトークン登録リクエストのJSON構造。
type registerTokenRequest struct {
	// Token は配信先のプッシュトークン。
	Token string `json:"token" binding:"required"`
}

// handleRegisterToken は配信先トークンを登録（置き換え）するハンドラ。
func (s *Server) handleRegisterToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		s.registry.Register(req.Token)
		log.Info("[API] プッシュトークンを登録しました")
		c.JSON(http.StatusOK, gin.H{"registered": true})
	}
}
