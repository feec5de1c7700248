package feedsync

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nao1215/pushrelay/internal/notification"
	"github.com/nao1215/pushrelay/pkg/event"
)

// State は同期状態。
type State int

const (
	// StateSynced はフィードが最新で、未読フラグが下りている状態。
	StateSynced State = iota
	// StateUnreadPending は受信イベントを観測し、再取得を待っている状態。
	StateUnreadPending
)

func (s State) String() string {
	switch s {
	case StateSynced:
		return "Synced"
	case StateUnreadPending:
		return "UnreadPending"
	}
	return "Unknown"
}

// DefaultFetchTimeout は再取得1回あたりの既定のタイムアウト。
const DefaultFetchTimeout = 10 * time.Second

// Fetcher はサーバーから通知フィードを取得する。
type Fetcher interface {
	FetchFeed(ctx context.Context) ([]notification.Notification, error)
}

// FetcherFunc は関数をFetcherとして使うためのアダプタ。
type FetcherFunc func(ctx context.Context) ([]notification.Notification, error)

// FetchFeed はf(ctx)を呼ぶ。
func (f FetcherFunc) FetchFeed(ctx context.Context) ([]notification.Notification, error) {
	return f(ctx)
}

// Source は受信イベントの購読元。*event.Busが満たす。
type Source interface {
	Subscribe(h event.Handler) (unsubscribe func())
}

// Option はSyncerの設定を変更する。
type Option func(*Syncer)

// WithFetchTimeout は再取得のタイムアウトを変更する。0以下なら変更しない。
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithOnSynced は再取得が成功するたびに呼ばれるコールバックを設定する。
func WithOnSynced(fn func(feed []notification.Notification)) Option {
	return func(s *Syncer) {
		s.onSynced = fn
	}
}

// Syncer は未読フラグとフィードの状態機械。
type Syncer struct {
	fetcher      Fetcher
	fetchTimeout time.Duration
	onSynced     func([]notification.Notification)

	mu      sync.Mutex
	state   State
	feed    []notification.Notification
	lastErr error

	// trigger は保留中の再取得要求。容量1で、UnreadPendingへの遷移時だけ送る。
	trigger chan struct{}
}

// New は初期状態Syncedの新しいSyncerを生成する。
func New(fetcher Fetcher, opts ...Option) *Syncer {
	s := &Syncer{
		fetcher:      fetcher,
		fetchTimeout: DefaultFetchTimeout,
		state:        StateSynced,
		trigger:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleEvent は受信イベントを状態機械に適用する。
// Syncedからの遷移で再取得を1回予約した場合にtrueを返す。
// UnreadPending中のイベントは既に予約済みの再取得にまとめる。
func (s *Syncer) HandleEvent(ev event.Event) bool {
	if !ev.EventType.Valid() {
		log.WithField("event_type", ev.EventType).Warn("[FeedSync] 未知のイベントを無視しました")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnreadPending {
		return false
	}
	s.state = StateUnreadPending

	select {
	case s.trigger <- struct{}{}:
	default:
	}
	entry := log.WithFields(log.Fields{"event_id": ev.ID, "event_type": ev.EventType})
	// 添付データが壊れていても再取得は行う
	if data, err := event.DecodeData[event.PushData](&ev); err != nil {
		entry.WithError(err).Warn("[FeedSync] 通知データを読み取れませんでした")
	} else if data.NotificationID != "" {
		entry = entry.WithField("notification_id", data.NotificationID)
	}
	entry.Debug("[FeedSync] 未読フラグを立てました")
	return true
}

// Unread は未読フラグを返す。
func (s *Syncer) Unread() bool {
	return s.State() == StateUnreadPending
}

// State は現在の同期状態を返す。
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Feed は最後に取得したフィードのコピーを返す。
func (s *Syncer) Feed() []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed := make([]notification.Notification, len(s.feed))
	copy(feed, s.feed)
	return feed
}

// LastError は直近の再取得の失敗を返す。成功していればnil。
func (s *Syncer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Run はsrcを購読し、ctxが終わるまで再取得要求を処理する。
// 戻る時には必ず購読を解除する。
func (s *Syncer) Run(ctx context.Context, src Source) error {
	unsubscribe := src.Subscribe(func(ev event.Event) {
		s.HandleEvent(ev)
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.trigger:
			if err := s.sync(ctx, true); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Refresh はフィードを取得する。同期状態は変えない。起動直後の初回取得に使う。
func (s *Syncer) Refresh(ctx context.Context) error {
	return s.sync(ctx, false)
}

// sync はフィードを1回取得する。settleがtrueなら結果に関わらずSyncedへ戻し、
// 失敗しても次のイベントで再び再取得できるようにする。
func (s *Syncer) sync(ctx context.Context, settle bool) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	feed, err := s.fetcher.FetchFeed(fetchCtx)

	s.mu.Lock()
	if settle {
		s.state = StateSynced
	}
	if err != nil {
		s.lastErr = errors.Wrap(err, "フィードの再取得に失敗")
		s.mu.Unlock()
		log.WithError(err).Warn("[FeedSync] フィードの再取得に失敗しました")
		return s.LastError()
	}
	s.feed = feed
	s.lastErr = nil
	onSynced := s.onSynced
	s.mu.Unlock()

	log.WithField("count", len(feed)).Info("[FeedSync] フィードを同期しました")
	if onSynced != nil {
		onSynced(feed)
	}
	return nil
}
