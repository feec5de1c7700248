package feedsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/pushrelay/internal/notification"
	"github.com/nao1215/pushrelay/pkg/event"
)

// blockingFetcher はreleaseが閉じられるまで取得を止めるテスト用Fetcher。
type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
	feed    []notification.Notification
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (f *blockingFetcher) FetchFeed(ctx context.Context) ([]notification.Notification, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.feed, nil
}

func mustEvent(t *testing.T, eventType event.Type) event.Event {
	t.Helper()
	ev, err := event.New(eventType, event.PushData{NotificationID: "1", Body: "hello"})
	if err != nil {
		t.Fatalf("event.New() error = %v", err)
	}
	return *ev
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("条件が満たされないままタイムアウトした")
}

// startRun はSyncer.Runを起動し、購読が完了するまで待つ。
func startRun(t *testing.T, s *Syncer, bus *event.Bus) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, bus) }()
	waitFor(t, func() bool { return bus.Len() == 1 })
	t.Cleanup(cancelFn)
	return cancelFn, errCh
}

func TestStateString(t *testing.T) {
	t.Parallel()

	if StateSynced.String() != "Synced" || StateUnreadPending.String() != "UnreadPending" {
		t.Errorf("String() = %q, %q", StateSynced, StateUnreadPending)
	}
	if State(99).String() != "Unknown" {
		t.Errorf("String() = %q, want Unknown", State(99))
	}
}

func TestSyncerHandleEvent(t *testing.T) {
	t.Parallel()

	t.Run("初期状態はSyncedで未読フラグが下りていること", func(t *testing.T) {
		t.Parallel()

		s := New(newBlockingFetcher())
		if s.State() != StateSynced || s.Unread() {
			t.Errorf("State() = %v, Unread() = %v", s.State(), s.Unread())
		}
	})

	t.Run("受信と応答のどちらでもUnreadPendingへ遷移すること", func(t *testing.T) {
		t.Parallel()

		for _, typ := range []event.Type{event.TypeNotificationReceived, event.TypeNotificationResponse} {
			s := New(newBlockingFetcher())
			if !s.HandleEvent(mustEvent(t, typ)) {
				t.Errorf("%s: HandleEvent() = false, want true", typ)
			}
			if s.State() != StateUnreadPending || !s.Unread() {
				t.Errorf("%s: State() = %v", typ, s.State())
			}
		}
	})

	t.Run("UnreadPending中のイベントは再取得を追加しないこと", func(t *testing.T) {
		t.Parallel()

		s := New(newBlockingFetcher())
		s.HandleEvent(mustEvent(t, event.TypeNotificationReceived))
		if s.HandleEvent(mustEvent(t, event.TypeNotificationReceived)) {
			t.Error("2回目のHandleEvent() = true, want false")
		}
		if len(s.trigger) != 1 {
			t.Errorf("保留中の再取得 = %d, want 1", len(s.trigger))
		}
	})

	t.Run("添付データが壊れていても再取得を予約すること", func(t *testing.T) {
		t.Parallel()

		s := New(newBlockingFetcher())
		ev := mustEvent(t, event.TypeNotificationReceived)
		ev.Data = []byte(`{"notification_id":`)
		if !s.HandleEvent(ev) {
			t.Error("HandleEvent() = false, want true")
		}
		if s.State() != StateUnreadPending {
			t.Errorf("State() = %v, want UnreadPending", s.State())
		}
	})

	t.Run("未知のイベントは無視すること", func(t *testing.T) {
		t.Parallel()

		s := New(newBlockingFetcher())
		if s.HandleEvent(event.Event{EventType: "Unknown"}) {
			t.Error("HandleEvent() = true, want false")
		}
		if s.State() != StateSynced {
			t.Errorf("State() = %v, want Synced", s.State())
		}
	})
}

func TestSyncerRun(t *testing.T) {
	t.Parallel()

	t.Run("再取得中に3件届いても再取得は1回だけであること", func(t *testing.T) {
		t.Parallel()

		fetcher := newBlockingFetcher()
		fetcher.feed = []notification.Notification{{ID: "1", Message: "hello"}}
		bus := event.NewBus()
		s := New(fetcher)
		startRun(t, s, bus)

		bus.Publish(mustEvent(t, event.TypeNotificationReceived))
		<-fetcher.started
		bus.Publish(mustEvent(t, event.TypeNotificationReceived))
		bus.Publish(mustEvent(t, event.TypeNotificationResponse))
		if s.State() != StateUnreadPending {
			t.Errorf("再取得中のState() = %v, want UnreadPending", s.State())
		}

		close(fetcher.release)
		waitFor(t, func() bool { return s.State() == StateSynced })

		time.Sleep(50 * time.Millisecond)
		if got := fetcher.calls.Load(); got != 1 {
			t.Errorf("再取得回数 = %d, want 1", got)
		}
		if s.Unread() {
			t.Error("再取得後も未読フラグが立っている")
		}
		if feed := s.Feed(); len(feed) != 1 || feed[0].Message != "hello" {
			t.Errorf("Feed() = %+v", feed)
		}
	})

	t.Run("Synced復帰後のイベントで再び再取得されること", func(t *testing.T) {
		t.Parallel()

		fetcher := newBlockingFetcher()
		close(fetcher.release)
		bus := event.NewBus()
		s := New(fetcher)
		startRun(t, s, bus)

		bus.Publish(mustEvent(t, event.TypeNotificationReceived))
		waitFor(t, func() bool { return fetcher.calls.Load() == 1 && s.State() == StateSynced })

		bus.Publish(mustEvent(t, event.TypeNotificationReceived))
		waitFor(t, func() bool { return fetcher.calls.Load() == 2 && s.State() == StateSynced })
	})

	t.Run("再取得に失敗してもSyncedへ戻りエラーが記録されること", func(t *testing.T) {
		t.Parallel()

		fetcher := newBlockingFetcher()
		fetcher.err = errors.New("connection refused")
		close(fetcher.release)
		bus := event.NewBus()
		s := New(fetcher)
		startRun(t, s, bus)

		bus.Publish(mustEvent(t, event.TypeNotificationReceived))
		waitFor(t, func() bool { return s.LastError() != nil })

		if s.State() != StateSynced {
			t.Errorf("State() = %v, want Synced", s.State())
		}
		if !errors.Is(s.LastError(), fetcher.err) {
			t.Errorf("LastError() = %v", s.LastError())
		}
	})

	t.Run("終了時に購読を解除すること", func(t *testing.T) {
		t.Parallel()

		bus := event.NewBus()
		s := New(newBlockingFetcher())
		cancel, done := startRun(t, s, bus)

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run() error = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Runが終了しない")
		}
		if bus.Len() != 0 {
			t.Errorf("購読者数 = %d, want 0", bus.Len())
		}
	})

	t.Run("成功時にコールバックが呼ばれること", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var got []notification.Notification
		fetcher := FetcherFunc(func(context.Context) ([]notification.Notification, error) {
			return []notification.Notification{{ID: "1"}, {ID: "2"}}, nil
		})
		s := New(fetcher, WithOnSynced(func(feed []notification.Notification) {
			mu.Lock()
			defer mu.Unlock()
			got = feed
		}))

		if err := s.Refresh(t.Context()); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if len(got) != 2 {
			t.Errorf("コールバックの件数 = %d, want 2", len(got))
		}
	})

	t.Run("取得がタイムアウトするとエラーになること", func(t *testing.T) {
		t.Parallel()

		s := New(newBlockingFetcher(), WithFetchTimeout(20*time.Millisecond))
		err := s.Refresh(t.Context())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Refresh() error = %v, want DeadlineExceeded", err)
		}
	})
}

func TestSyncerRefresh(t *testing.T) {
	t.Parallel()

	s := New(FetcherFunc(func(context.Context) ([]notification.Notification, error) {
		return []notification.Notification{{ID: "1"}}, nil
	}))
	s.HandleEvent(mustEvent(t, event.TypeNotificationReceived))

	if err := s.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if s.State() != StateUnreadPending {
		t.Errorf("State() = %v, want UnreadPending", s.State())
	}
	if len(s.Feed()) != 1 {
		t.Errorf("Feed() 件数 = %d, want 1", len(s.Feed()))
	}
}
