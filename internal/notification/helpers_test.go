package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/pushrelay/internal/pushgateway"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestStore はインメモリSQLiteを使うStoreを構築する。
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := OpenDB(t.Context(), ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

// deliverCall はfakeGatewayが受け取った1回の呼び出し。
type deliverCall struct {
	token   string
	payload pushgateway.Payload
	at      time.Time
}

// fakeGateway は呼び出しを記録するテスト用のGateway。
type fakeGateway struct {
	mu    sync.Mutex
	calls []deliverCall
	// err がnilでなければ全呼び出しでこのエラーを返す。
	err error
	// block がnilでなければ、閉じられるまで返らない。
	block chan struct{}
}

func (g *fakeGateway) Deliver(ctx context.Context, token string, payload pushgateway.Payload) error {
	g.mu.Lock()
	g.calls = append(g.calls, deliverCall{token: token, payload: payload, at: time.Now()})
	block := g.block
	err := g.err
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *fakeGateway) Calls() []deliverCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]deliverCall(nil), g.calls...)
}

// waitFor はcondがtrueになるまで待つ。timeout内に満たされなければ失敗する。
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%v以内に条件が満たされなかった", timeout)
}
