package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nao1215/pushrelay/internal/pushgateway"
)

// ErrDispatcherClosed はShutdown後に送信しようとしたことを表す。
var ErrDispatcherClosed = errors.New("配信処理は停止しています")

// Reason は送信結果の理由。
type Reason string

const (
	// ReasonDelivered はゲートウェイへの送信が成功したことを表す。
	ReasonDelivered Reason = "delivered"
	// ReasonNoActiveToken は配信先トークンが未登録だったことを表す。通知は作成されない。
	ReasonNoActiveToken Reason = "no_active_token"
	// ReasonGatewayError はゲートウェイへの送信が失敗したことを表す。通知はフィードに残る。
	ReasonGatewayError Reason = "gateway_error"
	// ReasonShutdown は待機中に配信処理が停止したことを表す。通知は配信前のまま残る。
	ReasonShutdown Reason = "shutdown"
)

// SendRequest は1件の送信要求。
type SendRequest struct {
	// Message は通知本文。
	Message string
	// Delay は配信前の待機時間。0以下なら待機しない。
	Delay time.Duration
	// Data は通知に添付する追加データ。
	Data map[string]string
}

// Outcome は送信の結果。配信失敗のような想定内の結果はエラーではなくここで表す。
type Outcome struct {
	// Delivered はゲートウェイへの送信が成功したかどうか。
	Delivered bool `json:"delivered"`
	// Reason は結果の理由。
	Reason Reason `json:"reason"`
	// Notification は作成された通知。トークン未登録時はnil。
	Notification *Notification `json:"notification,omitempty"`
	// Err はゲートウェイが返したエラー。
	Err error `json:"-"`
}

// Dispatcher は送信要求を受け、通知の作成・待機・配信を順に行う。
type Dispatcher struct {
	store    *Store
	registry *TokenRegistry
	gateway  pushgateway.Gateway
	// timeout はゲートウェイ呼び出し1回あたりのタイムアウト。
	timeout time.Duration

	// ctx は配信前の待機を打ち切るためのもの。Shutdownでキャンセルされる。
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher は新しいDispatcherを生成する。
func NewDispatcher(store *Store, registry *TokenRegistry, gateway pushgateway.Gateway, timeout time.Duration) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:    store,
		registry: registry,
		gateway:  gateway,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// job は1件の配信ジョブ。
type job struct {
	id           string
	notification Notification
	req          SendRequest
}

// Send は通知を作成し、必要なら待機してからゲートウェイへ1回だけ配信する。
//
// トークン未登録なら通知を作らずにReasonNoActiveTokenを返す。
// 配信はDispatcher自身のgoroutineで行われ、ctxが先に終わっても処理は続く。
// その場合、呼び出し側にはctx.Err()が返る。
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (Outcome, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Outcome{}, ErrDispatcherClosed
	}
	// Shutdownとの競合を避けるため、ロック中にジョブ数を確保する
	d.wg.Add(1)
	d.mu.Unlock()

	if _, ok := d.registry.Active(); !ok {
		d.wg.Done()
		log.Warn("[Dispatch] プッシュトークンが未登録のため送信しません")
		return Outcome{Delivered: false, Reason: ReasonNoActiveToken}, nil
	}

	n, err := d.store.Append(ctx, req.Message)
	if err != nil {
		d.wg.Done()
		return Outcome{}, err
	}

	j := job{id: uuid.New().String(), notification: n, req: req}
	log.WithFields(log.Fields{
		"job_id":          j.id,
		"notification_id": n.ID,
		"delay":           req.Delay.String(),
	}).Info("[Dispatch] 通知を作成しました")

	done := make(chan Outcome, 1)
	go func() {
		defer d.wg.Done()
		done <- d.run(j)
	}()

	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// run は待機と配信を行い、結果を通知の配信状態に反映する。
func (d *Dispatcher) run(j job) Outcome {
	entry := log.WithFields(log.Fields{"job_id": j.id, "notification_id": j.notification.ID})
	n := j.notification

	if j.req.Delay > 0 {
		timer := time.NewTimer(j.req.Delay)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			entry.Warn("[Dispatch] 待機中に停止したため配信しません")
			return Outcome{Delivered: false, Reason: ReasonShutdown, Notification: &n}
		}
	}

	// 待機中に置き換えられた場合は最新のトークンへ送る
	token, ok := d.registry.Active()
	if !ok {
		d.setStatus(entry, n.ID, DeliveryFailed)
		n.DeliveryStatus = DeliveryFailed
		return Outcome{Delivered: false, Reason: ReasonNoActiveToken, Notification: &n}
	}

	data := make(map[string]string, len(j.req.Data)+1)
	for k, v := range j.req.Data {
		data[k] = v
	}
	data["notification_id"] = n.ID

	// 送信中の呼び出しはShutdownでも打ち切らず、タイムアウトまで待つ
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.gateway.Deliver(ctx, token, pushgateway.Payload{Body: n.Message, Data: data}); err != nil {
		entry.WithError(err).Error("[Dispatch] 通知の配信に失敗しました")
		d.setStatus(entry, n.ID, DeliveryFailed)
		n.DeliveryStatus = DeliveryFailed
		return Outcome{Delivered: false, Reason: ReasonGatewayError, Notification: &n, Err: err}
	}

	entry.Info("[Dispatch] 通知を配信しました")
	d.setStatus(entry, n.ID, DeliveryDelivered)
	n.DeliveryStatus = DeliveryDelivered
	return Outcome{Delivered: true, Reason: ReasonDelivered, Notification: &n}
}

// setStatus は配信状態を記録する。記録の失敗は配信結果を変えない。
func (d *Dispatcher) setStatus(entry *log.Entry, id string, status DeliveryStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.SetDeliveryStatus(ctx, id, status); err != nil {
		entry.WithError(err).Warn("[Dispatch] 配信状態の記録に失敗しました")
	}
}

// Shutdown は新しい送信を拒否し、待機中の配信を打ち切って実行中のジョブの終了を待つ。
// 待機中だった通知は配信前のままフィードに残る。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "配信ジョブの終了待ちを中断")
	}
}
