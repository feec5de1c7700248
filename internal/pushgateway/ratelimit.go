package pushgateway

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RateLimited は送信の間隔を制限するGatewayのラッパー。
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimited はperSecond件/秒、バースト1でnextへの送信を制限する。
func NewRateLimited(next Gateway, perSecond float64) *RateLimited {
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Deliver は送信枠が空くまで待ってからnextへ送信する。
func (r *RateLimited) Deliver(ctx context.Context, token string, payload Payload) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "送信枠の待機を中断")
	}
	return r.next.Deliver(ctx, token, payload)
}
