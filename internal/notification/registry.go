package notification

import "sync"

// TokenRegistry は現在有効な配信先トークンを1つだけ保持する。
// 登録は常に上書きで、最後の書き込みが勝つ。
type TokenRegistry struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewTokenRegistry は未登録状態のTokenRegistryを生成する。
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{}
}

// Register はトークンを登録し、以前のトークンを置き換える。形式は検証しない。
func (r *TokenRegistry) Register(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
	r.set = true
}

// Active は現在のトークンを返す。未登録ならokはfalse。
func (r *TokenRegistry) Active() (token string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token, r.set
}
