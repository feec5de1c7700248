package config

import (
	"testing"
	"time"
)

// TestLoad は環境変数からの読み込みを検証する。
// t.Setenvを使うため並列実行しない。
func TestLoad(t *testing.T) {
	t.Run("未設定なら既定値が使われること", func(t *testing.T) {
		t.Setenv("GIN_MODE", "release")

		c, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if c.DatabaseDSN != ":memory:" {
			t.Errorf("DatabaseDSN = %q", c.DatabaseDSN)
		}
		if c.Gateway != GatewayExpo {
			t.Errorf("Gateway = %q, want %q", c.Gateway, GatewayExpo)
		}
		if c.DeliveryTimeout != 30*time.Second {
			t.Errorf("DeliveryTimeout = %v, want 30s", c.DeliveryTimeout)
		}
		if c.SeedMessage != "Hello World" {
			t.Errorf("SeedMessage = %q, want %q", c.SeedMessage, "Hello World")
		}
	})

	t.Run("空文字列を指定すると初期通知を投入しないこと", func(t *testing.T) {
		t.Setenv("GIN_MODE", "release")
		t.Setenv("PUSHRELAY_SEED_MESSAGE", "")

		c, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if c.SeedMessage != "" {
			t.Errorf("SeedMessage = %q, want empty", c.SeedMessage)
		}
	})

	t.Run("環境変数で上書きできること", func(t *testing.T) {
		t.Setenv("GIN_MODE", "release")
		t.Setenv("PUSHRELAY_PORT", "8086")
		t.Setenv("PUSHRELAY_GATEWAY", "fcm")
		t.Setenv("PUSHRELAY_DELIVERY_TIMEOUT", "5s")
		t.Setenv("PUSHRELAY_ALLOWED_ORIGINS", "http://localhost:19006,https://example.com")
		t.Setenv("PUSHRELAY_SEED_MESSAGE", "Welcome")

		c, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if c.Port != "8086" || c.Gateway != GatewayFCM || c.DeliveryTimeout != 5*time.Second {
			t.Errorf("Config = %+v", c)
		}
		if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "https://example.com" {
			t.Errorf("AllowedOrigins = %v", c.AllowedOrigins)
		}
		if c.SeedMessage != "Welcome" {
			t.Errorf("SeedMessage = %q", c.SeedMessage)
		}
	})

	t.Run("未知のゲートウェイはエラーになること", func(t *testing.T) {
		t.Setenv("GIN_MODE", "release")
		t.Setenv("PUSHRELAY_GATEWAY", "apns")

		if _, err := Load(); err == nil {
			t.Error("エラーが返されなかった")
		}
	})

	t.Run("不正なログレベルはエラーになること", func(t *testing.T) {
		t.Setenv("GIN_MODE", "release")
		t.Setenv("PUSHRELAY_LOG_LEVEL", "loud")

		if _, err := Load(); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

// TestLoadClient はクライアント設定の既定値を検証する。
func TestLoadClient(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("PUSHRELAY_RELAY_URL", "http://relay:4000")

	c, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if c.RelayURL != "http://relay:4000" {
		t.Errorf("RelayURL = %q", c.RelayURL)
	}
	if c.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", c.FetchTimeout)
	}
}
