// Package config は環境変数からリレーサーバーとクライアントの設定を読み込む。
//
// GIN_MODE=release 以外では、カレントディレクトリの .env を先に読み込む。
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Prefix は環境変数名の接頭辞。
const Prefix = "pushrelay"

const (
	// GatewayExpo はExpoプッシュサービス経由で配信する。
	GatewayExpo = "expo"
	// GatewayFCM はFirebase Cloud Messaging経由で配信する。
	GatewayFCM = "fcm"
)

// Config はリレーサーバーの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `envconfig:"port" default:"4000"`
	// DatabaseDSN は通知ストアのSQLite DSN。既定はインメモリ。
	DatabaseDSN string `envconfig:"database_dsn" default:":memory:"`
	// Gateway は使用するプッシュゲートウェイ（expo または fcm）。
	Gateway string `envconfig:"gateway" default:"expo"`
	// ExpoHost はExpoプッシュAPIのホスト。空ならSDKの既定値。
	ExpoHost string `envconfig:"expo_host"`
	// ExpoAccessToken はExpoのアクセストークン（任意）。
	ExpoAccessToken string `envconfig:"expo_access_token"`
	// FirebaseCredentialsFile はFCM用サービスアカウントJSONのパス。
	FirebaseCredentialsFile string `envconfig:"firebase_credentials_file" default:"./google-services.json"`
	// DeliveryTimeout はゲートウェイ呼び出し1回あたりのタイムアウト。
	DeliveryTimeout time.Duration `envconfig:"delivery_timeout" default:"30s"`
	// GatewayRatePerSecond はゲートウェイ呼び出しの毎秒上限。0なら無制限。
	GatewayRatePerSecond float64 `envconfig:"gateway_rate_per_second" default:"0"`
	// SendRateLimit は送信APIへのクライアントIPごとの毎分上限。0なら無制限。
	SendRateLimit uint `envconfig:"send_rate_limit" default:"0"`
	// AllowedOrigins はCORSで許可するオリジン。空なら全許可。
	AllowedOrigins []string `envconfig:"allowed_origins"`
	// SeedMessage は起動時にフィードへ投入する通知。空文字列を明示すると投入しない。
	SeedMessage string `envconfig:"seed_message" default:"Hello World"`
	// LogLevel はlogrusのログレベル。
	LogLevel string `envconfig:"log_level" default:"info"`
	// LogJSON がtrueならJSON形式でログを出力する。
	LogJSON bool `envconfig:"log_json" default:"false"`
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	switch c.Gateway {
	case GatewayExpo, GatewayFCM:
	default:
		return errors.Errorf("未知のゲートウェイ: %q", c.Gateway)
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("delivery_timeout は正の値であること")
	}
	if c.GatewayRatePerSecond < 0 {
		return errors.New("gateway_rate_per_second は0以上であること")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level が不正")
	}
	return nil
}

// ClientConfig はフィード同期クライアントの設定。
type ClientConfig struct {
	// RelayURL はリレーサーバーのベースURL。
	RelayURL string `envconfig:"relay_url" default:"http://localhost:4000"`
	// FetchTimeout はフィード再取得1回あたりのタイムアウト。
	FetchTimeout time.Duration `envconfig:"fetch_timeout" default:"10s"`
	// LogLevel はlogrusのログレベル。
	LogLevel string `envconfig:"log_level" default:"info"`
}

// Load はサーバー設定を読み込む。
func Load() (*Config, error) {
	loadDotEnv()

	c := &Config{}
	if err := envconfig.Process(Prefix, c); err != nil {
		return nil, errors.Wrap(err, "環境変数の読み込みに失敗")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadClient はクライアント設定を読み込む。
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	c := &ClientConfig{}
	if err := envconfig.Process(Prefix, c); err != nil {
		return nil, errors.Wrap(err, "環境変数の読み込みに失敗")
	}
	return c, nil
}

// SetupLogger はlogrusのレベルと出力形式を設定する。
func SetupLogger(level string, json bool) {
	lv, err := log.ParseLevel(level)
	if err != nil {
		lv = log.InfoLevel
	}
	log.SetLevel(lv)
	if json {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func loadDotEnv() {
	if os.Getenv("GIN_MODE") == "release" {
		return
	}
	if err := godotenv.Load("./.env"); err != nil && !os.IsNotExist(err) {
		log.Warnf("[Config] .env を読み込めませんでした: %v", err)
	}
}
