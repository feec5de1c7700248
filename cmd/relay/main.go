// プッシュ通知リレーサーバーのエントリポイント。
// 通知フィードを保持し、登録されたトークンへExpoまたはFCM経由で配信する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nao1215/pushrelay/internal/config"
	"github.com/nao1215/pushrelay/internal/notification"
	"github.com/nao1215/pushrelay/internal/pushgateway"
)

// shutdownTimeout は停止処理の上限時間。実行中の配信はこの間に終わらせる。
const shutdownTimeout = 35 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	config.SetupLogger(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway, err := newGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("プッシュゲートウェイの初期化に失敗: %v", err)
	}

	server, err := notification.NewServer(ctx, cfg, gateway)
	if err != nil {
		log.Fatalf("リレーサーバーの初期化に失敗: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"port": cfg.Port, "gateway": cfg.Gateway}).Info("リレーサーバーを起動します")
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("リレーサーバーの起動に失敗: %v", err)
		}
		return
	case <-ctx.Done():
	}

	log.Info("リレーサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("停止処理でエラーが発生しました")
		os.Exit(1)
	}
}

// newGateway は設定に応じたゲートウェイを生成する。
// GatewayRatePerSecondが正なら呼び出し頻度を制限する。
func newGateway(ctx context.Context, cfg *config.Config) (pushgateway.Gateway, error) {
	var gw pushgateway.Gateway
	switch cfg.Gateway {
	case config.GatewayFCM:
		fcm, err := pushgateway.NewFCM(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		gw = fcm
	default:
		gw = pushgateway.NewExpo(pushgateway.ExpoConfig{
			Host:        cfg.ExpoHost,
			AccessToken: cfg.ExpoAccessToken,
			Timeout:     cfg.DeliveryTimeout,
		})
	}

	if cfg.GatewayRatePerSecond > 0 {
		gw = pushgateway.NewRateLimited(gw, cfg.GatewayRatePerSecond)
	}
	return gw, nil
}
