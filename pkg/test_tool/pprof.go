package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"chat_realtime_service/pkg/config"
	"chat_realtime_service/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 啟動 pprof 監控伺服器，production 環境不啟動
// 只監聽 127.0.0.1，避免對外暴露內部狀態
func StartPprof(addr string) {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}
	if addr == "" {
		addr = "127.0.0.1:6060"
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Warn("pprof server failed", zap.Error(err))
		}
	}()
}

// 確認 pprof 是否啟動:
//   curl http://localhost:6060/debug/pprof/
// CPU:
//   go tool pprof http://localhost:6060/debug/pprof/profile?seconds=30
// Heap:
//   go tool pprof http://localhost:6060/debug/pprof/heap
