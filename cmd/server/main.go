package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/betbot/nftmarket/internal/app"
	"github.com/betbot/nftmarket/pkg/config"
	"github.com/betbot/nftmarket/pkg/logger"
)

func main() {
	// .env 可选，缺失时使用真实环境变量
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "配置文件路径（yaml/json，可选）")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Errorf("启动失败: %v", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.ListenAndServe() }()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	exitCode := 0
	select {
	case sig := <-stopCh:
		logger.Infof("收到信号 %s，开始关闭", sig)
	case err := <-errCh:
		if err != nil {
			logger.Errorf("HTTP 服务异常退出: %v", err)
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if failed := a.Shutdown(ctx); failed > 0 {
		logger.Warnf("关闭完成，%d 个组件关闭失败", failed)
		exitCode = 1
	} else {
		logger.Info("服务已停止")
	}
	os.Exit(exitCode)
}
