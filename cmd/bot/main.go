// Package main 是环形套利机器人的入口点。
// 机器人订阅 Bitfinex 的订单簿行情与账户事件，周期性求解
// 从起始币种出发又回到起始币种的环形兑换路径，利润为正且
// 折美元超过阈值时生成一条多腿订单链并串行执行。
//
// API 密钥从环境变量 BITFINEX_API_KEY / BITFINEX_API_SECRET 读取，
// Telegram 告警 token 从 TELEGRAM_BOT_TOKEN 读取。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"circular-arbitrage-bot/internal/alert"
	"circular-arbitrage-bot/internal/config"
	"circular-arbitrage-bot/internal/core/bot"
	"circular-arbitrage-bot/internal/exchange/bitfinex"
	"circular-arbitrage-bot/internal/output/jsonl"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在时静默跳过（生产环境直接注入环境变量）
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	creds := bitfinex.Credentials{
		Key:    os.Getenv("BITFINEX_API_KEY"),
		Secret: os.Getenv("BITFINEX_API_SECRET"),
	}
	if cfg.Trading.Enabled && !creds.Valid() {
		fmt.Fprintln(os.Stderr, "启用交易时必须设置 BITFINEX_API_KEY / BITFINEX_API_SECRET")
		os.Exit(1)
	}

	// 告警通道：Telegram 未启用时退回日志告警
	var alerter alert.Alerter = alert.NewLogAlerter(logger)
	if cfg.Telegram.Enabled {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			fmt.Fprintln(os.Stderr, "启用 Telegram 告警时必须设置 TELEGRAM_BOT_TOKEN")
			os.Exit(1)
		}
		alerter = alert.NewTelegramAlerter(token, cfg.Telegram.ChatID, 10*time.Second, logger)
	}

	var sink *jsonl.Sink
	if cfg.Output.BookSnapshotsEnabled || cfg.Output.SolutionsEnabled {
		sink, err = jsonl.NewSink(cfg.Output.Dir,
			cfg.Output.BookSnapshotsEnabled, cfg.Output.SolutionsEnabled,
			cfg.Output.BufferSize, logger)
		if err != nil {
			logger.Error("创建落盘出口失败", zap.Error(err))
			os.Exit(1)
		}
	}

	client := bitfinex.NewClient(&cfg.WS, creds, cfg.Symbols, logger)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()

	if err := client.Connect(startCtx); err != nil {
		logger.Error("Bitfinex 连接失败", zap.Error(err))
		os.Exit(1)
	}
	if err := client.Authenticate(); err != nil {
		logger.Error("Bitfinex 认证失败", zap.Error(err))
		os.Exit(1)
	}
	if err := client.Subscribe(); err != nil {
		logger.Error("Bitfinex 订阅失败", zap.Error(err))
		os.Exit(1)
	}

	go client.Run(ctx)

	b := bot.New(cfg, client, client.BookCh(), client.AccountCh(), sink, alerter, logger)
	b.Run(ctx)

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Close()
		if sink != nil {
			sink.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
