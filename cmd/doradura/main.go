// Command doradura runs the download orchestration core as a headless
// service: it wires the Job Store, Priority Queue, Rate Limiter, Source
// Registry, Scheduler Loop and Worker pool together and builds the
// submit_job entry point (submit.Submitter). No transport for it is
// exposed here; a chat-handler collaborator supplies its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doradura/internal/account"
	"doradura/internal/chatapi"
	"doradura/internal/config"
	"doradura/internal/history"
	"doradura/internal/logger"
	"doradura/internal/operator"
	"doradura/internal/progress"
	"doradura/internal/queue"
	"doradura/internal/ratelimit"
	"doradura/internal/scheduler"
	"doradura/internal/source"
	"doradura/internal/source/directhttp"
	"doradura/internal/source/extractor"
	"doradura/internal/storage"
	"doradura/internal/submit"
	"doradura/internal/transcribe"
	"doradura/internal/urlcache"
	"doradura/internal/worker"
)

func main() {
	dataDir := os.Getenv("DORADURA_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = dataDir + "/downloads"
	}

	if err := logger.Init(dataDir, cfg.LogMaxSizeMB, cfg.LogMaxBackups); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	db, err := storage.New(cfg.DataDir)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer db.Close()

	jobs := storage.NewJobRepository(db)
	hist := history.New(db)
	cache := urlcache.New(db, cfg.URLCacheTTL())

	registry := source.NewRegistry()
	var proxyPool *extractor.ProxyPool
	if len(cfg.Proxies) > 0 {
		proxyPool = extractor.NewProxyPool(cfg.Proxies, cfg.ProxyRatePerSecond, cfg.ProxyMinHealth, cfg.ProxyRefreshWindow())
	}
	registry.Register(extractor.New(cfg.ExtractorPath, cfg.ExtractorHost, proxyPool))
	registry.Register(directhttp.New())

	limiter := ratelimit.New(ratelimit.Intervals{
		Free:    time.Duration(cfg.RateLimitFreeSecs) * time.Second,
		Premium: time.Duration(cfg.RateLimitPremiumSecs) * time.Second,
		Vip:     time.Duration(cfg.RateLimitVipSecs) * time.Second,
	}, nil)

	webhookURL := os.Getenv("CHAT_WEBHOOK_URL")
	progressBroker := progress.New(chatapi.NewWebhookSink(webhookURL), 3)
	delivery := chatapi.NewWebhookDelivery(webhookURL, cfg.UploadMaxRetries)

	var transcriber worker.Transcriber
	if cfg.WhisperModelPath != "" {
		transcriber = transcribe.New(cfg.WhisperPath, cfg.WhisperModelPath, cfg.FFmpegPath, cfg.WhisperLanguage)
	}

	profiles := account.NewInMemoryProfiles()

	q := queue.New()
	sched := scheduler.New(q, jobs, nil, cfg) // Worker wired below, after sched exists
	w := &worker.Worker{
		Jobs:        jobs,
		History:     hist,
		Registry:    registry,
		Users:       profiles,
		Transcriber: transcriber,
		Delivery:    delivery,
		Progress:    progressBroker,
		Notifier:    operator.New(),
		Config:      cfg,
	}
	sched.Worker = w

	if err := sched.Recover(); err != nil {
		logger.Log.Error().Err(err).Msg("failed to recover jobs from prior run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	if sweepEvery := cfg.URLCacheTTL() / 4; sweepEvery > 0 {
		go func() {
			for range time.Tick(sweepEvery) {
				if _, err := cache.Sweep(); err != nil {
					logger.Log.Warn().Err(err).Msg("url cache sweep failed")
				}
			}
		}()
	}

	submitter := &submit.Submitter{
		Jobs:      jobs,
		URLCache:  cache,
		Limiter:   limiter,
		Registry:  registry,
		Scheduler: sched,
		Config:    cfg,
	}
	_ = submitter // exposed to the chat-handler collaborator's own transport layer

	logger.Log.Info().Msg("doradura scheduler core started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Log.Info().Msg("shutting down")
	cancel()
	sched.Shutdown()
}
