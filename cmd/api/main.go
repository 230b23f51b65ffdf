package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/bookline-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/bookline-ai-platform/internal/abtest"
	"github.com/wolfman30/bookline-ai-platform/internal/api/handlers"
	"github.com/wolfman30/bookline-ai-platform/internal/api/router"
	"github.com/wolfman30/bookline-ai-platform/internal/channels/botplatform"
	"github.com/wolfman30/bookline-ai-platform/internal/channels/businesschat"
	"github.com/wolfman30/bookline-ai-platform/internal/channels/sms"
	"github.com/wolfman30/bookline-ai-platform/internal/channels/webchat"
	"github.com/wolfman30/bookline-ai-platform/internal/config"
	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/internal/convlog"
	"github.com/wolfman30/bookline-ai-platform/internal/fallback"
	"github.com/wolfman30/bookline-ai-platform/internal/feedback"
	"github.com/wolfman30/bookline-ai-platform/internal/intents"
	"github.com/wolfman30/bookline-ai-platform/internal/llm"
	"github.com/wolfman30/bookline-ai-platform/internal/nlu"
	"github.com/wolfman30/bookline-ai-platform/internal/notify"
	"github.com/wolfman30/bookline-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/bookline-ai-platform/internal/training"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	m := metrics.NewPipelineMetrics(nil)

	// NLU and the action catalog.
	nluClient := nlu.NewClient(cfg.NLUBaseURL, cfg.NLUTimeout)
	catalog, err := intents.LoadCatalog(cfg.IntentMappingPath)
	if err != nil {
		logger.Error("failed to load intent mappings", "path", cfg.IntentMappingPath, "error", err)
		os.Exit(1)
	}
	resolver := intents.NewResolver(catalog, cfg.ConfidenceThreshold)
	executor := intents.NewExecutor(cfg.ActionBaseURL, cfg.ActionTimeout, logger)

	// LLM chain: hosted completion API first, provider fallback behind it.
	var llmClient llm.Client = llm.NewCompletionClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.CompletionTimeout)
	switch cfg.FallbackProvider {
	case "bedrock":
		secondary := llm.WithModel(llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg)), cfg.BedrockModelID)
		llmClient = llm.NewFallbackClient(llmClient, secondary, logger.Logger)
	case "gemini":
		secondary, gerr := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if gerr != nil {
			logger.Error("failed to init gemini client", "error", gerr)
			os.Exit(1)
		}
		llmClient = llm.NewFallbackClient(llmClient, secondary, logger.Logger)
	}
	generator := fallback.NewGenerator(llmClient, cfg.CompletionModel, logger)

	contexts := conversation.NewContextStore(redisClient, cfg.ContextTTL, nil)

	// Turn logging: in-process queue for single-node setups, SQS otherwise.
	turnStore := convlog.NewStore(pool, cfg.ConfidenceThreshold)
	var publisher *convlog.Publisher
	var writer *convlog.Writer
	if cfg.UseMemoryQueue {
		queue := convlog.NewMemoryQueue(1024)
		publisher = convlog.NewPublisher(queue)
		writer = convlog.NewWriter(queue, turnStore, m, logger, cfg.TurnLogWorkers)
	} else {
		queue := convlog.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnLogQueueURL)
		publisher = convlog.NewPublisher(queue)
		writer = convlog.NewWriter(queue, turnStore, m, logger, cfg.TurnLogWorkers)
	}
	go writer.Run(ctx)

	if cfg.LogRetentionDays > 0 {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cutoff := time.Now().UTC().AddDate(0, 0, -cfg.LogRetentionDays)
					purged, perr := turnStore.PurgeOlderThan(ctx, cutoff)
					if perr != nil {
						logger.Error("turn log purge failed", "error", perr)
					} else if purged > 0 {
						logger.Info("purged expired turns", "rows", purged, "cutoff", cutoff)
					}
				}
			}
		}()
	}

	feedbackStore := feedback.NewStore(pool)
	abStore := abtest.NewStore(pool)
	splitter := abtest.NewSplitter(abStore, cfg.DefaultModelVersion, logger)

	// The orchestrator is built after the channel adapters, but each
	// webhook needs a dispatch closure up front. The pointer is assigned
	// before the server starts accepting traffic.
	var orch *conversation.Orchestrator
	dispatch := func(ctx context.Context, msg conversation.InboundMessage) {
		if _, err := orch.ProcessMessage(ctx, msg); err != nil {
			logger.Error("message processing failed",
				"channel", string(msg.Channel),
				"session_id", msg.SessionID,
				"error", err)
		}
	}

	senders := map[conversation.Channel]conversation.Sender{}

	var smsWebhook *sms.WebhookHandler
	if cfg.SMSGatewayAPIKey != "" {
		adapter := sms.NewAdapter(sms.NewClient(cfg.SMSGatewayAPIKey, cfg.SMSGatewayFromNumber), logger)
		senders[conversation.ChannelSMSGateway] = adapter
		smsWebhook = sms.NewWebhookHandler(adapter, cfg.SMSGatewayWebhookSecret, sms.Dispatch(dispatch), logger)
	}

	var chatWebhook *businesschat.WebhookHandler
	if cfg.BusinessChatAccessToken != "" {
		adapter := businesschat.NewAdapter(businesschat.NewClient(cfg.BusinessChatAccessToken), logger)
		senders[conversation.ChannelBusinessChat] = adapter
		chatWebhook = businesschat.NewWebhookHandler(cfg.BusinessChatVerifyToken, cfg.BusinessChatAppSecret, businesschat.Dispatch(dispatch), logger)
	}

	var botWebhook http.HandlerFunc
	if cfg.BotPlatformToken != "" {
		adapter := botplatform.NewAdapter(botplatform.NewClient(cfg.BotPlatformToken), cfg.BotPlatformWebhookKey, logger)
		senders[conversation.ChannelBotPlatform] = adapter
		botWebhook = adapter.HandleWebhook(botplatform.Dispatch(dispatch))
	}

	hub := webchat.NewHub(webchat.Dispatch(dispatch), logger)
	webchatAdapter := webchat.NewAdapter(hub, logger)
	senders[conversation.ChannelWebWidget] = webchatAdapter

	orch = conversation.NewOrchestrator(
		nluClient,
		resolver,
		executor,
		generator,
		splitter,
		contexts,
		publisher,
		senders,
		m,
		logger,
		conversation.Config{
			HistoryLimit:    cfg.ContextMaxHistory,
			DefaultLanguage: cfg.DefaultLanguage,
		},
	)

	// Retraining pipeline and operator notifications.
	sesSender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail:        cfg.NotifyFromEmail,
		FromName:         cfg.NotifyFromName,
		ConfigurationSet: cfg.SESConfigurationSet,
	}, logger)
	var emailSender notify.EmailSender = sesSender
	if sendgrid := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.NotifyFromEmail,
		FromName:  cfg.NotifyFromName,
	}, logger); sendgrid != nil {
		emailSender = notify.NewFailoverSender(sesSender, sendgrid, logger)
	}
	notifier := notify.NewService(emailSender, cfg.OperatorEmail, "", logger)

	jobStore := training.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.TrainingJobsTable, logger)
	performanceStore := training.NewPerformanceStore(pool)
	pipeline := training.NewPipeline(
		training.NewMiner(turnStore, feedbackStore, logger),
		training.NewTrainer(cfg.TrainingBaseURL, cfg.TrainingTimeout, logger),
		training.NewEvaluator(nluClient, turnStore, logger),
		training.NewCorpusStore(s3.NewFromConfig(awsCfg), cfg.TrainingCorpusS3, logger),
		performanceStore,
		abStore,
		feedbackStore,
		jobStore,
		notifier,
		logger,
		training.PipelineConfig{
			MinNewDataPoints: cfg.MinNewDataPoints,
			QualityGate:      cfg.AccuracyQualityGate,
			ABSplit:          cfg.ABInitialSplit,
			DefaultVersion:   cfg.DefaultModelVersion,
		},
	)

	handler := router.New(&router.Config{
		Logger:              logger,
		SMSWebhook:          smsWebhook,
		BusinessChatWebhook: chatWebhook,
		BotWebhook:          botWebhook,
		WebchatHub:          hub,
		WebchatAdapter:      webchatAdapter,
		WebchatDispatch:     webchat.Dispatch(dispatch),
		Feedback:            handlers.NewFeedbackHandler(feedbackStore, logger),
		AdminConversations:  handlers.NewAdminConversationsHandler(turnStore, feedbackStore, logger),
		AdminRetrain:        handlers.NewAdminRetrainHandler(pipeline, jobStore, logger),
		AdminExperiments:    handlers.NewAdminExperimentsHandler(abStore, performanceStore, logger),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		PublicRatePerSecond: cfg.PublicRatePerSecond,
		PublicRateBurst:     cfg.PublicRateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	pipeline.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
