package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	alarmapp "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/application"
	alarms "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/domain"
	alarmnotify "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/notify"
	apihttp "github.com/juanpa-corral/codigoIoTFinalSolution/internal/api/http"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/auth"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/bridge"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/config"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/forecast"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/logging"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/infrastructure/sqlstore"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/ubidots"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to a YAML config file (overrides BRIDGE_CONFIG)")
		envFile    = pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
		logLevel   = pflag.String("log-level", "", "log level override (debug, info, warn, error)")
	)
	pflag.Parse()

	cfg, err := config.Load(config.LoadOptions{ConfigPath: *configPath, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, logCloser, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("bridge stopped")
		_ = logCloser.Close()
		os.Exit(1)
	}
	logger.Info("bridge stopped")
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return err
	}
	db, err := sqlstore.Open(dialect, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	if err := sqlstore.EnsureSchema(ctx, db, dialect, sqlstore.DefaultTable); err != nil {
		return err
	}
	store, err := sqlstore.NewReadingRepository(db, dialect)
	if err != nil {
		return err
	}
	metrics.Init(store, logger)

	oracle, err := forecast.NewGeminiOracle(ctx, cfg.Gemini.APIKey,
		forecast.WithModel(cfg.Gemini.Model),
		forecast.WithTimeout(cfg.Gemini.Timeout),
		forecast.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer oracle.Close()

	qos := byte(cfg.QoS)
	cloudBus, err := mqttbus.NewTransientPublisher(mqttbus.Options{
		BrokerURL:      cfg.Ubidots.Broker,
		Username:       cfg.Ubidots.Token,
		QoS:            qos,
		PublishTimeout: cfg.PublishTimeout,
	}, logger)
	if err != nil {
		return err
	}
	cloud, err := ubidots.NewPublisher(cloudBus, cfg.Ubidots.Device,
		ubidots.WithForecastField(cfg.Ubidots.ForecastField),
		ubidots.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	localOpts := mqttbus.Options{
		BrokerURL:      cfg.Local.Broker,
		ClientID:       cfg.Local.ClientID,
		Username:       cfg.Local.Username,
		Password:       cfg.Local.Password,
		QoS:            qos,
		PublishTimeout: cfg.PublishTimeout,
	}
	localClient, err := mqttbus.Connect(ctx, localOpts, logger)
	if err != nil {
		return err
	}
	defer localClient.Close()

	rule, err := alarms.NewThresholdRule(cfg.EthyleneThreshold)
	if err != nil {
		return err
	}
	pipelineOpts := []alarmapp.Option{
		alarmapp.WithTopics(cfg.Local.NotificationTopic, cfg.Local.AlarmTopic),
		alarmapp.WithLogger(logger),
	}
	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	if notifier.Len() > 0 {
		pipelineOpts = append(pipelineOpts, alarmapp.WithNotifier(notifier))
	}
	pipeline, err := alarmapp.NewPipeline(rule, oracle, cloud, localClient, pipelineOpts...)
	if err != nil {
		return err
	}

	localListener, err := bridge.NewLocalListener(store, cloud, pipeline, localClient,
		bridge.WithLocalTopics(bridge.LocalTopics{
			Data:    cfg.Local.DataTopic,
			Control: cfg.Local.ControlTopic,
			Alarm:   cfg.Local.AlarmTopic,
		}),
		bridge.WithLocalLogger(logger),
	)
	if err != nil {
		return err
	}
	for _, sub := range localListener.Subscriptions() {
		if err := localClient.Subscribe(sub); err != nil {
			return err
		}
	}

	// Cloud alarm commands are forwarded over short-lived local connections.
	localRelay, err := mqttbus.NewTransientPublisher(localOpts, logger)
	if err != nil {
		return err
	}
	cloudListener, err := bridge.NewCloudListener(cfg.Ubidots.AlarmTopic, cfg.Local.AlarmTopic, localRelay, logger)
	if err != nil {
		return err
	}
	cloudClient, err := mqttbus.Connect(ctx, mqttbus.Options{
		BrokerURL:      cfg.Ubidots.Broker,
		Username:       cfg.Ubidots.Token,
		QoS:            qos,
		PublishTimeout: cfg.PublishTimeout,
	}, logger, cloudListener.Subscription())
	if err != nil {
		return err
	}
	defer cloudClient.Close()

	resync, err := bridge.NewResyncLoop(store, cloud, pipeline, cfg.SendInterval, logger)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, worker := range []func(context.Context){localListener.Run, cloudListener.Run, resync.Start} {
		wg.Add(1)
		go func(work func(context.Context)) {
			defer wg.Done()
			work(ctx)
		}(worker)
	}

	var serverErr <-chan error
	if cfg.HTTP.Addr != "" {
		if serverErr, err = serveHTTP(ctx, cfg, store, logger); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"local_broker": cfg.Local.Broker,
		"cloud_broker": cfg.Ubidots.Broker,
		"device":       cfg.Ubidots.Device,
		"interval":     cfg.SendInterval.String(),
	}).Info("bridge running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}
	logger.Info("shutting down")
	cancel()
	wg.Wait()
	return runErr
}

func buildNotifier(cfg config.Config, logger logrus.FieldLogger) (*alarmnotify.MultiNotifier, error) {
	tpl, err := alarmnotify.NewTemplate(cfg.Advisory.Template)
	if err != nil {
		return nil, err
	}
	opts := []alarmnotify.Option{
		alarmnotify.WithCooldown(cfg.Advisory.Cooldown),
		alarmnotify.WithDedupeWindow(cfg.Advisory.DedupeWindow),
		alarmnotify.WithRequestTimeout(cfg.Advisory.Timeout),
		alarmnotify.WithDevice(cfg.Ubidots.Device),
		alarmnotify.WithLogger(logger),
	}
	if resolver := dashboardResolver(cfg.Advisory.DashboardURL); resolver != nil {
		opts = append(opts, alarmnotify.WithReportURLResolver(resolver))
	}

	var notifiers []alarmapp.AdvisoryNotifier
	if cfg.Advisory.WebhookURL != "" {
		channel, err := alarmnotify.NewWebhookChannel(cfg.Advisory.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("advisory webhook: %w", err)
		}
		notifier, err := alarmnotify.NewNotifier(channel, tpl, append(opts, alarmnotify.WithName("webhook"))...)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notifier)
	}
	if cfg.Advisory.TelegramToken != "" {
		channel, err := alarmnotify.NewTelegramChannel(cfg.Advisory.TelegramToken, cfg.Advisory.TelegramChatID)
		if err != nil {
			return nil, fmt.Errorf("advisory telegram: %w", err)
		}
		notifier, err := alarmnotify.NewNotifier(channel, tpl, append(opts, alarmnotify.WithName("telegram"))...)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notifier)
	}
	return alarmnotify.NewMultiNotifier(notifiers...), nil
}

func dashboardResolver(baseURL string) alarmnotify.ReportURLResolver {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return func(context.Context, alarmapp.Advisory) string {
		return baseURL
	}
}

func serveHTTP(ctx context.Context, cfg config.Config, store apihttp.ReadingSource, logger logrus.FieldLogger) (<-chan error, error) {
	mux := http.NewServeMux()
	mux.Handle(auth.PathReadings, apihttp.NewListHandler(store))
	mux.Handle(auth.PathLatest, apihttp.NewLatestHandler(store))
	mux.Handle("/api/v1/readings/export.xlsx", apihttp.NewExportHandler(store, apihttp.FormatXLSX))
	mux.Handle("/api/v1/readings/export.pdf", apihttp.NewExportHandler(store, apihttp.FormatPDF))
	mux.Handle(auth.PathMetrics, promhttp.Handler())
	mux.HandleFunc(auth.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.HTTP.JWTSecret != "" {
		verifier, err := auth.NewVerifier([]byte(cfg.HTTP.JWTSecret), cfg.Ubidots.Device)
		if err != nil {
			return nil, err
		}
		mw, err := auth.NewMiddleware(verifier, auth.ReadingsPolicy(), logger)
		if err != nil {
			return nil, err
		}
		handler = mw.Wrap(mux)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, status api is unauthenticated")
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           loggingMiddleware(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return errCh, nil
}

func loggingMiddleware(next http.Handler, logger logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   resp.status,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
