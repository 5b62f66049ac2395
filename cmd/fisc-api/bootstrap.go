package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AduanaTI/fiscbox/config"
	fiscapi "github.com/AduanaTI/fiscbox/internal/api/fisc_api"
	"github.com/AduanaTI/fiscbox/internal/broker/kafka"
	"github.com/AduanaTI/fiscbox/internal/cache/rediscache"
	"github.com/AduanaTI/fiscbox/internal/services/auditoria"
	"github.com/AduanaTI/fiscbox/internal/services/fiscalizacion"
	"github.com/AduanaTI/fiscbox/internal/services/registro"
	"github.com/AduanaTI/fiscbox/internal/storage/pgfisc"
)

type fiscAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     fiscAPIOpts
	deps     fiscAPIDeps
	consumer *kafka.Consumer
	producer *kafka.Producer
	limiter  *rediscache.RateLimiter
	closeDB  func()
}

func mustBootstrapFiscAPI() *fiscAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("error al cargar la configuración, %v", err))
	}

	httpAddr := cfg.FiscBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.FiscBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "fisc-api"
	}
	topic := cfg.Kafka.RegistroEventsTopicName
	if topic == "" {
		topic = "registro.events"
	}
	aplicarLimit := int64(cfg.FiscBox.AplicarRateLimitPerMinute)

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	var limiter *rediscache.RateLimiter
	if aplicarLimit > 0 {
		limiter = rediscache.NewRateLimiter(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	prepSvc := fiscalizacion.New(st)
	regSvc := registro.New(st, producer, topic)
	auditSvc := auditoria.New(st)

	var apiLimiter fiscapi.RateLimiter
	if limiter != nil {
		apiLimiter = limiter
	}
	api := fiscapi.New(prepSvc, regSvc, apiLimiter, aplicarLimit)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &fiscAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: fiscAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		deps: fiscAPIDeps{
			api:      api,
			audit:    auditSvc,
			consumer: consumer,
			ready:    st.Ping,
		},
		consumer: consumer,
		producer: producer,
		limiter:  limiter,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgfisc.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgfisc.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *fiscAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *fiscAPIApp) Run() error {
	return runFiscAPI(a.ctx, a.opts, a.deps)
}
