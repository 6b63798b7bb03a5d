package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-live-orders/internal/config"
	"github.com/ariefcatur/go-live-orders/internal/httpx"
	"github.com/ariefcatur/go-live-orders/internal/inbound"
	kafkax "github.com/ariefcatur/go-live-orders/internal/kafka"
	"github.com/ariefcatur/go-live-orders/internal/logging"
	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/ariefcatur/go-live-orders/internal/outbound"
	"github.com/ariefcatur/go-live-orders/internal/phone"
	"github.com/ariefcatur/go-live-orders/internal/postgres"
	"github.com/ariefcatur/go-live-orders/internal/redisx"
	"github.com/ariefcatur/go-live-orders/internal/session"
	"github.com/ariefcatur/go-live-orders/internal/whatsapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.ServiceName+"-worker", cfg.Production())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producers
	inboundProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicInboundMessage, 1024)
	itemsProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicItemAdded, 1024)
	paymentsProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentConfirmed, 256)
	producers := []*kafkax.Producer{inboundProd, itemsProd, paymentsProd}
	for _, p := range producers {
		p.Start(ctx)
	}
	pub := &inbound.Publisher{
		Inbound:  inboundProd,
		Items:    itemsProd,
		Payments: paymentsProd,
		Service:  cfg.ServiceName + "-worker",
	}

	// WhatsApp sessions
	container, err := whatsapp.OpenContainer(ctx, cfg.WhatsAppDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("whatsapp store")
	}
	wa := whatsapp.NewManager(container, pub)
	checker := session.NewChecker(wa)

	// Outbound queue
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	outbound.RegisterMetrics(reg)
	httpx.RegisterMetrics(reg)

	recorder := &outbound.Recorder{Log: &outbound.MessageRepo{DB: db}}
	queue := outbound.NewQueue(outbound.Options{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       cfg.QueueDelay,
		RetryBase:   cfg.QueueRetryBase,
		SendTimeout: cfg.SendTimeout,
		OnFailed:    recorder.Failed,
	})
	dispatcher := outbound.NewDispatcher(ctx, queue, recorder.Wrap(wa.Send), checker.Usable)
	wa.OnConnected = dispatcher.Kick
	wa.Phones = phone.PolicyByName(cfg.PhonePolicy)
	go dispatcher.Run(cfg.DrainInterval)

	if err := wa.ConnectAll(ctx, &whatsapp.DeviceRepo{DB: db}); err != nil {
		log.Error().Err(err).Msg("whatsapp: list devices")
	}

	// Engine
	repo := &orders.Repo{DB: db}
	engine := orders.NewEngine(repo, dispatcher, orders.NewBusinessClock(cfg.Location()))
	engine.Events = pub
	engine.Phones = phone.PolicyByName(cfg.PhonePolicy)

	svc := &inbound.Service{
		Engine:   engine,
		Dedup:    redisx.NewDeduper(rdb),
		Outbound: dispatcher,
	}

	// Consumers
	msgCons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicInboundMessage, cfg.ConsumerWorkers)
	outCons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup+"-outbound", orders.TopicOutboundRequested, 1)
	for topic, run := range map[string]func() error{
		orders.TopicInboundMessage:    func() error { return msgCons.Start(ctx, svc.HandleInboundMessage) },
		orders.TopicOutboundRequested: func() error { return outCons.Start(ctx, svc.HandleOutboundRequested) },
	} {
		go func() {
			log.Info().Str("group", cfg.ConsumerGroup).Str("topic", topic).Msg("consumer started")
			if err := run(); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("consumer exit")
				cancel()
			}
		}()
	}

	// Admin
	router := httpx.NewRouter(reg)
	(&httpx.AdminHandler{Queue: queue, Sessions: checker}).Register(router)
	srv := &http.Server{Addr: cfg.AdminAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.AdminAddr).Msg("admin HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin listen")
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down worker...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	dispatcher.Wait()
	wa.Disconnect()
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	if n := len(queue.Tenants()); n > 0 {
		log.Warn().Int("tenants", n).Msg("worker stopped with undelivered messages")
	}
}
