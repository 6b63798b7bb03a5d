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
	"github.com/ariefcatur/go-live-orders/internal/phone"
	"github.com/ariefcatur/go-live-orders/internal/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.ServiceName+"-api", cfg.Production())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Kafka producers, one per topic
	inboundProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicInboundMessage, 1024)
	paymentsProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentConfirmed, 256)
	outboundProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOutboundRequested, 256)
	producers := []*kafkax.Producer{inboundProd, paymentsProd, outboundProd}
	for _, p := range producers {
		p.Start(ctx)
	}

	pub := &inbound.Publisher{
		Inbound:  inboundProd,
		Payments: paymentsProd,
		Outbound: outboundProd,
		Service:  cfg.ServiceName + "-api",
	}

	// The API has no WhatsApp session; confirmations go to the worker.
	repo := &orders.Repo{DB: db}
	engine := orders.NewEngine(repo, pub, orders.NewBusinessClock(cfg.Location()))
	engine.Events = pub
	engine.Phones = phone.PolicyByName(cfg.PhonePolicy)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpx.RegisterMetrics(reg)

	router := httpx.NewRouter(reg)
	(&httpx.WebhookHandler{Publisher: pub, Payments: engine}).Register(router)
	(&httpx.OrdersHandler{Repo: repo}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
}
