package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-commerce-backend/internal/config"
	"github.com/ariefcatur/go-commerce-backend/internal/httpx"
	"github.com/ariefcatur/go-commerce-backend/internal/inbox"
	"github.com/ariefcatur/go-commerce-backend/internal/inventory"
	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	kafkax "github.com/ariefcatur/go-commerce-backend/internal/kafka"
	"github.com/ariefcatur/go-commerce-backend/internal/logging"
	"github.com/ariefcatur/go-commerce-backend/internal/metrics"
	"github.com/ariefcatur/go-commerce-backend/internal/notify"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
	"github.com/ariefcatur/go-commerce-backend/internal/postgres"
	"github.com/ariefcatur/go-commerce-backend/internal/products"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
	"github.com/ariefcatur/go-commerce-backend/internal/redisx"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
	"github.com/ariefcatur/go-commerce-backend/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.Log.Level, cfg.Log.Dir)
	log := logging.Component(logger, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()

	mailer, err := notify.NewMailer(cfg.SMTP, logging.Component(logger, "mailer"))
	if err != nil {
		log.WithError(err).Fatal("mailer")
	}
	push := notify.NewPush(ctx, cfg.Firebase, logging.Component(logger, "push"))

	qcfg := queue.Config{
		Attempts:     cfg.Queue.Attempts,
		Backoff:      cfg.Queue.Backoff,
		Lease:        cfg.Queue.Lease,
		PollInterval: cfg.Queue.PollInterval,
	}
	newQueue := func(name string) *queue.Queue {
		qlog := logging.Component(logger, "queue").WithField("queue", name)
		return queue.New(rdb, name, qcfg, qlog, queue.WithEvents(queue.LogEvents(qlog)))
	}
	emailQ := newQueue(jobs.QueueEmail)
	notifQ := newQueue(jobs.QueueNotification)
	orderQ := newQueue(jobs.QueueOrder)

	userRepo := &users.Repo{DB: db}
	inboxRepo := &inbox.Repo{DB: db}
	procs := &worker.Processors{
		Mailer: mailer,
		Push:   push,
		Orders: &orders.Service{
			Store: &orders.Repo{DB: db},
			Cache: rdb,
			Log:   logging.Component(logger, "orders"),
		},
		Users: &users.Service{Repo: userRepo},
		Inbox: inboxRepo,
		Jobs:  &jobs.Enqueuer{Email: emailQ, Notification: notifQ, Order: orderQ},
		Redis: rdb,
		Log:   logging.Component(logger, "processors"),
	}

	m := metrics.New()
	for _, w := range []struct {
		q           *queue.Queue
		concurrency int
		h           queue.Handler
	}{
		{emailQ, cfg.Queue.EmailConcurrency, procs.Email},
		{notifQ, cfg.Queue.NotificationConcurrency, procs.Notification},
		{orderQ, cfg.Queue.OrderConcurrency, procs.Order},
	} {
		if err := w.q.Process(ctx, w.concurrency, queue.WithMetrics(m, w.q.Name(), w.h)); err != nil {
			log.WithError(err).WithField("queue", w.q.Name()).Fatal("start queue")
		}
	}

	metricsSrv := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           httpx.NewRouter(logging.Component(logger, "http"), m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics listener")
		}
	}()

	// Low-stock watcher on the order event stream
	watcher := &inventory.Service{
		Products:  &products.Repo{DB: db},
		Admins:    userRepo,
		Inbox:     inboxRepo,
		Redis:     rdb,
		Threshold: cfg.Inventory.Threshold,
		Log:       logging.Component(logger, "inventory"),
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Inventory.Group, orders.TopicOrderEvents,
		cfg.Inventory.Workers, logging.Component(logger, "consumer"))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := cons.Start(ctx, watcher.HandleOrderCreated); err != nil {
			log.WithError(err).Error("consumer exit")
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down workers...")

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelClose()
	for _, q := range []*queue.Queue{orderQ, emailQ, notifQ} {
		if err := q.Close(closeCtx); err != nil {
			log.WithError(err).WithField("queue", q.Name()).Warn("queue close")
		}
	}
	_ = metricsSrv.Shutdown(closeCtx)
	cancel()
	<-consumerDone
}
