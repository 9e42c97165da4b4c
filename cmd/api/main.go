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
	"github.com/ariefcatur/go-commerce-backend/internal/content"
	"github.com/ariefcatur/go-commerce-backend/internal/httpx"
	"github.com/ariefcatur/go-commerce-backend/internal/inbox"
	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	kafkax "github.com/ariefcatur/go-commerce-backend/internal/kafka"
	"github.com/ariefcatur/go-commerce-backend/internal/logging"
	"github.com/ariefcatur/go-commerce-backend/internal/metrics"
	"github.com/ariefcatur/go-commerce-backend/internal/notify"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
	"github.com/ariefcatur/go-commerce-backend/internal/payments"
	"github.com/ariefcatur/go-commerce-backend/internal/postgres"
	"github.com/ariefcatur/go-commerce-backend/internal/products"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
	"github.com/ariefcatur/go-commerce-backend/internal/redisx"
	"github.com/ariefcatur/go-commerce-backend/internal/report"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Log.Level, cfg.Log.Dir)
	log := logging.Component(logger, "api")
	started := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db, "up"); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	// Redis
	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, logging.Component(logger, "producer"))
	prod.Start(ctx)

	// Queues, producer side only; consumers run in cmd/worker.
	qcfg := queue.Config{
		Attempts:     cfg.Queue.Attempts,
		Backoff:      cfg.Queue.Backoff,
		Lease:        cfg.Queue.Lease,
		PollInterval: cfg.Queue.PollInterval,
	}
	qlog := logging.Component(logger, "queue")
	queues := []*queue.Queue{
		queue.New(rdb, jobs.QueueEmail, qcfg, qlog),
		queue.New(rdb, jobs.QueueNotification, qcfg, qlog),
		queue.New(rdb, jobs.QueueOrder, qcfg, qlog),
	}
	enq := &jobs.Enqueuer{Email: queues[0], Notification: queues[1], Order: queues[2]}

	// Services
	orderSvc := &orders.Service{
		Store:    &orders.Repo{DB: db},
		Jobs:     enq,
		Events:   prod,
		Cache:    rdb,
		Pricing:  orders.NewPricing(cfg.Order.TaxRate, cfg.Order.DefaultShipping),
		Producer: cfg.ServiceName,
		Log:      logging.Component(logger, "orders"),
	}
	paySvc := &payments.Service{
		Gateway:       payments.NewStripe(cfg.Stripe.SecretKey),
		Store:         &payments.Repo{DB: db},
		Orders:        orderSvc,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Order.Currency,
		Log:           logging.Component(logger, "payments"),
	}
	mailer, err := notify.NewMailer(cfg.SMTP, logging.Component(logger, "mailer"))
	if err != nil {
		log.WithError(err).Fatal("mailer")
	}
	push := notify.NewPush(ctx, cfg.Firebase, logging.Component(logger, "push"))

	reconciler := &payments.Reconciler{
		Service:  paySvc,
		Interval: cfg.ReconcileInterval,
		Log:      logging.Component(logger, "reconciler"),
	}
	recCtx, stopReconciler := context.WithCancel(ctx)
	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		reconciler.Run(recCtx)
	}()

	sched := &report.Scheduler{
		Config: cfg.LogReport,
		Sender: &report.Sender{
			Generator: &report.Generator{Dir: cfg.Log.Dir, Started: started},
			Mailer:    mailer,
			App:       cfg.AppName,
			Log:       logging.Component(logger, "report"),
		},
		Log: logging.Component(logger, "scheduler"),
	}
	sched.Start()

	// HTTP
	hlog := logging.Component(logger, "http")
	userSvc := &users.Service{Repo: &users.Repo{DB: db}}
	auth := &httpx.Auth{Users: userSvc, Log: hlog}
	router := httpx.NewRouter(hlog, metrics.New(),
		&httpx.OrdersHandler{Orders: orderSvc, Auth: auth, Log: hlog},
		&httpx.PaymentsHandler{Payments: paySvc, Auth: auth, Log: hlog},
		&httpx.NotificationsHandler{Jobs: enq, Push: push, Inbox: &inbox.Repo{DB: db}, Auth: auth, Log: hlog},
		&httpx.UsersHandler{Users: userSvc, Auth: auth, Log: hlog},
		&httpx.ProductsHandler{Products: &products.Service{Store: &products.Repo{DB: db}, Log: logging.Component(logger, "products")}, Auth: auth, Log: hlog},
		&httpx.ContentHandler{Content: &content.Repo{DB: db}, Auth: auth, Log: hlog},
		&httpx.ReportsHandler{Scheduler: sched, Auth: auth, Log: hlog},
	)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	sched.Stop(ctx2)
	stopReconciler()
	<-reconcilerDone
	for _, q := range queues {
		if err := q.Close(ctx2); err != nil {
			log.WithError(err).WithField("queue", q.Name()).Warn("queue close")
		}
	}
	prod.Close() // flush buffered events before the loop exits
	cancel()
	prod.WaitClosed()
}
