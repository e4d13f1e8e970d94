package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"labflow/internal/barcode"
	"labflow/internal/cassette"
	"labflow/internal/hl7"
	"labflow/internal/ingest"
	ingestmetrics "labflow/internal/ingest/metrics"
	"labflow/internal/instrument"
	instrumenthandler "labflow/internal/instrument/handler"
	"labflow/internal/jwttoken"
	"labflow/internal/notify"
	"labflow/internal/order"
	"labflow/internal/platform/config"
	"labflow/internal/platform/httpserver"
	"labflow/internal/platform/kafka"
	"labflow/internal/platform/logger"
	"labflow/internal/platform/metrics"
	platformredis "labflow/internal/platform/redis"
	"labflow/internal/reagent"
	"labflow/internal/resync"
	resyncmetrics "labflow/internal/resync/metrics"
	httptransport "labflow/internal/transport/http"
	"labflow/internal/workflow"
	workflowhandler "labflow/internal/workflow/handler"
	workflowmetrics "labflow/internal/workflow/metrics"
	"labflow/pkg/platform/circuit"
)

// stores groups the persistence layer so wiring can swap Postgres for the
// in-memory implementations with one switch.
type stores struct {
	instruments instrument.Store
	cassettes   cassette.Store
	reagents    reagent.Store
	orders      order.Store
	workflows   workflow.Store
	results     ingest.ResultStore
}

// main wires dependencies and runs the three long-lived components: the HTTP
// server, the result-ingestion consumer and the reconciliation scheduler.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, db, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	if err := kafka.EnsureTopics(ctx, cfg.Kafka,
		cfg.Kafka.ResultsTopic, cfg.Kafka.EventsTopic, cfg.Kafka.ResyncTopic); err != nil {
		return err
	}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	httpMetrics := metrics.New()
	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey)

	orderBreaker := circuit.New("order-service")
	orderResolver := order.NewResolver(order.NewHTTPClient(cfg.Orders), orderBreaker, log)

	instrumentService := instrument.NewService(st.instruments)
	cassetteService := cassette.NewService(st.cassettes, st.instruments)

	workflowService := workflow.NewService(workflow.Deps{
		Workflows:        st.workflows,
		Instruments:      st.instruments,
		Queue:            st.cassettes,
		Gate:             reagent.NewGate(st.reagents),
		Barcodes:         barcode.NewValidator(cfg.Barcode),
		Orders:           orderResolver,
		OrderRecords:     st.orders,
		Notifier:         notify.NewKafkaNotifier(producer, cfg.Kafka.EventsTopic, log),
		Metrics:          workflowmetrics.New(),
		Logger:           log,
		AutoCreateOrders: cfg.Orders.AutoCreate,
	})

	listener := ingest.NewListener(
		hl7.NewParser(),
		st.results,
		ingest.NewDedupeCache(redisClient, cfg.Redis.DedupeTTL),
		workflowService,
		ingestmetrics.New(),
		log,
	)
	consumer, err := kafka.NewConsumer(cfg.Kafka, []string{cfg.Kafka.ResultsTopic}, listener, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	scheduler := resync.NewScheduler(st.orders, st.workflows, orderResolver,
		producer, cfg.Kafka.ResyncTopic, cfg.Scheduler, resyncmetrics.New(), log)

	checkers := map[string]httptransport.HealthChecker{}
	if db != nil {
		checkers["postgres"] = dbHealth{db}
	}
	if redisClient != nil {
		checkers["redis"] = redisClient
	}
	router := httptransport.NewRouter(checkers,
		workflowhandler.New(workflowService, log, httpMetrics, jwtService),
		instrumenthandler.New(instrumentService, cassetteService, log, httpMetrics, jwtService),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting labflow", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info("starting result ingestion", "topic", cfg.Kafka.ResultsTopic)
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		log.Info("starting reconciliation scheduler", "interval", cfg.Scheduler.Interval)
		return scheduler.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildStores returns Postgres-backed stores when a DSN is configured and
// in-memory stores otherwise. The returned *sql.DB is nil in memory mode.
func buildStores(cfg config.Config, log *slog.Logger) (stores, *sql.DB, error) {
	if cfg.Postgres.DSN == "" {
		log.Warn("no postgres DSN configured, using in-memory stores")
		return stores{
			instruments: instrument.NewInMemoryStore(),
			cassettes:   cassette.NewInMemoryStore(),
			reagents:    reagent.NewInMemoryStore(),
			orders:      order.NewInMemoryStore(),
			workflows:   workflow.NewInMemoryStore(),
			results:     ingest.NewInMemoryStore(),
		}, nil, nil
	}

	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		return stores{}, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return stores{}, nil, err
	}
	return stores{
		instruments: instrument.NewPostgres(db),
		cassettes:   cassette.NewPostgres(db),
		reagents:    reagent.NewPostgres(db),
		orders:      order.NewPostgres(db),
		workflows:   workflow.NewPostgres(db),
		results:     ingest.NewPostgres(db),
	}, db, nil
}

type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
