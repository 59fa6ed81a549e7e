package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/northstar/services/custops/config"
	"example.com/northstar/services/custops/internal/cache"
	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/database"
	"example.com/northstar/services/custops/internal/eventstore"
	"example.com/northstar/services/custops/internal/messaging"
	"example.com/northstar/services/custops/internal/metrics"
	"example.com/northstar/services/custops/internal/models"
	"example.com/northstar/services/custops/internal/projections"
	"example.com/northstar/services/custops/internal/scanner"
	"example.com/northstar/services/custops/internal/search"
	"example.com/northstar/services/custops/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker: projectors, the SLA breach scanner, and the Service Bus command listener`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close(db)

	readOnlyDB, err := database.ConnectReadOnly(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close(readOnlyDB)

	if err := models.SetupModels(db); err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without cache invalidation")
	} else {
		defer redisCache.Close()
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer, _ = tracing.NewTracer(config.TracingConfig{})
	}
	defer tracer.Close()

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
	}

	metricsCollector := metrics.NewMetrics()

	store := eventstore.NewGormEventStore(db)
	sla := slaPolicy(cfg.Scanner)
	caseCommands := commands.NewCaseCommands(store, sla)
	lifecycleCommands := commands.NewLifecycleCommands(store, sla)

	// Projection engine. The table writer is constructed here and
	// nowhere else: only projectors get write access to read models.
	writer := projections.NewTableWriter(db)
	checkpoints := projections.NewCheckpointStore(writer)
	processor := projections.NewProcessor(store, checkpoints, cfg.Projector, metricsCollector,
		projections.NewCaseProjector(writer, elasticClient, redisCache),
		projections.NewLifecycleProjector(writer, redisCache),
	)

	g.Go(func() error {
		log.Info().Msg("Starting projection processor")
		return processor.Run(ctx)
	})

	// SLA breach scanner on a fixed schedule, with breach alerts
	// published to the alert queue when a pass records new breaches.
	alertSender, err := messaging.NewServiceBusClient(cfg.Azure, cfg.Azure.AlertQueueName, "sla-scanner")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize alert sender, continuing without breach alerts")
		alertSender = nil
	} else {
		defer alertSender.Close()
	}

	breachScanner := scanner.New(readOnlyDB, caseCommands, lifecycleCommands)

	g.Go(func() error {
		return runScanSchedule(ctx, cfg.Scanner, breachScanner, alertSender, metricsCollector)
	})

	// Inbound command listener
	listener, err := messaging.NewListener(cfg.Azure, messaging.NewProcessor(caseCommands, lifecycleCommands, metricsCollector))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus listener, continuing without inbound commands")
	} else {
		defer listener.Close()
		g.Go(func() error {
			log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Service Bus command listener")
			return listener.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// runScanSchedule runs the breach scanner on the configured interval
// until the context is cancelled
func runScanSchedule(ctx context.Context, cfg config.ScannerConfig, breachScanner *scanner.Scanner, alerts messaging.ServiceBusClient, m *metrics.Metrics) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(func() {
			start := time.Now()
			result, err := breachScanner.ScanOnce(ctx)
			m.RecordTimer("scanner.scan", time.Since(start).Milliseconds())
			if err != nil {
				m.RecordError("scanner.scan")
				log.Error().Err(err).Msg("Breach scan failed")
				return
			}
			m.RecordSuccess("scanner.scan")
			m.IncrementCounterBy("scanner.scanned", int64(result.Scanned))
			m.IncrementCounterBy("scanner.breaches", int64(result.Breached))

			if result.Breached > 0 && alerts != nil {
				alert := messaging.BreachAlert{
					Scanned:  result.Scanned,
					Breached: result.Breached,
					ScanTime: time.Now().UTC(),
				}
				if err := alerts.SendMessage(ctx, alert); err != nil {
					log.Error().Err(err).Msg("Failed to publish breach alert")
				}
			}
		}),
	)
	if err != nil {
		return err
	}

	log.Info().Dur("interval", cfg.Interval).Msg("Starting SLA breach scan schedule")
	scheduler.Start()

	<-ctx.Done()

	return scheduler.Shutdown()
}
