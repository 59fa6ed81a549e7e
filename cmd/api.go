package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/northstar/services/custops/config"
	"example.com/northstar/services/custops/internal/api"
	"example.com/northstar/services/custops/internal/cache"
	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/database"
	"example.com/northstar/services/custops/internal/eventstore"
	"example.com/northstar/services/custops/internal/metrics"
	"example.com/northstar/services/custops/internal/models"
	"example.com/northstar/services/custops/internal/repositories"
	"example.com/northstar/services/custops/internal/search"
	"example.com/northstar/services/custops/internal/services"
	"example.com/northstar/services/custops/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for case and lifecycle commands, read models, insights, and search`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	} else {
		defer redisCache.Close()
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer, _ = tracing.NewTracer(config.TracingConfig{})
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search")
	}

	metricsCollector := metrics.NewMetrics()

	store := eventstore.NewGormEventStore(db)
	sla := slaPolicy(cfg.Scanner)
	caseCommands := commands.NewCaseCommands(store, sla)
	lifecycleCommands := commands.NewLifecycleCommands(store, sla)

	caseRepo := repositories.NewCaseReadRepository(readOnlyDB)
	lifecycleRepo := repositories.NewLifecycleReadRepository(readOnlyDB)
	stageFactRepo := repositories.NewStageFactRepository(readOnlyDB)
	countsRepo := repositories.NewCountsRepository(readOnlyDB)

	insightsService := services.NewInsightsService(caseRepo, lifecycleRepo, countsRepo, redisCache, tracer)

	server := api.NewServer(cfg, api.Dependencies{
		Cases:      caseCommands,
		Lifecycles: lifecycleCommands,
		CaseRepo:   caseRepo,
		Lifecycle:  lifecycleRepo,
		StageFacts: stageFactRepo,
		Insights:   insightsService,
		Search:     elasticClient,
		Metrics:    metricsCollector,
		Tracer:     tracer,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("API server shut down")
	return nil
}

// slaPolicy maps scanner configuration to the SLA targets stamped into
// newly created aggregates
func slaPolicy(cfg config.ScannerConfig) commands.SLAPolicy {
	return commands.SLAPolicy{
		FirstResponseHours: cfg.FirstResponseHours,
		ResolutionHours:    cfg.ResolutionHours,
		StageHours:         cfg.StageHours,
	}
}
