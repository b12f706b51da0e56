package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sproutgrid/greenhouse-engine/internal/cloud"
	"github.com/sproutgrid/greenhouse-engine/internal/config"
	"github.com/sproutgrid/greenhouse-engine/internal/database"
	"github.com/sproutgrid/greenhouse-engine/internal/engine"
	"github.com/sproutgrid/greenhouse-engine/internal/notify"
	"github.com/sproutgrid/greenhouse-engine/internal/recommend"
	"github.com/sproutgrid/greenhouse-engine/internal/repository"
	"github.com/sproutgrid/greenhouse-engine/internal/trend"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos := repository.New(db)
	eng, reporter := buildEngine(ctx, repos)

	sched := engine.NewScheduler(eng, repos, reporter,
		config.TickInterval(), config.EvalWorkers(), config.DeviceTimeout(), log.Logger)

	log.Info().
		Dur("interval", config.TickInterval()).
		Int("workers", config.EvalWorkers()).
		Msg("evaluator running; Ctrl+C to stop")
	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("scheduler exit")
	}
}

// buildEngine selects the store and notifier implementations: Postgres
// and MQTT locally, DynamoDB and SNS when cloud services are enabled.
func buildEngine(ctx context.Context, repos *repository.Repos) (*engine.Engine, engine.TickReporter) {
	cfg := engine.Config{
		WindowCapacity: config.WindowCapacity(),
		Lookback:       config.WindowLookback(),
		Trend:          trend.Config{NoiseFloor: config.TrendNoiseFloor(), Volatility: config.TrendVolatility()},
		Recommend:      recommend.DefaultConfig,
		HysteresisK:    config.HysteresisK(),
		RiskFloor:      config.RiskConfidenceFloor(),
	}

	var (
		telemetry   engine.TelemetryStore  = repos
		assessments engine.AssessmentStore = repos
		notifier    engine.Notifier
		reporter    engine.TickReporter
	)

	if config.UseCloudServices() {
		dyn, err := cloud.NewDynamoDBStore(ctx, config.AWSRegion(), config.DynamoTable())
		if err != nil {
			log.Fatal().Err(err).Msg("dynamodb init failed")
		}
		telemetry, assessments = dyn, dyn

		if arn := config.SNSTopicArn(); arn != "" {
			n, err := cloud.NewSNSNotifier(ctx, config.AWSRegion(), arn)
			if err != nil {
				log.Fatal().Err(err).Msg("sns init failed")
			}
			notifier = n
		}

		s3r, err := cloud.NewS3Reporter(ctx, config.AWSRegion(), config.S3Bucket())
		if err != nil {
			log.Fatal().Err(err).Msg("s3 init failed")
		}
		reporter = s3r
	}

	if notifier == nil {
		if n, err := notify.NewMQTTNotifier(config.MQTTBroker(), "greenhouse/alerts"); err == nil {
			notifier = n
		} else {
			log.Warn().Err(err).Msg("mqtt notifier unavailable; alerts will only be logged")
			notifier = notify.LogNotifier{Log: log.Logger}
		}
	}

	return engine.New(cfg, telemetry, assessments, repos, repos, notifier, repos, log.Logger), reporter
}
