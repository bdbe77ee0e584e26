package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"priceflow/archive"
	appconfig "priceflow/config"
	"priceflow/consumer"
	"priceflow/dates"
	"priceflow/handlers"
	"priceflow/logger"
	"priceflow/readmodel"
	"priceflow/repositories"
	"priceflow/sources"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	eventType := flag.String("event-type", "", "Event category to consume: security, price-batch, appraisal-batch, position, portfolio")
	resetOffset := flag.Bool("reset-offset", false, "Start a new consumer group from the earliest offset")
	refreshDate := flag.String("refresh-date", "", "Rebuild the held view for a date (YYYYMMDD) and exit")

	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}
	if cfg.Logging.CloudWatch {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Logging.Namespace, cfg.Logging.DashboardName)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Priceflow.Name,
		"version": cfg.Priceflow.Version,
	}).Info("starting priceflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	holidays, err := parseHolidays(cfg.Calendar.Holidays)
	if err != nil {
		log.WithError(err).Error("invalid calendar configuration")
		os.Exit(1)
	}
	calendar := dates.NewCalendar(holidays)
	registry := sources.NewRegistry(cfg.Sources.VendorPriceSources, cfg.Sources.LWPriceSources)

	store, err := newStore(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create read-model store")
		os.Exit(1)
	}

	db, err := repositories.Open(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	securityRepo := repositories.NewSecurityRepository(db)
	priceRepo := repositories.NewPriceRepository(db)
	auditRepo := repositories.NewPriceAuditEntryRepository(db)
	positionRepo := repositories.NewPositionRepository(db)
	portfolioRepo := repositories.NewPortfolioRepository(db)
	heldRepo := repositories.NewHeldSecurityRepository(db)
	swpQuery := repositories.NewSecurityWithPricesQuery(securityRepo, priceRepo, auditRepo, registry, calendar)

	swpRepo := readmodel.NewSecurityWithPricesRepository(store, calendar)
	heldSnapshot := readmodel.NewHeldSecuritiesRepository(store)
	heldView := readmodel.NewHeldSecuritiesWithPricesRepository(store, heldRepo, swpQuery, securityRepo)

	if *refreshDate != "" {
		date, err := dates.ParseCompact(*refreshDate)
		if err != nil {
			log.WithError(err).Error("invalid refresh date")
			os.Exit(1)
		}
		if err := refreshHeldView(ctx, heldRepo, heldView, date, log); err != nil {
			log.WithError(err).Error("refresh failed")
			os.Exit(1)
		}
		return
	}

	var archiver *archive.SnapshotArchiver
	if cfg.Storage.S3.Enabled {
		refreshes := make(chan dates.Date, 16)
		heldView.NotifyRefreshes(refreshes)
		archiver, err = archive.NewSnapshotArchiver(cfg, heldView, refreshes)
		if err != nil {
			log.WithError(err).Error("failed to create snapshot archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 archival disabled; skipping archiver")
	}

	var (
		topics       []string
		deserializer consumer.Deserializer
		handler      consumer.EventHandler
	)
	switch *eventType {
	case "security":
		topics = cfg.Kafka.Topics.Security
		deserializer = consumer.SecurityDeserializer{}
		handler = handlers.NewSecurityCreatedHandler(swpRepo, heldView, heldSnapshot, calendar)
	case "price-batch":
		topics = cfg.Kafka.Topics.PriceBatch
		deserializer = consumer.PriceBatchDeserializer{}
		handler = handlers.NewPriceBatchCreatedHandler(priceRepo, registry, swpRepo, heldView, calendar)
	case "appraisal-batch":
		topics = cfg.Kafka.Topics.AppraisalBatch
		deserializer = consumer.AppraisalBatchDeserializer{DefaultPortfolios: cfg.Sources.DefaultPortfolios}
		handler = handlers.NewAppraisalBatchCreatedHandler(heldRepo, heldSnapshot, heldView, calendar)
	case "position":
		var upserter handlers.PositionUpserter = positionRepo
		topics = cfg.Kafka.Topics.Position
		deserializer = consumer.PositionDeserializer{}
		handler = handlers.NewPositionHandler(upserter, positionRepo, heldView, calendar)
	case "portfolio":
		var upserter handlers.PortfolioUpserter = portfolioRepo
		topics = cfg.Kafka.Topics.Portfolio
		deserializer = consumer.PortfolioDeserializer{}
		handler = handlers.NewPortfolioHandler(upserter)
	default:
		log.WithFields(logger.Fields{"event_type": *eventType}).Error("unknown or missing -event-type")
		os.Exit(1)
	}
	if len(topics) == 0 {
		log.WithFields(logger.Fields{"event_type": *eventType}).Error("no topics configured for event type")
		os.Exit(1)
	}

	reader := consumer.NewReader(cfg, topics, *resetOffset)
	c, err := consumer.NewConsumer(cfg, reader, deserializer, handler)
	if err != nil {
		log.WithError(err).Error("failed to create consumer")
		os.Exit(1)
	}

	if archiver != nil {
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archiver")
			os.Exit(1)
		}
	}
	if err := c.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start consumer")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"event_type": *eventType,
		"topics":     topics,
	}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	c.Stop()
	if archiver != nil {
		archiver.Stop()
	}
	log.Info("shutdown complete")
}

func newStore(cfg *appconfig.Config) (readmodel.Store, error) {
	switch cfg.ReadModel.Backend {
	case "", "file":
		return readmodel.NewFileStore(cfg.ReadModel.RootDir), nil
	case "redis":
		return readmodel.NewRedisStore(cfg.ReadModel.Redis)
	default:
		return nil, fmt.Errorf("unknown read_model.backend %q", cfg.ReadModel.Backend)
	}
}

func parseHolidays(raw []string) ([]dates.Date, error) {
	holidays := make([]dates.Date, 0, len(raw))
	for _, s := range raw {
		d, err := dates.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", s, err)
		}
		holidays = append(holidays, d)
	}
	return holidays, nil
}

// refreshHeldView replays a full rebuild of the master view for one date,
// the same work the appraisal handler does, without consuming anything.
func refreshHeldView(ctx context.Context, heldRepo *repositories.HeldSecurityRepository, heldView *readmodel.HeldSecuritiesWithPricesRepository, date dates.Date, log *logger.Log) error {
	held, err := heldRepo.Get(ctx, date)
	if err != nil {
		return err
	}
	swps, err := heldView.RefreshForSecurities(ctx, date, held, true)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"date":       date.String(),
		"securities": len(swps),
	}).Info("held view rebuilt")
	return nil
}
