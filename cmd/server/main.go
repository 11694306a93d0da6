package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/eventbooking/ticketing/internal/config"
	"github.com/eventbooking/ticketing/internal/database"
	"github.com/eventbooking/ticketing/internal/handler"
	"github.com/eventbooking/ticketing/internal/queue"
	"github.com/eventbooking/ticketing/internal/repository"
	"github.com/eventbooking/ticketing/internal/router"
	"github.com/eventbooking/ticketing/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Params{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMin) * time.Minute,
	})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Fatal("redis unavailable; idempotency requires it")
	}

	// Repositories.
	ticketTypes := repository.NewTicketTypeRepo(db)
	reservations := repository.NewReservationRepo(db)
	orders := repository.NewOrderRepo(db)
	sagas := repository.NewSagaRepo(db)

	// Services.
	ledger := service.NewLedger(ticketTypes, rdb, logger)
	manager := service.NewReservationManager(reservations, ledger,
		time.Duration(cfg.ReservationTTLMin)*time.Minute, logger)
	idem := service.NewIdempotencyStore(rdb,
		time.Duration(cfg.IdempotencyTTLHours)*time.Hour)
	gateway := service.NewHTTPGateway(cfg.PaymentURL,
		time.Duration(cfg.PaymentTimeoutSec)*time.Second)
	notifier := service.NewRabbitNotifier("", logger)
	issuer := service.NewIssuer(orders, cfg.QRSecret)
	coordinator := service.NewCoordinator(manager, ledger, issuer, orders,
		gateway, notifier, sagas, idem, logger)

	// Background workers.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.RunExpirySweep(ctx, time.Duration(cfg.SweepIntervalSec)*time.Second)
	go queue.StartNotificationConsumer(logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.Register(e,
		handler.NewTicketHandler(manager, ledger),
		handler.NewPaymentHandler(coordinator, orders),
		cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// newLogger picks the zap preset for the environment: human-readable
// in dev, JSON elsewhere.
func newLogger(env string) (*zap.Logger, error) {
	if env == "dev" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
