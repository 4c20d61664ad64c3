package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/creditcore/creditd/internal/config"
	"github.com/creditcore/creditd/internal/ledger"
	"github.com/creditcore/creditd/internal/outbox"
	"github.com/creditcore/creditd/internal/repository/postgres"
	"github.com/creditcore/creditd/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("connected to database")

	// Repositories
	proposalRepo := postgres.NewProposalRepository(pool)
	pendingRepo := postgres.NewPendingFacilityRepository(pool, proposalRepo)
	facilityRepo := postgres.NewFacilityRepository(pool, proposalRepo)
	accrualRepo := postgres.NewAccrualCycleRepository(pool)
	obligationRepo := postgres.NewObligationRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)
	planRepo := postgres.NewRepaymentPlanRepository(pool)

	// External systems the engine consumes but does not implement. Until a
	// production ledger RPC client and a live price feed are wired up, an
	// in-memory ledger and a static price oracle stand in so the rest of
	// the engine can run end to end.
	led := ledger.NewInMemoryLedger()
	prices := service.NewStaticPriceOracle(decimal.NewFromInt(60000))

	hub := outbox.NewHub()

	// engine composes the five subsystems; a command surface (GraphQL or
	// similar, out of scope here) would hold this same *service.Engine and
	// call its methods directly. This daemon only drives the background
	// workers and exposes the read-only projections over HTTP.
	engine := service.NewEngine(
		proposalRepo, pendingRepo, facilityRepo, obligationRepo, accrualRepo, paymentRepo, eventRepo, planRepo,
		led, prices, hub, cfg, log.Logger,
	)

	if err := engine.Facility.Bootstrap(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap bank ledger accounts")
	}

	workers := engine.Workers(cfg, log.Logger)
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	for _, w := range workers {
		w.Start(workerCtx)
	}

	// Ops and read-model HTTP surface: health, readiness, the repayment
	// plan projection, and the websocket upgrade subscribers use to watch
	// one facility's outbox events (spec §6). No command endpoints live
	// here; facility operations are invoked through the service layer
	// directly (a command transport sits outside this repository's scope).
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Recover())
	e.Use(zerologMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int{
			"outbox_subscribers": hub.TotalSubscriberCount(),
		})
	})
	e.GET("/facilities/:id/repayment-plan", func(c echo.Context) error {
		facilityID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid facility id")
		}
		plan, err := engine.Plans.Project(c.Request().Context(), facilityID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, plan)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	e.GET("/ws/facilities/:id", func(c echo.Context) error {
		facilityID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid facility id")
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		sub := outbox.NewWSSubscriber(conn, facilityID, hub)
		hub.Register(sub)
		go sub.WritePump()
		sub.ReadPump()
		return nil
	})

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting ops server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancelWorkers()
	for _, w := range workers {
		w.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("ops server forced to shutdown")
	}
	log.Info().Msg("shutdown complete")
}

func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")
			return nil
		}
	}
}
