package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"fleetdispatch/pkg/broker"
	"fleetdispatch/pkg/cache"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/config"
	"fleetdispatch/pkg/database"
	"fleetdispatch/pkg/handlers"
	"fleetdispatch/pkg/hub"
	"fleetdispatch/pkg/logging"
	"fleetdispatch/pkg/metrics"
	"fleetdispatch/pkg/middleware"
	"fleetdispatch/pkg/repository"
	"fleetdispatch/pkg/scheduler"
	"fleetdispatch/pkg/server"
	"fleetdispatch/pkg/services"
	"fleetdispatch/pkg/telemetry"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing()

	shutdownMetrics, err := metrics.Init(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer shutdownMetrics()

	stopProfiling, err := telemetry.InitProfiling(cfg.Telemetry.ProfilingServer)
	if err != nil {
		return fmt.Errorf("profiling: %w", err)
	}
	defer stopProfiling()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	log.Info("connecting to Redis")
	rdb, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ps := broker.NewRedis(rdb.Client())
	defer ps.Close()
	emitter := broker.NewEmitter(ps, cfg.Hub.Channel)

	clk := clock.Real()

	positionRepo := repository.NewPositionRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	tripRepo := repository.NewTripRepository(db)
	fleetRepo := repository.NewFleetRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	exceptionRepo := repository.NewExceptionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	positions := services.NewPositionService(
		cache.NewPositions(rdb, cfg.GPS.CounterTTL),
		positionRepo,
		emitter,
		clk,
		services.PositionOptions{
			Refresh:       services.LatestWins{Expiry: cfg.GPS.CacheTTL},
			Sampling:      services.EveryNth{N: cfg.GPS.SampleEvery},
			MaxFutureSkew: cfg.GPS.MaxFutureSkew,
		},
	)
	trips := services.NewTripService(tripRepo, emitter, clk)
	attendance := services.NewAttendanceService(tripRepo, attendanceRepo, exceptionRepo, notificationRepo, emitter, clk)
	notifications := services.NewNotificationService(notificationRepo)
	generator := services.NewSchedulerService(scheduleRepo, tripRepo, fleetRepo, attendanceRepo, clk, services.SchedulerOptions{
		Location: cfg.Location(),
		DailyAt:  cfg.Scheduler.DailyAt,
	})

	wsHub := hub.New(hub.Options{
		SendBuffer:  cfg.Hub.SendBuffer,
		DedupWindow: cfg.Hub.DedupWindow,
		Resolver:    hub.FleetResolver{Fleet: fleetRepo},
		Trips:       tripRepo,
	})
	if err := wsHub.Listen(ctx, emitter); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Hub.Channel, err)
	}

	if cfg.Scheduler.Enabled {
		runner, err := scheduler.New(generator, clk, cfg.Scheduler)
		if err != nil {
			return err
		}
		go runner.Run(ctx)
		log.Info("daily trip generation enabled", "at", cfg.Scheduler.DailyAt, "timezone", cfg.Scheduler.Timezone)
	}

	gps := handlers.NewGPS(positions, clk)
	gps.RegisterActions(wsHub)

	app := server.NewApp(cfg.Server.Name, cfg.Server.AllowOrigins)
	handlers.Routes{
		Auth:           middleware.NewAuth(cfg.Auth),
		GPS:            gps,
		Trips:          handlers.NewTrips(trips, attendance, generator),
		Notifications:  handlers.NewNotifications(notifications),
		Hub:            wsHub,
		HeartbeatLimit: cfg.GPS.HeartbeatLimit,
		BaseContext:    ctx,
	}.Mount(app)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.Server.Port
	log.Info("websocket gateway on /ws")
	log.Info("server starting", "addr", addr)
	return app.Listen(addr)
}
