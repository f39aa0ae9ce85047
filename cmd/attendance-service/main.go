package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/workpulse/workpulse-backend/internal/attendance/events"
	"github.com/workpulse/workpulse-backend/internal/attendance/handler"
	"github.com/workpulse/workpulse-backend/internal/attendance/repository"
	"github.com/workpulse/workpulse-backend/internal/attendance/service"
	"github.com/workpulse/workpulse-backend/pkg/clock"
	"github.com/workpulse/workpulse-backend/pkg/config"
	"github.com/workpulse/workpulse-backend/pkg/database"
	"github.com/workpulse/workpulse-backend/pkg/httputil"
	"github.com/workpulse/workpulse-backend/pkg/logger"
	"github.com/workpulse/workpulse-backend/pkg/messaging"
)

func main() {
	// Load .env in local development; in containers the environment is set
	// by the orchestrator and the file simply does not exist.
	_ = godotenv.Load()

	cfg, err := config.Load("attendance-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("attendance-service", cfg.Server.Environment)
	log.Info().Msg("starting Attendance Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := events.NewAMQPPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Repositories
	attendanceRepo := repository.NewAttendanceRepository(db)
	correctionRepo := repository.NewCorrectionRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)

	// Services
	clk := clock.System{}
	calendar := service.NewWeekendCalendar(nil)

	punchService := service.NewPunchService(attendanceRepo, publisher, clk, cfg.Attendance, log)
	correctionService := service.NewCorrectionService(correctionRepo, attendanceRepo, publisher, clk, cfg.Attendance, log)
	ledgerService := service.NewLedgerService(leaveRepo, publisher, log)
	leaveService := service.NewLeaveService(leaveRepo, calendar, publisher, clk, log)
	summaryService := service.NewSummaryService(attendanceRepo, leaveRepo, calendar, clk, log)
	scheduler := service.NewAccrualScheduler(leaveRepo, ledgerService, clk, cfg.Accrual.CheckInterval, log)

	// Handlers
	attendanceHandler := handler.NewAttendanceHandler(punchService, summaryService, log)
	correctionHandler := handler.NewCorrectionHandler(correctionService, log)
	leaveHandler := handler.NewLeaveHandler(leaveService, ledgerService, scheduler, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Accrual.Enabled {
		go scheduler.Start(ctx)
	}

	// Router
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Actor)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "attendance-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	r.Route("/api/v1/attendance", func(r chi.Router) {
		r.Post("/punch-in", attendanceHandler.PunchIn)
		r.Post("/punch-out", attendanceHandler.PunchOut)
		r.Post("/break/start", attendanceHandler.StartBreak)
		r.Post("/break/end", attendanceHandler.EndBreak)
		r.Get("/today/{userID}", attendanceHandler.Today)
		r.Get("/monthly/{userID}", attendanceHandler.Monthly)

		r.Route("/corrections", func(r chi.Router) {
			r.Post("/", correctionHandler.Submit)
			r.Get("/", correctionHandler.ListMine)
		})

		r.Route("/admin/corrections", func(r chi.Router) {
			r.Get("/pending", correctionHandler.ListPending)
			r.Post("/{requestID}/decide", correctionHandler.Decide)
		})
	})

	r.Route("/api/v1/leave", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", leaveHandler.Submit)
			r.Get("/", leaveHandler.ListMine)
			r.Post("/{requestID}/cancel", leaveHandler.Cancel)
		})

		r.Get("/balances/{userID}", leaveHandler.Balances)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/requests/pending", leaveHandler.ListPending)
			r.Post("/requests/{requestID}/decide", leaveHandler.Decide)
			r.Post("/accrual/run", leaveHandler.RunAccrual)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the accrual scheduler loop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
