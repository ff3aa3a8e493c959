package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentscore/config"
	"rentscore/controllers"
	"rentscore/database"
	"rentscore/middleware"
	"rentscore/models"
	"rentscore/services"
	"rentscore/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// pinger is the health check dependency
type pinger interface {
	Ping(ctx context.Context) error
}

// serviceSet holds the wired domain services
type serviceSet struct {
	users      *services.UserService
	properties *services.PropertyService
	ledger     *services.LedgerService
	badges     *services.BadgeService
	score      *services.ScoreService
	reports    *services.ReportService
}

func newServices(db *gorm.DB, cfg *config.Config, publisher services.EventPublisher, locker services.TenantLocker) *serviceSet {
	ledger := services.NewLedgerService(db, cfg.Scoring.GraceDays)
	badges := services.NewBadgeService(db, services.DefaultBadgeCatalog(), locker, publisher)
	score := services.NewScoreService(db, ledger, badges, cfg.Scoring.GraceDays, cfg.Scoring.CountUnverifiedManual)

	return &serviceSet{
		users:      services.NewUserService(db),
		properties: services.NewPropertyService(db),
		ledger:     ledger,
		badges:     badges,
		score:      score,
		reports:    services.NewReportService(db, score, badges, publisher, cfg.Share.BaseURL),
	}
}

func newRouter(cfg *config.Config, health pinger, svc *serviceSet) http.Handler {
	router := mux.NewRouter()

	userController := controllers.NewUserController(svc.users)
	propertyController := controllers.NewPropertyController(svc.properties, svc.ledger)
	scoreController := controllers.NewScoreController(svc.score)
	reportController := controllers.NewReportController(svc.reports)
	landlordController := controllers.NewLandlordController(svc.properties, svc.ledger)
	adminController := controllers.NewAdminController(svc.ledger)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := health.Ping(ctx); err != nil {
			utils.LogError("health check failed: %v", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	// Public share links
	shareLimiter := utils.NewRateLimiter(cfg.Share.RateLimit, cfg.Share.RateLimitWindow)
	public := router.PathPrefix("/api/public").Subrouter()
	public.Use(middleware.RateLimit(shareLimiter, cfg.Share.RateLimit))
	public.HandleFunc("/shares/{id}", reportController.OpenShare).Methods("GET")

	// Authenticated routes
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware([]byte(cfg.JWT.SecretKey)))

	protected.HandleFunc("/me", userController.GetMe).Methods("GET")
	protected.HandleFunc("/me", userController.UpdateMe).Methods("PUT")

	protected.HandleFunc("/properties", propertyController.RegisterProperty).Methods("POST")
	protected.HandleFunc("/properties", propertyController.ListProperties).Methods("GET")
	protected.HandleFunc("/properties/{id}/payments", propertyController.LogPayment).Methods("POST")
	protected.HandleFunc("/properties/{id}/payments", propertyController.ListPayments).Methods("GET")

	protected.HandleFunc("/score", scoreController.GetScore).Methods("GET")
	protected.HandleFunc("/achievements", scoreController.GetAchievements).Methods("GET")
	protected.HandleFunc("/dashboard/stats", scoreController.GetDashboardStats).Methods("GET")

	protected.HandleFunc("/reports", reportController.GenerateReport).Methods("POST")
	protected.HandleFunc("/reports", reportController.ListReports).Methods("GET")
	protected.HandleFunc("/reports/{id}", reportController.GetReport).Methods("GET")
	protected.HandleFunc("/reports/{id}/export", reportController.ExportReport).Methods("GET")
	protected.HandleFunc("/reports/{id}/shares", reportController.ShareReport).Methods("POST")
	protected.HandleFunc("/shares/{id}", reportController.RevokeShare).Methods("DELETE")

	landlord := protected.PathPrefix("/landlord").Subrouter()
	landlord.Use(middleware.RequireRole(models.UserRoleLandlord))
	landlord.HandleFunc("/tenancies", landlordController.ListTenancies).Methods("GET")
	landlord.HandleFunc("/tenancies/{id}/verify", landlordController.VerifyTenancy).Methods("POST")
	landlord.HandleFunc("/payments/{id}/verify", landlordController.VerifyPayment).Methods("POST")

	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(models.UserRoleAdmin))
	admin.HandleFunc("/bank-payments", adminController.IngestBankPayment).Methods("POST")
	admin.HandleFunc("/metrics", adminController.GetMetrics).Methods("GET")

	return middleware.Recovery(middleware.Logger(middleware.CORS(cfg.Server.AllowedOrigins)(router)))
}

// newPublisher always logs events and adds Kafka and e-mail when configured
func newPublisher(cfg *config.Config) (services.EventPublisher, func()) {
	publishers := services.MultiPublisher{services.LoggingPublisher{}}
	closers := []func() error{}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := services.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		if err != nil {
			utils.LogError("Kafka publisher disabled: %v", err)
		} else {
			publishers = append(publishers, kafkaPublisher)
			closers = append(closers, kafkaPublisher.Close)
		}
	}
	if cfg.SMTP.Host != "" {
		publishers = append(publishers, services.NewEmailService(cfg))
	}

	return publishers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				utils.LogError("failed to close publisher: %v", err)
			}
		}
	}
}

// newLocker uses Redis when REDIS_URL is set and reachable
func newLocker(ctx context.Context, cfg *config.Config) (services.TenantLocker, func()) {
	if cfg.Redis.URL == "" {
		return services.NewLocalTenantLocker(), func() {}
	}

	client, err := services.ConnectRedis(cfg.Redis.URL)
	if err != nil {
		utils.LogError("Redis disabled, using in-process tenant locks: %v", err)
		return services.NewLocalTenantLocker(), func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		utils.LogError("Redis unreachable, using in-process tenant locks: %v", err)
		client.Close()
		return services.NewLocalTenantLocker(), func() {}
	}

	utils.LogInfo("Using Redis tenant locks")
	return services.NewRedisTenantLocker(client, cfg.Redis.LockTTL), func() { client.Close() }
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := utils.InitLoggers(cfg.Log.Dir, cfg.Log.Debug); err != nil {
		log.Fatalf("Failed to initialise loggers: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, closePublisher := newPublisher(cfg)
	defer closePublisher()
	locker, closeLocker := newLocker(ctx, cfg)
	defer closeLocker()

	svc := newServices(db.DB, cfg, publisher, locker)

	if cfg.Scheduler.Enabled {
		services.NewPaymentSchedulerService(db.DB, cfg.Scheduler.Interval).Start(ctx)
		utils.LogInfo("Rent schedule roller started, interval %v", cfg.Scheduler.Interval)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		reader, err := services.NewKafkaPaymentReader(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.BankTopic)
		if err != nil {
			utils.LogError("Bank payment sync disabled: %v", err)
		} else {
			worker := services.NewPaymentSyncWorker(reader, svc.ledger)
			defer worker.Close()
			go func() {
				if err := worker.Run(ctx); err != nil {
					utils.LogError("Bank payment sync stopped: %v", err)
				}
			}()
			utils.LogInfo("Bank payment sync consuming %s", cfg.Kafka.BankTopic)
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(cfg, db, svc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		utils.LogInfo("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	utils.LogInfo("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.LogError("Graceful shutdown failed: %v", err)
	}
}
