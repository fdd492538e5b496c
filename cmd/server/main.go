package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dagdev/vpnbill/internal/api"
	v1 "github.com/dagdev/vpnbill/internal/api/v1"
	"github.com/dagdev/vpnbill/internal/cache"
	"github.com/dagdev/vpnbill/internal/config"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/notify"
	"github.com/dagdev/vpnbill/internal/postgres"
	"github.com/dagdev/vpnbill/internal/provisioning"
	"github.com/dagdev/vpnbill/internal/repository"
	"github.com/dagdev/vpnbill/internal/scheduler"
	"github.com/dagdev/vpnbill/internal/sentry"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/dagdev/vpnbill/internal/telegram"
	"github.com/dagdev/vpnbill/internal/types"
	"github.com/dagdev/vpnbill/internal/validator"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// .env is optional, real deployments pass VPNBILL_* variables directly
	_ = godotenv.Load()

	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,

			// Cache
			provideCache,

			// Postgres
			postgres.NewDB,

			// Repositories
			repository.NewInvoiceRepository,

			// Telegram
			telegram.NewBotAPI,
			telegram.NewSender,
			provideNotifier,
			provideAlerts,
			provideMessenger,

			// Provisioning panel
			provideProvisioner,

			// Tariffs
			provideTariffs,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewSubscriptionService,
			service.NewPaymentService,
			service.NewReconciliationService,
			service.NewInvoiceService,
			service.NewStatsService,
			service.NewReminderService,
		),
	)

	// API, chat intake and background jobs
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
			provideTelegramServices,
			scheduler.NewScheduler,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			registerShutdownHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache() cache.Cache {
	return cache.NewInMemoryCache()
}

func provideTariffs(cfg *config.Configuration) *types.TariffCatalog {
	return types.NewTariffCatalog(cfg.Tariffs)
}

func provideNotifier(sender notify.Sender, cfg *config.Configuration, log *logger.Logger) *notify.TelegramNotifier {
	return notify.NewTelegramNotifier(sender, cfg.Telegram, log)
}

func provideAlerts(n *notify.TelegramNotifier) notify.Notifier {
	return n
}

func provideMessenger(sender notify.Sender, log *logger.Logger) notify.Messenger {
	return notify.NewTelegramMessenger(sender, log)
}

func provideProvisioner(cfg *config.Configuration, c cache.Cache, alerts notify.Notifier, log *logger.Logger) service.Provisioner {
	return provisioning.NewClient(cfg.Provisioning, c, alerts, log)
}

func provideHandlers(
	db *postgres.DB,
	paymentService service.PaymentService,
	invoiceService service.InvoiceService,
	reconciliationService service.ReconciliationService,
	subscriptionService service.SubscriptionService,
	statsService service.StatsService,
	log *logger.Logger,
) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(db, log),
		Payment: v1.NewPaymentHandler(paymentService, log),
		Invoice: v1.NewInvoiceHandler(invoiceService, paymentService, reconciliationService, log),
		Stats:   v1.NewStatsHandler(statsService, log),
		Access:  v1.NewAccessHandler(subscriptionService, log),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, log)
}

func provideTelegramServices(
	paymentService service.PaymentService,
	subscriptionService service.SubscriptionService,
	invoiceService service.InvoiceService,
	reconciliationService service.ReconciliationService,
	statsService service.StatsService,
) telegram.Services {
	return telegram.Services{
		Payments:       paymentService,
		Subscriptions:  subscriptionService,
		Invoices:       invoiceService,
		Reconciliation: reconciliationService,
		Stats:          statsService,
	}
}

// registerShutdownHooks runs last on stop: pending operator alerts are flushed
// before the database pool closes.
func registerShutdownHooks(lc fx.Lifecycle, db *postgres.DB, notifier *notify.TelegramNotifier, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				notifier.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				log.Warn("timeout while flushing operator alerts")
			}
			db.Close()
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *postgres.DB,
	bot *tgbotapi.BotAPI,
	tgServices telegram.Services,
	tariffs *types.TariffCatalog,
	sched *scheduler.Scheduler,
	reconciliationService service.ReconciliationService,
	reminderService service.ReminderService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		runMigrations(lc, db, log)
		startAPIServer(lc, r, cfg, log)
		startTelegramPoller(lc, bot, tgServices, cfg, tariffs, log)
		startReconciler(lc, sched, cfg, reconciliationService, reminderService, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
		startTelegramPoller(lc, bot, tgServices, cfg, tariffs, log)
	case types.ModeWorker:
		startReconciler(lc, sched, cfg, reconciliationService, reminderService, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func runMigrations(lc fx.Lifecycle, db *postgres.DB, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			applied, err := db.Migrate(ctx)
			if err != nil {
				return err
			}
			log.Infow("database schema up to date", "applied", applied)
			return nil
		},
	})
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}

func startTelegramPoller(
	lc fx.Lifecycle,
	bot *tgbotapi.BotAPI,
	services telegram.Services,
	cfg *config.Configuration,
	tariffs *types.TariffCatalog,
	log *logger.Logger,
) {
	if bot == nil {
		log.Warn("telegram bot is not configured, chat payments are disabled")
		return
	}
	poller := telegram.NewPoller(bot, services, cfg, tariffs, log)
	poller.RegisterWithLifecycle(lc)
}

func startReconciler(
	lc fx.Lifecycle,
	sched *scheduler.Scheduler,
	cfg *config.Configuration,
	reconciliationService service.ReconciliationService,
	reminderService service.ReminderService,
	log *logger.Logger,
) {
	if err := scheduler.RegisterReconciliation(sched, cfg, reconciliationService, log); err != nil {
		log.Fatalf("Failed to schedule reconciliation: %v", err)
	}
	if err := scheduler.RegisterReminders(sched, cfg, reminderService, log); err != nil {
		log.Fatalf("Failed to schedule expiry reminders: %v", err)
	}
	sched.RegisterWithLifecycle(lc)
}
