package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"promo-bot/bot"
	"promo-bot/config"
	"promo-bot/handlers"
	"promo-bot/metrics"
	"promo-bot/registration"
	"promo-bot/reminders"
	"promo-bot/services"
	"promo-bot/sessions"
	"promo-bot/utils"
	"promo-bot/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := services.OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	if err := services.Migrate(db); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	var sessionStore registration.Sessions
	var sessionHealth services.SessionHealth
	if cfg.Redis.URL != "" {
		client, err := sessions.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("failed to connect to redis: ", err)
		}
		defer client.Close()
		redisStore := sessions.NewRedisStore(client, cfg.SessionTTL)
		sessionStore, sessionHealth = redisStore, redisStore
		log.Println("✅ Pending confirmations are kept in Redis")
	} else {
		sessionStore = sessions.NewMemoryStore(cfg.SessionTTL)
		log.Println("⚠️  REDIS_URL not set, pending confirmations are kept in memory")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal("failed to connect to telegram: ", err)
	}
	api.Debug = cfg.Development()
	log.Printf("🤖 Authorized on Telegram as @%s", api.Self.UserName)
	notifier := bot.NewNotifier(api, cfg.AdminUserIDs)

	ledger := services.NewLedgerService(db)
	inventory := services.NewInventoryService(db)
	eligibility := services.NewEligibilityService(db)
	audit := services.NewAuditService(db)

	reminderService := reminders.New(ledger, notifier, cfg.Campaign, reminders.WithCounter(m))

	workflow, err := registration.New(ledger, inventory, eligibility, sessionStore,
		registration.WithRecorder(m),
		registration.WithCompletionHook(reminderService.NotifyCompletion),
	)
	if err != nil {
		log.Fatal("failed to build registration workflow: ", err)
	}

	// Sheets mirror is optional; without it the tables are managed through the admin tools.
	var syncWorker *workers.SheetsSyncWorker
	var syncStatus services.SyncStatus
	if cfg.Sheets.Enabled() {
		sheetsClient, err := utils.NewSheetsClient(ctx, option.WithCredentialsFile(cfg.Sheets.CredentialsFile))
		if err != nil {
			log.Fatal("failed to connect to google sheets: ", err)
		}
		syncWorker = workers.NewSheetsSyncWorker(sheetsClient, eligibility, inventory,
			cfg.Sheets.EmailsSheetID, cfg.Sheets.PromosSheetID, cfg.Sheets.SyncInterval, m)
		syncStatus = syncWorker
	} else {
		log.Println("⚠️  Google Sheets are not configured, skipping the sync worker")
	}

	monitoring := services.NewMonitoringService(db, cfg.Monitoring, notifier, syncStatus, m)
	monitoring.Sessions = sessionHealth

	scheduler, err := services.NewScheduler(ctx, time.Local)
	if err != nil {
		log.Fatal("failed to create scheduler: ", err)
	}
	mustSchedule(scheduler.Every("reminders", 5*time.Minute, func(ctx context.Context) {
		if _, err := reminderService.Run(ctx); err != nil {
			log.Printf("❌ [REMINDERS] Run failed: %v", err)
		}
	}))
	mustSchedule(scheduler.Every("critical-alerts", 30*time.Minute, monitoring.CheckCritical))
	mustSchedule(scheduler.Daily("daily-report", cfg.Monitoring.DailyReportHour, 0, func(ctx context.Context) {
		monitoring.SendDailyReport(ctx, cfg.Campaign)
	}))
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		exporter := services.NewExportService(ledger, r2, cfg.Campaign)
		mustSchedule(scheduler.Daily("daily-export", cfg.Monitoring.DailyReportHour, 5, func(ctx context.Context) {
			if _, _, err := exporter.Export(ctx); err != nil {
				log.Printf("❌ [EXPORT] Daily export failed: %v", err)
			}
		}))
	}

	promoBot := bot.New(api, workflow, bot.Settings{
		Campaign:        cfg.Campaign,
		SupportUsername: cfg.SupportUsername,
		RegistrationURL: cfg.RegistrationURL,
		PromoURL:        cfg.PromoURL,
		AdminIDs:        cfg.AdminUserIDs,
	}, bot.WithReports(monitoring, audit), bot.WithObserver(m))

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	adminDeps := handlers.AdminDeps{
		Participants: ledger,
		Codes:        inventory,
		Audit:        audit,
		Monitoring:   monitoring,
		Metrics:      promhttp.Handler(),
		Token:        cfg.Admin.APIToken,
	}
	if syncWorker != nil {
		adminDeps.Sync = syncWorker
	}
	handlers.SetupAdminRoutes(app, adminDeps)

	g, ctx := errgroup.WithContext(ctx)

	if syncWorker != nil {
		g.Go(func() error {
			syncWorker.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := api.GetUpdatesChan(u)
		go func() {
			<-ctx.Done()
			api.StopReceivingUpdates()
		}()
		return promoBot.Run(ctx, updates)
	})

	g.Go(func() error {
		log.Printf("✅ Admin API listening on %s", cfg.Admin.Addr)
		if err := app.Listen(cfg.Admin.Addr); err != nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	log.Printf("✅ %s bot running", cfg.Campaign)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("❌ ", err)
	}
	log.Println("Shutting down...")
}

func mustSchedule(err error) {
	if err != nil {
		log.Fatal("failed to schedule job: ", err)
	}
}
