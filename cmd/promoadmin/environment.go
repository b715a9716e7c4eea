package main

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"gorm.io/gorm"

	"promo-bot/config"
	"promo-bot/services"
	"promo-bot/utils"
	"promo-bot/workers"
)

// environment holds what the commands share. Everything is built lazily so
// `--help` works without a database.
type environment struct {
	cfg *config.Config
	db  *gorm.DB

	ledger      *services.LedgerService
	inventory   *services.InventoryService
	eligibility *services.EligibilityService
	audit       *services.AuditService
}

func (e *environment) open() error {
	if e.db != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := services.OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	e.cfg, e.db = cfg, db
	e.ledger = services.NewLedgerService(db)
	e.inventory = services.NewInventoryService(db)
	e.eligibility = services.NewEligibilityService(db)
	e.audit = services.NewAuditService(db)
	return nil
}

func (e *environment) syncWorker(ctx context.Context) (*workers.SheetsSyncWorker, error) {
	if !e.cfg.Sheets.Enabled() {
		return nil, fmt.Errorf("google sheets are not configured (GOOGLE_SHEET_EMAILS_ID, GOOGLE_SHEET_PROMOS_ID)")
	}
	client, err := utils.NewSheetsClient(ctx, option.WithCredentialsFile(e.cfg.Sheets.CredentialsFile))
	if err != nil {
		return nil, err
	}
	return workers.NewSheetsSyncWorker(client, e.eligibility, e.inventory,
		e.cfg.Sheets.EmailsSheetID, e.cfg.Sheets.PromosSheetID, e.cfg.Sheets.SyncInterval, nil), nil
}

func (e *environment) exporter(ctx context.Context) (*services.ExportService, error) {
	if !e.cfg.R2.Enabled() {
		return nil, fmt.Errorf("R2 is not configured (CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_ACCESS_KEY_SECRET, R2_BUCKET_NAME)")
	}
	r2, err := utils.NewR2Client(ctx, e.cfg.R2)
	if err != nil {
		return nil, err
	}
	return services.NewExportService(e.ledger, r2, e.cfg.Campaign), nil
}
