package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"promo-bot/config"
	"promo-bot/models"
)

// AdminNotifier delivers a message to every configured administrator.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string)
}

// SyncStatus reports the outcome of the most recent sheets sync.
type SyncStatus interface {
	LastSync() (time.Time, error)
}

// PoolGauges receives inventory and ledger sizes after every check.
type PoolGauges interface {
	SetPool(available, claimed int64)
	SetStages(byStage map[string]int64)
}

// Alert is one threshold violation. Critical alerts are pushed to admins as
// soon as they are detected; the rest only appear in the daily report.
type Alert struct {
	Critical bool   `json:"critical"`
	Message  string `json:"message"`
}

type CheckResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type HealthReport struct {
	Status         string                 `json:"status"`
	Checks         map[string]CheckResult `json:"checks"`
	AvailableCodes int64                  `json:"available_codes"`
	CheckedAt      time.Time              `json:"checked_at"`
}

// SessionHealth is the session store's connectivity check. Optional.
type SessionHealth interface {
	Health(ctx context.Context) error
}

type MonitoringService struct {
	DB        *gorm.DB
	Ledger    *LedgerService
	Inventory *InventoryService
	Audit     *AuditService
	Sessions  SessionHealth

	cfg      config.MonitoringConfig
	notifier AdminNotifier
	sync     SyncStatus
	gauges   PoolGauges
	now      func() time.Time

	mu        sync.Mutex
	lastAlert string
}

func NewMonitoringService(db *gorm.DB, cfg config.MonitoringConfig, notifier AdminNotifier, syncStatus SyncStatus, gauges PoolGauges) *MonitoringService {
	return &MonitoringService{
		DB:        db,
		Ledger:    NewLedgerService(db),
		Inventory: NewInventoryService(db),
		Audit:     NewAuditService(db),
		cfg:       cfg,
		notifier:  notifier,
		sync:      syncStatus,
		gauges:    gauges,
		now:       time.Now,
	}
}

func (s *MonitoringService) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{Status: "healthy", Checks: map[string]CheckResult{}, CheckedAt: s.now()}

	if err := Ping(ctx, s.DB); err != nil {
		report.Checks["database"] = CheckResult{Detail: err.Error()}
	} else {
		report.Checks["database"] = CheckResult{OK: true}
	}

	if s.Sessions != nil {
		if err := s.Sessions.Health(ctx); err != nil {
			report.Checks["sessions"] = CheckResult{Detail: err.Error()}
		} else {
			report.Checks["sessions"] = CheckResult{OK: true}
		}
	}

	if s.sync != nil {
		at, err := s.sync.LastSync()
		switch {
		case err != nil:
			report.Checks["google_sheets"] = CheckResult{Detail: err.Error()}
		case at.IsZero():
			report.Checks["google_sheets"] = CheckResult{Detail: "not synced yet"}
		default:
			report.Checks["google_sheets"] = CheckResult{OK: true, Detail: "last sync " + at.Format(time.RFC3339)}
		}
	}

	counts, err := s.Inventory.CountByStatus(ctx)
	if err != nil {
		report.Checks["promo_codes"] = CheckResult{Detail: err.Error()}
	} else {
		report.AvailableCodes = counts.Available
		report.Checks["promo_codes"] = CheckResult{OK: counts.Available > 0, Detail: fmt.Sprintf("%d available", counts.Available)}
	}

	for _, c := range report.Checks {
		if !c.OK {
			report.Status = "degraded"
			break
		}
	}
	return report
}

// Alerts evaluates the thresholds and publishes the current gauges.
func (s *MonitoringService) Alerts(ctx context.Context) ([]Alert, error) {
	counts, err := s.Inventory.CountByStatus(ctx)
	if err != nil {
		return []Alert{{Critical: true, Message: fmt.Sprintf("❌ Ошибка проверки промокодов: %v", err)}}, err
	}
	stats, err := s.Ledger.Stats(ctx, s.now())
	if err != nil {
		return []Alert{{Critical: true, Message: fmt.Sprintf("❌ Ошибка проверки базы данных: %v", err)}}, err
	}
	if s.gauges != nil {
		s.gauges.SetPool(counts.Available, counts.Claimed)
		byStage := make(map[string]int64, len(stats.ByStage))
		for stage, n := range stats.ByStage {
			byStage[string(stage)] = n
		}
		s.gauges.SetStages(byStage)
	}
	alerts := evaluate(s.cfg, counts, stats)
	if counts.Claimed != stats.Completed {
		alerts = append(alerts, s.discrepancies(ctx)...)
	}
	return alerts, nil
}

// discrepancies explains a claimed/completed mismatch. Claims younger than the
// repair grace period are usually registrations still committing.
func (s *MonitoringService) discrepancies(ctx context.Context) []Alert {
	report, err := s.Audit.Run(ctx)
	if err != nil {
		return []Alert{{Critical: true, Message: fmt.Sprintf("❌ Ошибка аудита: %v", err)}}
	}
	cutoff := s.now().Add(-repairGracePeriod)
	stale := 0
	for _, c := range report.Leaked {
		if c.ClaimedAt == nil || c.ClaimedAt.Before(cutoff) {
			stale++
		}
	}
	var alerts []Alert
	if stale > 0 {
		alerts = append(alerts, Alert{Critical: true, Message: fmt.Sprintf(
			"❌ Утечка пула: %d промокод(ов) заняты без завершенной регистрации", stale)})
	}
	if len(report.Orphans) > 0 {
		alerts = append(alerts, Alert{Critical: true, Message: fmt.Sprintf(
			"❌ %d участник(ов) с промокодом, не отмеченным в пуле", len(report.Orphans))})
	}
	return alerts
}

func evaluate(cfg config.MonitoringConfig, counts InventoryCounts, stats *LedgerStats) []Alert {
	var alerts []Alert
	switch {
	case counts.Available == 0:
		alerts = append(alerts, Alert{Critical: true, Message: "❌ Промокоды закончились"})
	case counts.Available < cfg.LowPromoThreshold:
		alerts = append(alerts, Alert{Message: fmt.Sprintf("⚠️ Мало промокодов: %d", counts.Available)})
	}
	if stats.Total > 0 && stats.Conversion < cfg.LowConversionPercent {
		alerts = append(alerts, Alert{Message: fmt.Sprintf("⚠️ Низкая конверсия: %.1f%%", stats.Conversion)})
	}
	if counts.Claimed != stats.Completed {
		alerts = append(alerts, Alert{Message: fmt.Sprintf(
			"⚠️ Расхождение: выдано кодов %d, завершили регистрацию %d", counts.Claimed, stats.Completed)})
	}
	return alerts
}

// CheckCritical pushes critical alerts to admins. The same set of alerts is
// not repeated until it changes.
func (s *MonitoringService) CheckCritical(ctx context.Context) {
	alerts, err := s.Alerts(ctx)
	if err != nil {
		log.Printf("❌ [MONITOR] Metrics check failed: %v", err)
	}
	var critical []string
	for _, a := range alerts {
		if a.Critical {
			critical = append(critical, a.Message)
		}
	}
	key := strings.Join(critical, "\n")

	s.mu.Lock()
	changed := key != s.lastAlert
	s.lastAlert = key
	s.mu.Unlock()

	if len(critical) == 0 {
		if changed {
			log.Println("✅ [MONITOR] Critical alerts cleared")
		}
		return
	}
	if !changed {
		return
	}
	log.Printf("🚨 [MONITOR] %d critical alert(s)", len(critical))
	if s.notifier != nil {
		s.notifier.NotifyAdmins(ctx, "🚨 <b>Критический алерт!</b>\n\n"+key)
	}
}

// DailyReport renders the admin summary.
func (s *MonitoringService) DailyReport(ctx context.Context, campaign string) string {
	now := s.now()
	health := s.Health(ctx)
	alerts, _ := s.Alerts(ctx)
	stats, err := s.Ledger.Stats(ctx, now)
	if err != nil {
		stats = &LedgerStats{ByStage: map[models.Stage]int64{}}
	}
	counts, _ := s.Inventory.CountByStatus(ctx)

	mark := func(name string) string {
		if c, ok := health.Checks[name]; ok && c.OK {
			return "✅"
		}
		return "❌"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Ежедневный отчет - %s</b>\n", now.Format("02.01.2006"))
	fmt.Fprintf(&b, "<i>%s</i>\n\n", campaign)
	b.WriteString("👥 <b>Пользователи:</b>\n")
	fmt.Fprintf(&b, "• Всего: %d\n", stats.Total)
	fmt.Fprintf(&b, "• Завершили: %d\n", stats.Completed)
	fmt.Fprintf(&b, "• Конверсия: %.1f%%\n", stats.Conversion)
	fmt.Fprintf(&b, "• Сегодня: %d новых, %d завершили\n\n", stats.StartedToday, stats.CompletedToday)
	b.WriteString("🎟️ <b>Промокоды:</b>\n")
	fmt.Fprintf(&b, "• Выдано: %d\n", counts.Claimed)
	fmt.Fprintf(&b, "• Доступно: %d\n\n", counts.Available)
	b.WriteString("🔧 <b>Состояние системы:</b>\n")
	fmt.Fprintf(&b, "• База данных: %s\n", mark("database"))
	fmt.Fprintf(&b, "• Google Sheets: %s\n\n", mark("google_sheets"))
	if len(alerts) == 0 {
		b.WriteString("✅ <b>Все системы работают нормально</b>\n")
	} else {
		b.WriteString("⚠️ <b>Внимание:</b>\n")
		for _, a := range alerts {
			fmt.Fprintf(&b, "• %s\n", a.Message)
		}
	}
	return b.String()
}

func (s *MonitoringService) SendDailyReport(ctx context.Context, campaign string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyAdmins(ctx, s.DailyReport(ctx, campaign))
	log.Println("📨 [MONITOR] Daily report sent")
}
