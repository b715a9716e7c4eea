package services

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"promo-bot/models"
)

// repairGracePeriod keeps Repair away from claims whose commit may still be in flight.
const repairGracePeriod = 10 * time.Minute

// AuditReport compares the inventory with the ledger. In a healthy system the
// number of claimed codes equals the number of completed participants.
type AuditReport struct {
	ClaimedCodes   int64                `json:"claimed_codes"`
	Completed      int64                `json:"completed"`
	Balanced       bool                 `json:"balanced"`
	Leaked         []models.PromoCode   `json:"leaked"`  // claimed, not held by any participant
	Orphans        []models.Participant `json:"orphans"` // completed with a code the inventory does not show as claimed
	DuplicateINNs  []string             `json:"duplicate_inns"`
	DuplicateCodes []string             `json:"duplicate_codes"`
	CheckedAt      time.Time            `json:"checked_at"`
}

// Clean reports whether the audit found nothing to act on.
func (r *AuditReport) Clean() bool {
	return r.Balanced && len(r.Leaked) == 0 && len(r.Orphans) == 0 &&
		len(r.DuplicateINNs) == 0 && len(r.DuplicateCodes) == 0
}

type AuditService struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{DB: db, now: time.Now}
}

func (s *AuditService) Run(ctx context.Context) (*AuditReport, error) {
	db := s.DB.WithContext(ctx)
	report := &AuditReport{CheckedAt: s.now()}

	if err := db.Model(&models.PromoCode{}).
		Where("status = ?", models.CodeClaimed).
		Count(&report.ClaimedCodes).Error; err != nil {
		return nil, storeErr("audit count claimed", err)
	}
	if err := db.Model(&models.Participant{}).
		Where("stage = ?", models.StageCompleted).
		Count(&report.Completed).Error; err != nil {
		return nil, storeErr("audit count completed", err)
	}
	report.Balanced = report.ClaimedCodes == report.Completed

	if err := db.
		Where("status = ?", models.CodeClaimed).
		Where("NOT EXISTS (SELECT 1 FROM participants p WHERE p.promo_code = promo_codes.code AND p.stage = ?)", models.StageCompleted).
		Order("claimed_at ASC").
		Find(&report.Leaked).Error; err != nil {
		return nil, storeErr("audit leaked", err)
	}
	if err := db.
		Where("stage = ? AND promo_code IS NOT NULL", models.StageCompleted).
		Where("NOT EXISTS (SELECT 1 FROM promo_codes c WHERE c.code = participants.promo_code AND c.status = ?)", models.CodeClaimed).
		Find(&report.Orphans).Error; err != nil {
		return nil, storeErr("audit orphans", err)
	}
	if err := db.Model(&models.Participant{}).
		Where("inn IS NOT NULL").
		Group("inn").Having("COUNT(*) > 1").
		Pluck("inn", &report.DuplicateINNs).Error; err != nil {
		return nil, storeErr("audit duplicate inns", err)
	}
	if err := db.Model(&models.Participant{}).
		Where("promo_code IS NOT NULL").
		Group("promo_code").Having("COUNT(*) > 1").
		Pluck("promo_code", &report.DuplicateCodes).Error; err != nil {
		return nil, storeErr("audit duplicate codes", err)
	}

	if report.Clean() {
		log.Printf("✅ [AUDIT] %d claimed codes, %d completed participants, no discrepancies", report.ClaimedCodes, report.Completed)
	} else {
		log.Printf("🚨 [AUDIT] claimed=%d completed=%d leaked=%d orphans=%d duplicate_inns=%d duplicate_codes=%d",
			report.ClaimedCodes, report.Completed, len(report.Leaked), len(report.Orphans),
			len(report.DuplicateINNs), len(report.DuplicateCodes))
	}
	return report, nil
}

// Repair returns leaked codes to the pool. Codes claimed within the grace
// period are skipped since their registration may still be committing; the
// claim lock is held so no new claim interleaves with the repair.
func (s *AuditService) Repair(ctx context.Context) ([]string, error) {
	var released []string
	cutoff := s.now().Add(-repairGracePeriod)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", inventoryLockKey).Error; err != nil {
			return err
		}
		var leaked []models.PromoCode
		if err := tx.
			Where("status = ? AND (claimed_at IS NULL OR claimed_at < ?)", models.CodeClaimed, cutoff).
			Where("NOT EXISTS (SELECT 1 FROM participants p WHERE p.promo_code = promo_codes.code)").
			Find(&leaked).Error; err != nil {
			return err
		}
		for _, c := range leaked {
			if err := tx.Model(&models.PromoCode{}).
				Where("id = ?", c.ID).
				Updates(map[string]interface{}{
					"status":       models.CodeAvailable,
					"claimed_by":   nil,
					"claimed_at":   nil,
					"sheet_synced": false,
				}).Error; err != nil {
				return err
			}
			released = append(released, c.Code)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("audit repair", err)
	}
	if len(released) > 0 {
		log.Printf("🔧 [AUDIT] Released %d leaked code(s): %v", len(released), released)
	}
	return released, nil
}
