package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promo-bot/models"
	"promo-bot/sentinel"
)

// inventoryLockKey is the pg_advisory_xact_lock key serializing every claim.
const inventoryLockKey int64 = 0x70726f6d6f // "promo"

// InventoryService owns the promo code pool.
type InventoryService struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewInventoryService(db *gorm.DB) *InventoryService {
	return &InventoryService{DB: db, now: time.Now}
}

// ClaimNext takes the first available code by position and marks it claimed
// for userID before returning it. A code already held by userID (left behind
// by a failed release) is returned again instead of drawing a new one.
func (s *InventoryService) ClaimNext(ctx context.Context, userID int64) (*models.PromoCode, error) {
	var code models.PromoCode
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", inventoryLockKey).Error; err != nil {
			return err
		}

		err := tx.Where("claimed_by = ? AND status = ?", userID, models.CodeClaimed).Take(&code).Error
		if err == nil {
			log.Printf("♻️ [INVENTORY] User %d already holds code %s", userID, code.Code)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ?", models.CodeAvailable).
			Order("position ASC, code ASC").
			Take(&code).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sentinel.ErrPoolExhausted
		}
		if err != nil {
			return err
		}

		now := s.now()
		code.Status, code.ClaimedBy, code.ClaimedAt, code.SheetSynced = models.CodeClaimed, &userID, &now, false
		return tx.Model(&models.PromoCode{}).
			Where("id = ?", code.ID).
			Updates(map[string]interface{}{
				"status":       models.CodeClaimed,
				"claimed_by":   userID,
				"claimed_at":   now,
				"sheet_synced": false,
			}).Error
	})
	if err != nil {
		return nil, storeErr("inventory claim", err)
	}
	log.Printf("🎟️ [INVENTORY] Code %s claimed for user %d", code.Code, userID)
	return &code, nil
}

// Release puts a claimed or retired code back into the pool. Releasing an
// available code is a no-op; a code committed to a completed participant is
// never released.
func (s *InventoryService) Release(ctx context.Context, code string) error {
	res := s.DB.WithContext(ctx).Model(&models.PromoCode{}).
		Where("code = ? AND status IN ?", code, usedStatuses).
		Where("NOT EXISTS (SELECT 1 FROM participants WHERE participants.promo_code = promo_codes.code)").
		Updates(map[string]interface{}{
			"status":       models.CodeAvailable,
			"claimed_by":   nil,
			"claimed_at":   nil,
			"sheet_synced": false,
		})
	if res.Error != nil {
		return storeErr("inventory release", res.Error)
	}
	if res.RowsAffected == 1 {
		log.Printf("↩️ [INVENTORY] Code %s released", code)
		return nil
	}

	var existing models.PromoCode
	if err := s.DB.WithContext(ctx).Take(&existing, "code = ?", code).Error; err != nil {
		return storeErr("inventory release", err)
	}
	if !existing.IsAvailable() {
		log.Printf("⚠️ [INVENTORY] Code %s is committed to a participant, not released", code)
	}
	return nil
}

func (s *InventoryService) Get(ctx context.Context, code string) (*models.PromoCode, error) {
	var c models.PromoCode
	if err := s.DB.WithContext(ctx).Take(&c, "code = ?", code).Error; err != nil {
		return nil, storeErr("inventory get", err)
	}
	return &c, nil
}

func (s *InventoryService) ListAvailable(ctx context.Context) ([]models.PromoCode, error) {
	var out []models.PromoCode
	if err := s.DB.WithContext(ctx).
		Where("status = ?", models.CodeAvailable).
		Order("position ASC, code ASC").
		Find(&out).Error; err != nil {
		return nil, storeErr("inventory list", err)
	}
	return out, nil
}

// InventoryCounts is the number of codes per status.
type InventoryCounts struct {
	Available int64 `json:"available"`
	Claimed   int64 `json:"claimed"`
	Retired   int64 `json:"retired"`
}

func (c InventoryCounts) Total() int64 {
	return c.Available + c.Claimed + c.Retired
}

func (s *InventoryService) CountByStatus(ctx context.Context) (InventoryCounts, error) {
	var rows []struct {
		Status models.CodeStatus
		Count  int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.PromoCode{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return InventoryCounts{}, storeErr("inventory count", err)
	}
	var counts InventoryCounts
	for _, r := range rows {
		switch r.Status {
		case models.CodeAvailable:
			counts.Available = r.Count
		case models.CodeClaimed:
			counts.Claimed = r.Count
		case models.CodeRetired:
			counts.Retired = r.Count
		}
	}
	return counts, nil
}

// ImportedCode is one row of the promo sheet.
type ImportedCode struct {
	Code     string
	Position int
}

// Import inserts codes that are not known yet as available. Existing rows are
// never touched, whatever their status.
func (s *InventoryService) Import(ctx context.Context, codes []ImportedCode) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	rows := make([]models.PromoCode, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, models.PromoCode{
			ID:       uuid.NewString(),
			Code:     c.Code,
			Position: c.Position,
			Status:   models.CodeAvailable,
		})
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		CreateInBatches(&rows, 200)
	if res.Error != nil {
		return 0, storeErr("inventory import", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("📥 [INVENTORY] Imported %d new promo code(s)", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// usedStatuses are the statuses written back to the sheet as used.
var usedStatuses = []models.CodeStatus{models.CodeClaimed, models.CodeRetired}

// PendingSheetUpdates returns claimed or retired codes whose status has not
// been written back to the promo sheet yet.
func (s *InventoryService) PendingSheetUpdates(ctx context.Context) ([]models.PromoCode, error) {
	var out []models.PromoCode
	if err := s.DB.WithContext(ctx).
		Where("status IN ? AND sheet_synced = ?", usedStatuses, false).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, storeErr("inventory pending sheet updates", err)
	}
	return out, nil
}

func (s *InventoryService) MarkSheetSynced(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	if err := s.DB.WithContext(ctx).Model(&models.PromoCode{}).
		Where("code IN ? AND status IN ?", codes, usedStatuses).
		Update("sheet_synced", true).Error; err != nil {
		return storeErr("inventory mark synced", err)
	}
	return nil
}

