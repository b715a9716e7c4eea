package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promo-bot/models"
	"promo-bot/sentinel"
	"promo-bot/utils"
)

// LedgerService is the durable record of participants. The unique indexes on
// inn and promo_code are what make a completed registration exclusive.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

func (s *LedgerService) Get(ctx context.Context, userID int64) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, storeErr("ledger get", err)
	}
	return &p, nil
}

// CreateIfAbsent inserts the participant unless it exists and returns the
// stored row. A changed Telegram handle is refreshed on existing rows.
func (s *LedgerService) CreateIfAbsent(ctx context.Context, userID int64, handle string) (*models.Participant, bool, error) {
	p := models.Participant{UserID: userID, Stage: models.StageAwaitingEmail}
	if handle != "" {
		p.TelegramUsername = &handle
	}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&p)
	if res.Error != nil {
		return nil, false, storeErr("ledger create", res.Error)
	}
	created := res.RowsAffected == 1

	stored, err := s.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if !created && handle != "" && stored.Handle() != handle {
		if err := s.DB.WithContext(ctx).Model(&models.Participant{}).
			Where("user_id = ?", userID).
			UpdateColumn("telegram_username", handle).Error; err != nil {
			log.Printf("⚠️ [LEDGER] Failed to refresh handle of user %d: %v", userID, err)
		} else {
			stored.TelegramUsername = &handle
		}
	}
	if created {
		log.Printf("🆕 [LEDGER] Participant %d created", userID)
	}
	return stored, created, nil
}

// Update applies a partial update. Completed participants are never modified;
// an update addressed to one is a silent no-op.
func (s *LedgerService) Update(ctx context.Context, userID int64, upd models.ParticipantUpdate) error {
	if upd.Empty() {
		return nil
	}
	fields := map[string]interface{}{}
	if upd.TelegramUsername != nil {
		fields["telegram_username"] = *upd.TelegramUsername
	}
	if upd.Email != nil {
		fields["email"] = *upd.Email
	}
	if upd.Stage != nil {
		if !upd.Stage.Valid() || *upd.Stage == models.StageCompleted {
			return fmt.Errorf("ledger update: stage %q cannot be set directly", *upd.Stage)
		}
		fields["stage"] = *upd.Stage
	}

	res := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("user_id = ? AND stage <> ?", userID, models.StageCompleted).
		Updates(fields)
	if res.Error != nil {
		return storeErr("ledger update", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either missing or completed; only the former is an error.
		if _, err := s.Get(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerService) INNExists(ctx context.Context, inn string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("inn = ?", inn).
		Count(&count).Error; err != nil {
		return false, storeErr("ledger inn lookup", err)
	}
	return count > 0, nil
}

// CommitCompletion records INN, promo code and completion in one statement.
// It only applies while the participant awaits confirmation: a lost guard is
// reported as sentinel.ErrWrongStage, a unique violation on inn / promo_code
// as sentinel.ErrConflict.
func (s *LedgerService) CommitCompletion(ctx context.Context, userID int64, inn, code string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("user_id = ? AND stage = ?", userID, models.StageAwaitingConfirmation).
		Updates(map[string]interface{}{
			"inn":          inn,
			"promo_code":   code,
			"stage":        models.StageCompleted,
			"completed_at": at,
		})
	if res.Error != nil {
		return storeErr("ledger commit", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ledger commit: user %d is not awaiting confirmation: %w", userID, sentinel.ErrWrongStage)
	}
	log.Printf("✅ [LEDGER] User %d committed INN %s with promo %s", userID, utils.MaskINN(inn), code)
	return nil
}

// Delete removes a participant in one transaction. A delivered promo code is
// retired and stays out of the pool until an operator releases it; codes
// stranded by a failed release go back to the pool. It returns the deleted row.
func (s *LedgerService) Delete(ctx context.Context, userID int64) (*models.Participant, error) {
	var p models.Participant
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&p, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Participant{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.ReminderLog{}).Error; err != nil {
			return err
		}
		if committed := p.PromoCodeValue(); committed != "" {
			// claimed_by is cleared so the user can claim again after re-registering.
			if err := tx.Model(&models.PromoCode{}).
				Where("code = ? AND status = ?", committed, models.CodeClaimed).
				Updates(map[string]interface{}{
					"status":     models.CodeRetired,
					"claimed_by": nil,
				}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.PromoCode{}).
			Where("claimed_by = ? AND status = ?", userID, models.CodeClaimed).
			Updates(map[string]interface{}{
				"status":       models.CodeAvailable,
				"claimed_by":   nil,
				"claimed_at":   nil,
				"sheet_synced": false,
			}).Error
	})
	if err != nil {
		return nil, storeErr("ledger delete", err)
	}
	log.Printf("🗑️ [LEDGER] Participant %d deleted (promo %q retired)", userID, p.PromoCodeValue())
	return &p, nil
}

// ListIncomplete returns participants that have not completed and were created
// at or before createdBefore.
func (s *LedgerService) ListIncomplete(ctx context.Context, createdBefore time.Time) ([]models.Participant, error) {
	var out []models.Participant
	if err := s.DB.WithContext(ctx).
		Where("stage <> ? AND created_at <= ?", models.StageCompleted, createdBefore).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, storeErr("ledger list incomplete", err)
	}
	return out, nil
}

// ListCompletedBefore returns participants that completed at or before t.
func (s *LedgerService) ListCompletedBefore(ctx context.Context, t time.Time) ([]models.Participant, error) {
	var out []models.Participant
	if err := s.DB.WithContext(ctx).
		Where("stage = ? AND completed_at <= ?", models.StageCompleted, t).
		Order("completed_at ASC").
		Find(&out).Error; err != nil {
		return nil, storeErr("ledger list completed", err)
	}
	return out, nil
}

func (s *LedgerService) SentReminders(ctx context.Context, userID int64) (map[models.ReminderType]bool, error) {
	var logs []models.ReminderLog
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&logs).Error; err != nil {
		return nil, storeErr("ledger reminders", err)
	}
	sent := make(map[models.ReminderType]bool, len(logs))
	for _, l := range logs {
		sent[l.ReminderType] = true
	}
	return sent, nil
}

// MarkReminderSent records a delivered reminder. It returns false when the
// reminder had already been recorded.
func (s *LedgerService) MarkReminderSent(ctx context.Context, userID int64, typ models.ReminderType) (bool, error) {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ReminderLog{UserID: userID, ReminderType: typ})
	if res.Error != nil {
		return false, storeErr("ledger mark reminder", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// LedgerStats summarizes registration progress.
type LedgerStats struct {
	Total          int64                  `json:"total"`
	ByStage        map[models.Stage]int64 `json:"by_stage"`
	Completed      int64                  `json:"completed"`
	CompletedToday int64                  `json:"completed_today"`
	StartedToday   int64                  `json:"started_today"`
	Conversion     float64                `json:"conversion_percent"`
}

func (s *LedgerService) Stats(ctx context.Context, now time.Time) (*LedgerStats, error) {
	var rows []struct {
		Stage models.Stage
		Count int64
	}
	db := s.DB.WithContext(ctx)
	if err := db.Model(&models.Participant{}).
		Select("stage, COUNT(*) AS count").
		Group("stage").
		Scan(&rows).Error; err != nil {
		return nil, storeErr("ledger stats", err)
	}

	stats := &LedgerStats{ByStage: make(map[models.Stage]int64)}
	for _, r := range rows {
		stats.ByStage[r.Stage] = r.Count
		stats.Total += r.Count
	}
	stats.Completed = stats.ByStage[models.StageCompleted]
	if stats.Total > 0 {
		stats.Conversion = float64(stats.Completed) / float64(stats.Total) * 100
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := db.Model(&models.Participant{}).
		Where("stage = ? AND completed_at >= ?", models.StageCompleted, midnight).
		Count(&stats.CompletedToday).Error; err != nil {
		return nil, storeErr("ledger stats", err)
	}
	if err := db.Model(&models.Participant{}).
		Where("created_at >= ?", midnight).
		Count(&stats.StartedToday).Error; err != nil {
		return nil, storeErr("ledger stats", err)
	}
	return stats, nil
}

// List returns participants newest first, optionally filtered by stage.
func (s *LedgerService) List(ctx context.Context, stage models.Stage, limit, offset int) ([]models.Participant, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	var out []models.Participant
	if err := q.Find(&out).Error; err != nil {
		return nil, storeErr("ledger list", err)
	}
	return out, nil
}

// All returns every participant ordered by creation, for exports.
func (s *LedgerService) All(ctx context.Context) ([]models.Participant, error) {
	var out []models.Participant
	if err := s.DB.WithContext(ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, storeErr("ledger all", err)
	}
	return out, nil
}
