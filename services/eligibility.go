package services

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promo-bot/models"
	"promo-bot/registration"
)

// ErrEmptyEligibilityList guards the mirror against being wiped by a bad read.
var ErrEmptyEligibilityList = errors.New("eligibility list is empty")

// EligibilityService is the local mirror of the approved email list. The
// registration flow only reads it; Replace is called by the sheets sync.
type EligibilityService struct {
	DB *gorm.DB
}

func NewEligibilityService(db *gorm.DB) *EligibilityService {
	return &EligibilityService{DB: db}
}

func (s *EligibilityService) Exists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.EligibleEmail{}).
		Where("email = ?", registration.NormalizeEmail(email)).
		Count(&count).Error; err != nil {
		return false, storeErr("eligibility lookup", err)
	}
	return count > 0, nil
}

func (s *EligibilityService) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.EligibleEmail{}).Count(&count).Error; err != nil {
		return 0, storeErr("eligibility count", err)
	}
	return count, nil
}

// Replace makes the mirror equal to emails. Entries are normalized and
// de-duplicated; rows missing from the new list are removed.
func (s *EligibilityService) Replace(ctx context.Context, emails []string) (int, error) {
	seen := make(map[string]struct{}, len(emails))
	rows := make([]models.EligibleEmail, 0, len(emails))
	now := time.Now().Truncate(time.Microsecond) // postgres timestamp precision
	for _, e := range emails {
		n := registration.NormalizeEmail(e)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		rows = append(rows, models.EligibleEmail{Email: n, SyncedAt: now})
	}
	if len(rows) == 0 {
		return 0, ErrEmptyEligibilityList
	}

	var removed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"synced_at"}),
		}).CreateInBatches(&rows, 500).Error; err != nil {
			return err
		}
		res := tx.Where("synced_at < ?", now).Delete(&models.EligibleEmail{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, storeErr("eligibility replace", err)
	}
	log.Printf("📧 [SYNC] Eligibility mirror holds %d email(s), %d removed", len(rows), removed)
	return len(rows), nil
}
