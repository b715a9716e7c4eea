package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/gosimple/slug"

	"promo-bot/models"
	"promo-bot/utils"
)

// Uploader stores an export. utils.R2Client implements it.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type ExportService struct {
	Ledger   *LedgerService
	uploader Uploader
	campaign string
	now      func() time.Time
}

func NewExportService(ledger *LedgerService, uploader Uploader, campaign string) *ExportService {
	return &ExportService{Ledger: ledger, uploader: uploader, campaign: campaign, now: time.Now}
}

// ExportKey is the object key of the snapshot taken on day at.
func ExportKey(campaign string, at time.Time) string {
	return fmt.Sprintf("exports/%s/participants-%s.csv", slug.Make(campaign), at.Format("2006-01-02"))
}

var exportHeader = []string{
	"user_id", "telegram_username", "email", "inn", "promo_code", "stage", "created_at", "completed_at",
}

// WriteCSV renders participants with the INN masked.
func WriteCSV(w io.Writer, participants []models.Participant) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, p := range participants {
		completed := ""
		if p.CompletedAt != nil {
			completed = p.CompletedAt.Format(time.RFC3339)
		}
		inn := ""
		if p.INN != nil {
			inn = utils.MaskINN(*p.INN)
		}
		if err := cw.Write([]string{
			strconv.FormatInt(p.UserID, 10),
			p.Handle(),
			p.EmailValue(),
			inn,
			p.PromoCodeValue(),
			string(p.Stage),
			p.CreatedAt.Format(time.RFC3339),
			completed,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export uploads today's snapshot and returns its key and URL.
func (s *ExportService) Export(ctx context.Context) (string, string, error) {
	if s.uploader == nil {
		return "", "", fmt.Errorf("export storage is not configured")
	}
	participants, err := s.Ledger.All(ctx)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, participants); err != nil {
		return "", "", fmt.Errorf("render export: %w", err)
	}

	key := ExportKey(s.campaign, s.now())
	url, err := s.uploader.Upload(ctx, key, "text/csv; charset=utf-8", buf.Bytes())
	if err != nil {
		return "", "", err
	}
	log.Printf("📤 [EXPORT] %d participant(s) exported to %s", len(participants), key)
	return key, url, nil
}
