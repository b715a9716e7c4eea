package services

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-bot/models"
)

func TestExportKey(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "exports/youtravel-x-yandex-travel/participants-2026-03-14.csv",
		ExportKey("YouTravel x Yandex Travel", at))
}

func TestWriteCSV(t *testing.T) {
	email, inn, code, handle := "a@x.com", "7707083893", "C1", "alice"
	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	completed := created.Add(5 * time.Minute)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []models.Participant{
		{
			UserID: 1, TelegramUsername: &handle, Email: &email, INN: &inn, PromoCode: &code,
			Stage: models.StageCompleted, CreatedAt: created, CompletedAt: &completed,
		},
		{UserID: 2, Stage: models.StageAwaitingEmail, CreatedAt: created},
	}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, []string{
		"1", "alice", "a@x.com", "770***93", "C1", "completed",
		"2026-01-02T10:00:00Z", "2026-01-02T10:05:00Z",
	}, records[1])
	assert.Equal(t, []string{"2", "", "", "", "", "awaiting_email", "2026-01-02T10:00:00Z", ""}, records[2])
}
