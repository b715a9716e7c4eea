//go:build integration

package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"promo-bot/config"
	"promo-bot/models"
	"promo-bot/registration"
	"promo-bot/sentinel"
	"promo-bot/services"
	"promo-bot/sessions"
)

const (
	innA = "7707083893"
	innB = "500100732259"
	innC = "7736207543"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	db        *gorm.DB

	ledger      *services.LedgerService
	inventory   *services.InventoryService
	eligibility *services.EligibilityService
	audit       *services.AuditService
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("promo"),
		tcpostgres.WithUsername("promo"),
		tcpostgres.WithPassword("promo"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.db, err = services.OpenDatabase(dsn)
	s.Require().NoError(err)
	s.Require().NoError(services.Migrate(s.db))

	s.ledger = services.NewLedgerService(s.db)
	s.inventory = services.NewInventoryService(s.db)
	s.eligibility = services.NewEligibilityService(s.db)
	s.audit = services.NewAuditService(s.db)
}

func (s *PostgresSuite) TearDownSuite() {
	s.Require().NoError(testcontainers.TerminateContainer(s.container))
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.db.Exec("TRUNCATE participants, promo_codes, eligible_emails, reminder_logs").Error)
}

func (s *PostgresSuite) seedCodes(codes ...string) {
	imported := make([]services.ImportedCode, len(codes))
	for i, c := range codes {
		imported[i] = services.ImportedCode{Code: c, Position: i + 2}
	}
	n, err := s.inventory.Import(s.ctx, imported)
	s.Require().NoError(err)
	s.Require().EqualValues(len(codes), n)
}

func (s *PostgresSuite) awaitConfirmation(userID int64) {
	_, _, err := s.ledger.CreateIfAbsent(s.ctx, userID, "")
	s.Require().NoError(err)
	stage := models.StageAwaitingConfirmation
	s.Require().NoError(s.ledger.Update(s.ctx, userID, models.ParticipantUpdate{Stage: &stage}))
}

func (s *PostgresSuite) newWorkflow() *registration.Workflow {
	w, err := registration.New(s.ledger, s.inventory, s.eligibility, sessions.NewMemoryStore(time.Hour))
	s.Require().NoError(err)
	return w
}

func (s *PostgresSuite) TestCreateIfAbsentIsIdempotent() {
	p, created, err := s.ledger.CreateIfAbsent(s.ctx, 1, "alice")
	s.Require().NoError(err)
	s.True(created)
	s.Equal(models.StageAwaitingEmail, p.Stage)

	p, created, err = s.ledger.CreateIfAbsent(s.ctx, 1, "alice_new")
	s.Require().NoError(err)
	s.False(created)
	s.Equal("alice_new", p.Handle())

	var count int64
	s.Require().NoError(s.db.Model(&models.Participant{}).Count(&count).Error)
	s.EqualValues(1, count)
}

func (s *PostgresSuite) TestGetMissing() {
	_, err := s.ledger.Get(s.ctx, 404)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.ledger.Update(s.ctx, 404, models.ParticipantUpdate{Email: new(string)}), sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestCommitCompletion() {
	s.seedCodes("C1", "C2")
	s.awaitConfirmation(1)
	s.awaitConfirmation(2)

	s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 1, innA, "C1", time.Now()))
	p, err := s.ledger.Get(s.ctx, 1)
	s.Require().NoError(err)
	s.True(p.IsCompleted())
	s.Equal(innA, p.INNValue())
	s.NotNil(p.CompletedAt)

	s.Run("duplicate inn", func() {
		err := s.ledger.CommitCompletion(s.ctx, 2, innA, "C2", time.Now())
		s.ErrorIs(err, sentinel.ErrConflict)
	})
	s.Run("duplicate code", func() {
		err := s.ledger.CommitCompletion(s.ctx, 2, innB, "C1", time.Now())
		s.ErrorIs(err, sentinel.ErrConflict)
	})
	s.Run("not awaiting confirmation", func() {
		err := s.ledger.CommitCompletion(s.ctx, 1, innB, "C2", time.Now())
		s.ErrorIs(err, sentinel.ErrWrongStage)
		s.NotErrorIs(err, sentinel.ErrConflict)
	})

	exists, err := s.ledger.INNExists(s.ctx, innA)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *PostgresSuite) TestUpdateNeverTouchesCompleted() {
	s.awaitConfirmation(1)
	s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 1, innA, "C1", time.Now()))

	stage := models.StageAwaitingEmail
	s.Require().NoError(s.ledger.Update(s.ctx, 1, models.ParticipantUpdate{Stage: &stage}))
	p, err := s.ledger.Get(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(models.StageCompleted, p.Stage)

	completed := models.StageCompleted
	s.Error(s.ledger.Update(s.ctx, 1, models.ParticipantUpdate{Stage: &completed}))
}

func (s *PostgresSuite) TestClaimOrderAndExhaustion() {
	s.seedCodes("FIRST", "SECOND")

	c, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("FIRST", c.Code)

	again, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("FIRST", again.Code, "a participant keeps the code it already holds")

	c, err = s.inventory.ClaimNext(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal("SECOND", c.Code)

	_, err = s.inventory.ClaimNext(s.ctx, 3)
	s.ErrorIs(err, sentinel.ErrPoolExhausted)

	counts, err := s.inventory.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(services.InventoryCounts{Available: 0, Claimed: 2}, counts)
}

func (s *PostgresSuite) TestRelease() {
	s.seedCodes("C1", "C2")
	_, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)

	s.Require().NoError(s.inventory.Release(s.ctx, "C1"))
	s.Require().NoError(s.inventory.Release(s.ctx, "C1"), "releasing an available code is a no-op")
	s.ErrorIs(s.inventory.Release(s.ctx, "NOPE"), sentinel.ErrNotFound)

	available, err := s.inventory.ListAvailable(s.ctx)
	s.Require().NoError(err)
	s.Len(available, 2)
	s.Nil(available[0].ClaimedBy)

	s.Run("committed codes stay claimed", func() {
		s.awaitConfirmation(2)
		c, err := s.inventory.ClaimNext(s.ctx, 2)
		s.Require().NoError(err)
		s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 2, innA, c.Code, time.Now()))

		s.Require().NoError(s.inventory.Release(s.ctx, c.Code))
		got, err := s.inventory.Get(s.ctx, c.Code)
		s.Require().NoError(err)
		s.Equal(models.CodeClaimed, got.Status)
	})
}

func (s *PostgresSuite) TestImportIsInsertOnly() {
	s.seedCodes("C1", "C2")
	_, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)

	n, err := s.inventory.Import(s.ctx, []services.ImportedCode{{Code: "C1", Position: 2}, {Code: "C3", Position: 4}})
	s.Require().NoError(err)
	s.EqualValues(1, n)

	c1, err := s.inventory.Get(s.ctx, "C1")
	s.Require().NoError(err)
	s.Equal(models.CodeClaimed, c1.Status)

	pending, err := s.inventory.PendingSheetUpdates(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Require().NoError(s.inventory.MarkSheetSynced(s.ctx, []string{"C1"}))
	pending, err = s.inventory.PendingSheetUpdates(s.ctx)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *PostgresSuite) TestEligibilityReplace() {
	n, err := s.eligibility.Replace(s.ctx, []string{"A@X.com", " a@x.com", "b@x.com", ""})
	s.Require().NoError(err)
	s.Equal(2, n)

	ok, err := s.eligibility.Exists(s.ctx, "a@X.COM")
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.eligibility.Replace(s.ctx, []string{"b@x.com"})
	s.Require().NoError(err)
	ok, err = s.eligibility.Exists(s.ctx, "a@x.com")
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.eligibility.Replace(s.ctx, nil)
	s.ErrorIs(err, services.ErrEmptyEligibilityList)
	count, err := s.eligibility.Count(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, count)
}

func (s *PostgresSuite) TestReminderBookkeeping() {
	_, _, err := s.ledger.CreateIfAbsent(s.ctx, 1, "")
	s.Require().NoError(err)

	first, err := s.ledger.MarkReminderSent(s.ctx, 1, models.ReminderIncomplete1h)
	s.Require().NoError(err)
	s.True(first)
	second, err := s.ledger.MarkReminderSent(s.ctx, 1, models.ReminderIncomplete1h)
	s.Require().NoError(err)
	s.False(second)

	sent, err := s.ledger.SentReminders(s.ctx, 1)
	s.Require().NoError(err)
	s.True(sent[models.ReminderIncomplete1h])
	s.False(sent[models.ReminderIncomplete24h])

	incomplete, err := s.ledger.ListIncomplete(s.ctx, time.Now().Add(time.Minute))
	s.Require().NoError(err)
	s.Len(incomplete, 1)
}

func (s *PostgresSuite) TestDeleteRetiresDeliveredCode() {
	s.seedCodes("C1", "C2")
	s.awaitConfirmation(1)
	c, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 1, innA, c.Code, time.Now()))

	deleted, err := s.ledger.Delete(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("C1", deleted.PromoCodeValue())

	got, err := s.inventory.Get(s.ctx, "C1")
	s.Require().NoError(err)
	s.Equal(models.CodeRetired, got.Status)
	s.Nil(got.ClaimedBy)

	// The delivered code is never handed to anyone else.
	next, err := s.inventory.ClaimNext(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal("C2", next.Code)
	_, err = s.inventory.ClaimNext(s.ctx, 3)
	s.ErrorIs(err, sentinel.ErrPoolExhausted)

	counts, err := s.inventory.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(services.InventoryCounts{Claimed: 1, Retired: 1}, counts)

	_, err = s.ledger.Delete(s.ctx, 1)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestDeleteReleasesStrandedCode() {
	s.seedCodes("C1")
	s.awaitConfirmation(1)
	_, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)

	deleted, err := s.ledger.Delete(s.ctx, 1)
	s.Require().NoError(err)
	s.Empty(deleted.PromoCodeValue())

	got, err := s.inventory.Get(s.ctx, "C1")
	s.Require().NoError(err)
	s.True(got.IsAvailable())
}

func (s *PostgresSuite) TestRetiredCodeNeedsExplicitRelease() {
	s.seedCodes("C1")
	s.awaitConfirmation(1)
	c, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 1, innA, c.Code, time.Now()))
	_, err = s.ledger.Delete(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Model(&models.PromoCode{}).
		Where("code = ?", "C1").
		Update("claimed_at", time.Now().Add(-time.Hour)).Error)

	report, err := s.audit.Run(s.ctx)
	s.Require().NoError(err)
	s.True(report.Clean())
	released, err := s.audit.Repair(s.ctx)
	s.Require().NoError(err)
	s.Empty(released)

	pending, err := s.inventory.PendingSheetUpdates(s.ctx)
	s.Require().NoError(err)
	s.Len(pending, 1)

	s.Require().NoError(s.inventory.Release(s.ctx, "C1"))
	got, err := s.inventory.Get(s.ctx, "C1")
	s.Require().NoError(err)
	s.True(got.IsAvailable())
}

func (s *PostgresSuite) TestAuditAndRepair() {
	s.seedCodes("C1", "C2", "C3")
	s.awaitConfirmation(1)
	c, err := s.inventory.ClaimNext(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 1, innA, c.Code, time.Now()))

	report, err := s.audit.Run(s.ctx)
	s.Require().NoError(err)
	s.True(report.Clean())

	// A claim whose release failed long ago.
	leaked, err := s.inventory.ClaimNext(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Model(&models.PromoCode{}).
		Where("code = ?", leaked.Code).
		Update("claimed_at", time.Now().Add(-time.Hour)).Error)
	// A claim that may still be committing.
	_, err = s.inventory.ClaimNext(s.ctx, 3)
	s.Require().NoError(err)

	report, err = s.audit.Run(s.ctx)
	s.Require().NoError(err)
	s.False(report.Balanced)
	s.Len(report.Leaked, 2)

	released, err := s.audit.Repair(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{leaked.Code}, released)

	report, err = s.audit.Run(s.ctx)
	s.Require().NoError(err)
	s.Len(report.Leaked, 1)
}

func (s *PostgresSuite) TestStats() {
	s.awaitConfirmation(1)
	s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 1, innA, "C1", time.Now()))
	_, _, err := s.ledger.CreateIfAbsent(s.ctx, 2, "")
	s.Require().NoError(err)

	stats, err := s.ledger.Stats(s.ctx, time.Now())
	s.Require().NoError(err)
	s.EqualValues(2, stats.Total)
	s.EqualValues(1, stats.Completed)
	s.EqualValues(1, stats.CompletedToday)
	s.InDelta(50.0, stats.Conversion, 0.001)
}

func (s *PostgresSuite) TestMonitoringDetectsStaleLeak() {
	s.seedCodes("C1", "C2")
	leaked, err := s.inventory.ClaimNext(s.ctx, 9)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Model(&models.PromoCode{}).
		Where("code = ?", leaked.Code).
		Update("claimed_at", time.Now().Add(-time.Hour)).Error)

	mon := services.NewMonitoringService(s.db, config.MonitoringConfig{LowPromoThreshold: 5, LowConversionPercent: 20}, nil, nil, nil)
	alerts, err := mon.Alerts(s.ctx)
	s.Require().NoError(err)

	critical := 0
	for _, a := range alerts {
		if a.Critical {
			critical++
		}
	}
	s.Equal(1, critical)
	s.Equal("healthy", mon.Health(s.ctx).Status)

	mon.Sessions = sessionsDown{}
	report := mon.Health(s.ctx)
	s.Equal("degraded", report.Status)
	s.False(report.Checks["sessions"].OK)
}

type sessionsDown struct{}

func (sessionsDown) Health(context.Context) error { return errors.New("connection refused") }

type memUploader struct {
	key  string
	body []byte
}

func (u *memUploader) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	u.key, u.body = key, body
	return "https://example.invalid/" + key, nil
}

func (s *PostgresSuite) TestExport() {
	s.awaitConfirmation(1)
	s.Require().NoError(s.ledger.CommitCompletion(s.ctx, 1, innA, "C1", time.Now()))

	up := &memUploader{}
	key, url, err := services.NewExportService(s.ledger, up, "Spring Campaign").Export(s.ctx)
	s.Require().NoError(err)
	s.Equal(up.key, key)
	s.Contains(url, "exports/spring-campaign/participants-")
	s.Contains(string(up.body), "770***93")
	s.NotContains(string(up.body), innA)
}

// The at-most-once properties, exercised through the workflow against the
// real stores.

func (s *PostgresSuite) TestConcurrentSameINNYieldsOneCompletion() {
	const n = 16
	codes := make([]string, n)
	for i := range codes {
		codes[i] = fmt.Sprintf("CODE-%02d", i)
	}
	s.seedCodes(codes...)
	_, err := s.eligibility.Replace(s.ctx, []string{"a@x.com"})
	s.Require().NoError(err)

	w := s.newWorkflow()
	for i := int64(1); i <= n; i++ {
		_, err := w.Start(s.ctx, i, "")
		s.Require().NoError(err)
		_, err = w.SubmitEmail(s.ctx, i, "a@x.com")
		s.Require().NoError(err)
		_, err = w.SubmitINN(s.ctx, i, innA)
		s.Require().NoError(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.Confirm(s.ctx, int64(i+1), true)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrAlreadyRegistered), err)
	}
	s.Equal(1, succeeded)

	report, err := s.audit.Run(s.ctx)
	s.Require().NoError(err)
	s.True(report.Clean(), "claimed=%d completed=%d", report.ClaimedCodes, report.Completed)
	s.EqualValues(1, report.ClaimedCodes)
}

func (s *PostgresSuite) TestConcurrentDistinctParticipantsGetDistinctCodes() {
	const n, pool = 12, 8
	codes := make([]string, pool)
	for i := range codes {
		codes[i] = fmt.Sprintf("P-%02d", i)
	}
	s.seedCodes(codes...)
	_, err := s.eligibility.Replace(s.ctx, []string{"a@x.com"})
	s.Require().NoError(err)

	inns := []string{
		"7707083893", "7736207543", "7712345671", "1234567894", "3900000009", "7736050003",
		"500100732259", "771234567859",
	}
	w := s.newWorkflow()
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		_, err := w.Start(s.ctx, id, "")
		s.Require().NoError(err)
		_, err = w.SubmitEmail(s.ctx, id, "a@x.com")
		s.Require().NoError(err)
		_, err = w.SubmitINN(s.ctx, id, inns[i%len(inns)])
		s.Require().NoError(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	issued := map[string]int64{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			res, err := w.Confirm(s.ctx, id, true)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, dup := issued[res.PromoCode]
			s.False(dup, "code %s issued twice", res.PromoCode)
			issued[res.PromoCode] = id
		}(int64(i + 1))
	}
	wg.Wait()

	s.LessOrEqual(len(issued), pool)
	report, err := s.audit.Run(s.ctx)
	s.Require().NoError(err)
	s.True(report.Clean())
	s.EqualValues(len(issued), report.Completed)
}
