package registration

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"promo-bot/models"
	"promo-bot/sentinel"
)

// memLedger mirrors the constraints of the postgres ledger: unique INN, unique
// promo code, completion guarded by stage, completed rows are immutable.
type memLedger struct {
	mu   sync.Mutex
	rows map[int64]*models.Participant

	blindPrecheck bool          // INNExists always answers false
	commitErr     error         // returned by CommitCompletion instead of committing
	commitApplied bool          // commitErr is returned after the commit was applied
	beforeCommit  func(u int64) // runs at the start of CommitCompletion, without the lock
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[int64]*models.Participant)}
}

func clone(p *models.Participant) *models.Participant {
	c := *p
	return &c
}

func (l *memLedger) Get(_ context.Context, userID int64) (*models.Participant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.rows[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func (l *memLedger) CreateIfAbsent(_ context.Context, userID int64, handle string) (*models.Participant, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.rows[userID]; ok {
		return clone(p), false, nil
	}
	p := &models.Participant{UserID: userID, Stage: models.StageAwaitingEmail, CreatedAt: time.Now()}
	if handle != "" {
		p.TelegramUsername = &handle
	}
	l.rows[userID] = p
	return clone(p), true, nil
}

func (l *memLedger) Update(_ context.Context, userID int64, upd models.ParticipantUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.rows[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.IsCompleted() {
		return nil
	}
	if upd.Email != nil {
		p.Email = upd.Email
	}
	if upd.Stage != nil {
		p.Stage = *upd.Stage
	}
	if upd.TelegramUsername != nil {
		p.TelegramUsername = upd.TelegramUsername
	}
	return nil
}

func (l *memLedger) INNExists(_ context.Context, inn string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.blindPrecheck {
		return false, nil
	}
	for _, p := range l.rows {
		if p.INNValue() == inn {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) CommitCompletion(_ context.Context, userID int64, inn, code string, at time.Time) error {
	if l.beforeCommit != nil {
		l.beforeCommit(userID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.commitErr != nil && !l.commitApplied {
		return l.commitErr
	}
	p, ok := l.rows[userID]
	if !ok || p.Stage != models.StageAwaitingConfirmation {
		return sentinel.ErrWrongStage
	}
	for id, other := range l.rows {
		if id == userID {
			continue
		}
		if other.INNValue() == inn || other.PromoCodeValue() == code {
			return sentinel.ErrConflict
		}
	}
	p.INN, p.PromoCode, p.Stage, p.CompletedAt = &inn, &code, models.StageCompleted, &at
	return l.commitErr
}

func (l *memLedger) put(p *models.Participant) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[p.UserID] = clone(p)
}

func (l *memLedger) completedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.rows {
		if p.IsCompleted() {
			n++
		}
	}
	return n
}

// memInventory serializes claims with a mutex, first available by position wins.
type memInventory struct {
	mu         sync.Mutex
	codes      []*models.PromoCode
	releaseErr error
	releases   int
}

func newMemInventory(codes ...string) *memInventory {
	inv := &memInventory{}
	for i, c := range codes {
		inv.codes = append(inv.codes, &models.PromoCode{
			ID: uuid.NewString(), Code: c, Position: i + 2, Status: models.CodeAvailable,
		})
	}
	return inv
}

func (i *memInventory) ClaimNext(_ context.Context, userID int64) (*models.PromoCode, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range i.codes {
		if c.ClaimedBy != nil && *c.ClaimedBy == userID {
			cc := *c
			return &cc, nil
		}
	}
	for _, c := range i.codes {
		if c.IsAvailable() {
			now := time.Now()
			uid := userID
			c.Status, c.ClaimedBy, c.ClaimedAt = models.CodeClaimed, &uid, &now
			cc := *c
			return &cc, nil
		}
	}
	return nil, sentinel.ErrPoolExhausted
}

func (i *memInventory) Release(_ context.Context, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.releases++
	if i.releaseErr != nil {
		return i.releaseErr
	}
	for _, c := range i.codes {
		if c.Code == code {
			c.Status, c.ClaimedBy, c.ClaimedAt = models.CodeAvailable, nil, nil
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (i *memInventory) count(status models.CodeStatus) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, c := range i.codes {
		if c.Status == status {
			n++
		}
	}
	return n
}

type memEligibility struct {
	emails map[string]bool
	err    error
}

func newMemEligibility(emails ...string) *memEligibility {
	e := &memEligibility{emails: make(map[string]bool)}
	for _, m := range emails {
		e.emails[strings.ToLower(m)] = true
	}
	return e
}

func (e *memEligibility) Exists(_ context.Context, email string) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	return e.emails[email], nil
}

type countingRecorder struct {
	claimed, exhausted, conflicts, leaks atomic.Int32
}

func (r *countingRecorder) CodeClaimed()   { r.claimed.Add(1) }
func (r *countingRecorder) PoolExhausted() { r.exhausted.Add(1) }
func (r *countingRecorder) ClaimConflict() { r.conflicts.Add(1) }
func (r *countingRecorder) PoolLeak()      { r.leaks.Add(1) }
