// Package registration implements the three-step registration flow and the
// promo code allocation protocol: a participant receives exactly one code,
// drawn once from the shared pool, and no code is ever given to two participants.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"promo-bot/models"
	"promo-bot/sentinel"
	"promo-bot/utils"
)

// Ledger is the durable participant store. Uniqueness of INN and promo code is
// enforced by the store itself; CommitCompletion returns sentinel.ErrConflict
// when either is already taken or the participant left the confirmation stage.
// Update never modifies a completed participant.
type Ledger interface {
	Get(ctx context.Context, userID int64) (*models.Participant, error)
	CreateIfAbsent(ctx context.Context, userID int64, handle string) (*models.Participant, bool, error)
	Update(ctx context.Context, userID int64, upd models.ParticipantUpdate) error
	INNExists(ctx context.Context, inn string) (bool, error)
	CommitCompletion(ctx context.Context, userID int64, inn, code string, at time.Time) error
}

// Inventory is the shared code pool. ClaimNext is linearized by the store and
// returns sentinel.ErrPoolExhausted without mutating anything when empty.
type Inventory interface {
	ClaimNext(ctx context.Context, userID int64) (*models.PromoCode, error)
	Release(ctx context.Context, code string) error
}

// Eligibility is the read-only list of approved emails.
type Eligibility interface {
	Exists(ctx context.Context, email string) (bool, error)
}

// Sessions holds the INN a participant entered until they confirm it.
// PendingINN returns sentinel.ErrNotFound when nothing is held.
type Sessions interface {
	SetPendingINN(ctx context.Context, userID int64, inn string) error
	PendingINN(ctx context.Context, userID int64) (string, error)
	Clear(ctx context.Context, userID int64) error
}

// Recorder receives allocation events. metrics.Metrics implements it.
type Recorder interface {
	CodeClaimed()
	PoolExhausted()
	ClaimConflict()
	PoolLeak()
}

type noopRecorder struct{}

func (noopRecorder) CodeClaimed()   {}
func (noopRecorder) PoolExhausted() {}
func (noopRecorder) ClaimConflict() {}
func (noopRecorder) PoolLeak()      {}

// CompletionHook runs after a participant has been committed as completed.
type CompletionHook func(ctx context.Context, p *models.Participant)

// Result is what a transition produced. Stage is the participant's stage after it.
type Result struct {
	Stage       models.Stage
	Participant *models.Participant
	Email       string
	INN         string
	PromoCode   string
	Created     bool // Start created the participant
	Returning   bool // Start on an already completed participant
}

type Workflow struct {
	ledger      Ledger
	inventory   Inventory
	eligibility Eligibility
	sessions    Sessions

	recorder       Recorder
	onCompleted    CompletionHook
	now            func() time.Time
	newBackoff     func() backoff.BackOff
	releaseRetries uint64
	releaseTimeout time.Duration
}

type Option func(*Workflow)

func WithRecorder(r Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

func WithCompletionHook(h CompletionHook) Option {
	return func(w *Workflow) { w.onCompleted = h }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithReleaseBackoff sets the retry policy of the compensating release.
func WithReleaseBackoff(newBackoff func() backoff.BackOff, retries uint64) Option {
	return func(w *Workflow) {
		w.newBackoff = newBackoff
		w.releaseRetries = retries
	}
}

func New(ledger Ledger, inventory Inventory, eligibility Eligibility, sessions Sessions, opts ...Option) (*Workflow, error) {
	switch {
	case ledger == nil:
		return nil, errors.New("ledger is required")
	case inventory == nil:
		return nil, errors.New("inventory is required")
	case eligibility == nil:
		return nil, errors.New("eligibility store is required")
	case sessions == nil:
		return nil, errors.New("session store is required")
	}

	w := &Workflow{
		ledger:         ledger,
		inventory:      inventory,
		eligibility:    eligibility,
		sessions:       sessions,
		recorder:       noopRecorder{},
		now:            time.Now,
		newBackoff:     func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		releaseRetries: 5,
		releaseTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}

func (w *Workflow) load(ctx context.Context, userID int64) (*models.Participant, error) {
	p, err := w.ledger.Get(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, sentinel.ErrWrongStage
	}
	if err != nil {
		return nil, unavailable("ledger get", err)
	}
	return p, nil
}

func completedResult(p *models.Participant) *Result {
	return &Result{
		Stage:       models.StageCompleted,
		Participant: p,
		Email:       p.EmailValue(),
		INN:         p.INNValue(),
		PromoCode:   p.PromoCodeValue(),
	}
}

// Start handles first contact. It creates the participant at most once; a
// completed participant gets their code back, anyone else restarts at the
// email step with transient state dropped.
func (w *Workflow) Start(ctx context.Context, userID int64, handle string) (*Result, error) {
	p, created, err := w.ledger.CreateIfAbsent(ctx, userID, handle)
	if err != nil {
		return nil, unavailable("ledger create", err)
	}
	if p.IsCompleted() {
		res := completedResult(p)
		res.Returning = true
		return res, nil
	}

	if err := w.sessions.Clear(ctx, userID); err != nil {
		log.Printf("⚠️ [WORKFLOW] Failed to clear session for user %d: %v", userID, err)
	}
	if p.Stage != models.StageAwaitingEmail {
		stage := models.StageAwaitingEmail
		if err := w.ledger.Update(ctx, userID, models.ParticipantUpdate{Stage: &stage}); err != nil {
			return nil, unavailable("ledger update", err)
		}
		p.Stage = stage
	}
	if created {
		log.Printf("👋 [WORKFLOW] User %d started registration", userID)
	}
	return &Result{Stage: models.StageAwaitingEmail, Participant: p, Created: created}, nil
}

// Dispatch routes free text to the transition of the participant's current stage.
func (w *Workflow) Dispatch(ctx context.Context, userID int64, text string) (*Result, error) {
	p, err := w.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch p.Stage {
	case models.StageAwaitingEmail:
		return w.submitEmail(ctx, p, text)
	case models.StageAwaitingINN:
		return w.submitINN(ctx, p, text)
	default:
		return &Result{Stage: p.Stage, Participant: p}, sentinel.ErrWrongStage
	}
}

// SubmitEmail moves awaiting_email → awaiting_inn.
func (w *Workflow) SubmitEmail(ctx context.Context, userID int64, raw string) (*Result, error) {
	p, err := w.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return w.submitEmail(ctx, p, raw)
}

func (w *Workflow) submitEmail(ctx context.Context, p *models.Participant, raw string) (*Result, error) {
	if p.Stage != models.StageAwaitingEmail {
		return &Result{Stage: p.Stage, Participant: p}, sentinel.ErrWrongStage
	}
	if err := ValidateEmail(raw); err != nil {
		return &Result{Stage: p.Stage, Participant: p}, err
	}
	email := NormalizeEmail(raw)

	ok, err := w.eligibility.Exists(ctx, email)
	if err != nil {
		return nil, unavailable("eligibility lookup", err)
	}
	if !ok {
		return &Result{Stage: p.Stage, Participant: p, Email: email}, sentinel.ErrNotEligible
	}

	stage := models.StageAwaitingINN
	if err := w.ledger.Update(ctx, p.UserID, models.ParticipantUpdate{Email: &email, Stage: &stage}); err != nil {
		return nil, unavailable("ledger update", err)
	}
	p.Email, p.Stage = &email, stage
	log.Printf("📧 [WORKFLOW] User %d confirmed email %s", p.UserID, utils.MaskEmail(email))
	return &Result{Stage: stage, Participant: p, Email: email}, nil
}

// SubmitINN moves awaiting_inn → awaiting_confirmation. The INN is held in the
// session store and is only written to the ledger on confirmation.
func (w *Workflow) SubmitINN(ctx context.Context, userID int64, raw string) (*Result, error) {
	p, err := w.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return w.submitINN(ctx, p, raw)
}

func (w *Workflow) submitINN(ctx context.Context, p *models.Participant, raw string) (*Result, error) {
	if p.Stage != models.StageAwaitingINN {
		return &Result{Stage: p.Stage, Participant: p}, sentinel.ErrWrongStage
	}
	inn, err := ParseINN(raw)
	if err != nil {
		return &Result{Stage: p.Stage, Participant: p, Email: p.EmailValue()}, err
	}

	// Fast fail only; the unique index decides at commit time.
	taken, err := w.ledger.INNExists(ctx, inn)
	if err != nil {
		return nil, unavailable("ledger inn lookup", err)
	}
	if taken {
		return &Result{Stage: p.Stage, Participant: p, Email: p.EmailValue(), INN: inn}, sentinel.ErrAlreadyRegistered
	}

	if err := w.sessions.SetPendingINN(ctx, p.UserID, inn); err != nil {
		return nil, unavailable("session store", err)
	}
	stage := models.StageAwaitingConfirmation
	if err := w.ledger.Update(ctx, p.UserID, models.ParticipantUpdate{Stage: &stage}); err != nil {
		return nil, unavailable("ledger update", err)
	}
	p.Stage = stage
	log.Printf("🏢 [WORKFLOW] User %d entered INN %s", p.UserID, utils.MaskINN(inn))
	return &Result{Stage: stage, Participant: p, Email: p.EmailValue(), INN: inn}, nil
}

// Confirm answers the confirmation prompt. A negative answer restarts data
// collection; a positive one is the only path that claims a promo code.
// Confirming an already completed registration returns the issued code again.
func (w *Workflow) Confirm(ctx context.Context, userID int64, yes bool) (*Result, error) {
	p, err := w.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.IsCompleted() {
		return completedResult(p), nil
	}
	if p.Stage != models.StageAwaitingConfirmation {
		return &Result{Stage: p.Stage, Participant: p}, sentinel.ErrWrongStage
	}

	if !yes {
		if err := w.sessions.Clear(ctx, userID); err != nil {
			log.Printf("⚠️ [WORKFLOW] Failed to clear session for user %d: %v", userID, err)
		}
		if err := w.setStage(ctx, p, models.StageAwaitingEmail); err != nil {
			return nil, err
		}
		log.Printf("🔄 [WORKFLOW] User %d restarted registration", userID)
		return &Result{Stage: p.Stage, Participant: p}, nil
	}

	inn, err := w.sessions.PendingINN(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// A concurrent confirmation may have completed and cleared the session.
		if stored := w.completedElsewhere(ctx, userID); stored != nil {
			return completedResult(stored), nil
		}
		if err := w.setStage(ctx, p, models.StageAwaitingINN); err != nil {
			return nil, err
		}
		return &Result{Stage: p.Stage, Participant: p, Email: p.EmailValue()}, sentinel.ErrSessionExpired
	}
	if err != nil {
		return nil, unavailable("session store", err)
	}

	taken, err := w.ledger.INNExists(ctx, inn)
	if err != nil {
		return nil, unavailable("ledger inn lookup", err)
	}
	if taken {
		if stored := w.completedElsewhere(ctx, userID); stored != nil {
			return completedResult(stored), nil
		}
		w.restartAtINN(ctx, p)
		return &Result{Stage: p.Stage, Participant: p, Email: p.EmailValue(), INN: inn}, sentinel.ErrAlreadyRegistered
	}

	return w.issue(ctx, p, inn)
}

// completedElsewhere re-reads the participant and returns it if another
// session of the same user has already completed the registration.
func (w *Workflow) completedElsewhere(ctx context.Context, userID int64) *models.Participant {
	stored, err := w.ledger.Get(ctx, userID)
	if err != nil || !stored.IsCompleted() {
		return nil
	}
	return stored
}

// issue claims one code and commits it together with the INN. A commit lost
// to a uniqueness race hands the code back to the pool before reporting.
func (w *Workflow) issue(ctx context.Context, p *models.Participant, inn string) (*Result, error) {
	code, err := w.inventory.ClaimNext(ctx, p.UserID)
	switch {
	case errors.Is(err, sentinel.ErrPoolExhausted):
		w.recorder.PoolExhausted()
		log.Printf("⚠️ [WORKFLOW] No promo codes available for user %d", p.UserID)
		return &Result{Stage: p.Stage, Participant: p, Email: p.EmailValue(), INN: inn}, sentinel.ErrPoolExhausted
	case errors.Is(err, sentinel.ErrConflict):
		return w.lostRace(ctx, p, inn, "")
	case err != nil:
		return nil, unavailable("inventory claim", err)
	}

	err = w.ledger.CommitCompletion(ctx, p.UserID, inn, code.Code, w.now())
	switch {
	case err == nil:
		return w.completed(ctx, p.UserID, code.Code)
	case errors.Is(err, sentinel.ErrConflict):
		return w.lostRace(ctx, p, inn, code.Code)
	case errors.Is(err, sentinel.ErrWrongStage):
		return w.leftConfirmation(ctx, p, code.Code)
	}

	// The commit outcome is unknown; only release what is provably unassigned.
	stored, gerr := w.ledger.Get(ctx, p.UserID)
	if gerr != nil {
		log.Printf("🚨 [POOL_LEAK] Commit of code %s for user %d failed (%v) and could not be verified (%v); code left claimed for audit",
			code.Code, p.UserID, err, gerr)
		w.recorder.PoolLeak()
		return nil, unavailable("ledger commit", err)
	}
	if stored.PromoCodeValue() == code.Code {
		return w.completed(ctx, p.UserID, code.Code)
	}
	w.compensate(ctx, p.UserID, code.Code)
	if stored.IsCompleted() {
		return completedResult(stored), nil
	}
	return nil, unavailable("ledger commit", err)
}

// lostRace handles a commit rejected by the store. If another session of the
// same participant completed first, its result stands.
func (w *Workflow) lostRace(ctx context.Context, p *models.Participant, inn, code string) (*Result, error) {
	stored, err := w.ledger.Get(ctx, p.UserID)
	if err == nil && stored.IsCompleted() {
		if code != "" && stored.PromoCodeValue() != code {
			w.compensate(ctx, p.UserID, code)
		}
		return completedResult(stored), nil
	}

	if code != "" {
		w.compensate(ctx, p.UserID, code)
	}
	w.recorder.ClaimConflict()
	log.Printf("⚔️ [WORKFLOW] User %d lost the commit race for INN %s", p.UserID, utils.MaskINN(inn))
	w.restartAtINN(ctx, p)
	return &Result{Stage: p.Stage, Participant: p, Email: p.EmailValue(), INN: inn}, sentinel.ErrConflict
}

// leftConfirmation handles a commit that found the participant no longer
// awaiting confirmation, e.g. after a /start sent while the code was being
// claimed. The code goes back to the pool and the stage set by the other
// request stands.
func (w *Workflow) leftConfirmation(ctx context.Context, p *models.Participant, code string) (*Result, error) {
	stored, err := w.ledger.Get(ctx, p.UserID)
	if err == nil && stored.IsCompleted() {
		if stored.PromoCodeValue() != code {
			w.compensate(ctx, p.UserID, code)
		}
		return completedResult(stored), nil
	}

	w.compensate(ctx, p.UserID, code)
	if err != nil {
		return nil, unavailable("ledger get", err)
	}
	log.Printf("↪️ [WORKFLOW] User %d left the confirmation step (now %s) before code %s was committed",
		p.UserID, stored.Stage, code)
	return &Result{Stage: stored.Stage, Participant: stored, Email: stored.EmailValue()}, sentinel.ErrWrongStage
}

// compensate returns a claimed code to the pool, retrying with backoff. It runs
// detached from the caller's cancellation: an abandoned session must not strand
// a code. A failure here is a pool leak and is only repairable by audit.
func (w *Workflow) compensate(ctx context.Context, userID int64, code string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.releaseTimeout)
	defer cancel()

	attempt := 0
	op := func() error {
		attempt++
		err := w.inventory.Release(ctx, code)
		if err != nil {
			log.Printf("⚠️ [WORKFLOW] Release of code %s failed (attempt %d): %v", code, attempt, err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackoff(), w.releaseRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		log.Printf("🚨 [POOL_LEAK] Code %s claimed for user %d could not be released after %d attempts: %v",
			code, userID, attempt, err)
		w.recorder.PoolLeak()
		return
	}
	log.Printf("↩️ [WORKFLOW] Code %s returned to the pool (user %d)", code, userID)
}

func (w *Workflow) completed(ctx context.Context, userID int64, code string) (*Result, error) {
	if err := w.sessions.Clear(ctx, userID); err != nil {
		log.Printf("⚠️ [WORKFLOW] Failed to clear session for user %d: %v", userID, err)
	}
	w.recorder.CodeClaimed()

	stored, err := w.ledger.Get(ctx, userID)
	if err != nil {
		// The code is committed; report it even if the re-read failed.
		log.Printf("⚠️ [WORKFLOW] Re-read of completed user %d failed: %v", userID, err)
		stored = &models.Participant{UserID: userID, Stage: models.StageCompleted, PromoCode: &code}
	}
	log.Printf("🎉 [WORKFLOW] User %d completed registration with promo %s", userID, code)
	if w.onCompleted != nil {
		w.onCompleted(ctx, stored)
	}
	res := completedResult(stored)
	res.PromoCode = code
	return res, nil
}

func (w *Workflow) setStage(ctx context.Context, p *models.Participant, stage models.Stage) error {
	if err := w.ledger.Update(ctx, p.UserID, models.ParticipantUpdate{Stage: &stage}); err != nil {
		return unavailable("ledger update", err)
	}
	p.Stage = stage
	return nil
}

// restartAtINN drops the pending INN and parks the participant at the INN step.
// Failures are logged: the caller is already reporting a more specific error.
func (w *Workflow) restartAtINN(ctx context.Context, p *models.Participant) {
	if err := w.sessions.Clear(ctx, p.UserID); err != nil {
		log.Printf("⚠️ [WORKFLOW] Failed to clear session for user %d: %v", p.UserID, err)
	}
	if err := w.setStage(ctx, p, models.StageAwaitingINN); err != nil {
		log.Printf("⚠️ [WORKFLOW] Failed to reset user %d to the INN step: %v", p.UserID, err)
	}
}

// Status is a read-only view of a participant, including a pending INN.
func (w *Workflow) Status(ctx context.Context, userID int64) (*Result, error) {
	p, err := w.ledger.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, unavailable("ledger get", err)
	}
	if p.IsCompleted() {
		return completedResult(p), nil
	}
	res := &Result{Stage: p.Stage, Participant: p, Email: p.EmailValue()}
	if p.Stage == models.StageAwaitingConfirmation {
		if inn, err := w.sessions.PendingINN(ctx, userID); err == nil {
			res.INN = inn
		}
	}
	return res, nil
}
