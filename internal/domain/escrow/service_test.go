package escrow

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	memledger "pet-custody-escrow/internal/adapters/ledger/memory"
	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/platform/logger"
	"pet-custody-escrow/internal/platform/metrics"
	"pet-custody-escrow/internal/ports/ledger"
	"pet-custody-escrow/internal/workflow"
)

// -------------------------
// Test fixtures
// -------------------------

type testRepo struct {
	byID map[string]Account
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Account{}}
}

func (r *testRepo) Create(ctx context.Context, a Account) error {
	if _, ok := r.byID[a.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[a.ID] = a
	return nil
}

func (r *testRepo) Update(ctx context.Context, a Account) error {
	if _, ok := r.byID[a.ID]; !ok {
		return ErrNotFound
	}
	r.byID[a.ID] = a
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Account, error) {
	a, ok := r.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *testRepo) GetByAgreement(ctx context.Context, agreementID string) (Account, error) {
	for _, a := range r.byID {
		if a.AgreementID == agreementID {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *testRepo) ListUnsettled(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0)
	for _, a := range r.byID {
		if (a.Status == StatusPendingHold && a.HoldTxRef != "") ||
			a.Status == StatusHeld {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type factRepo struct {
	seq   int64
	facts []eventlog.Fact
}

func (r *factRepo) Append(ctx context.Context, f eventlog.Fact) (eventlog.Fact, error) {
	r.seq++
	f.Sequence = r.seq
	r.facts = append(r.facts, f)
	return f, nil
}

func (r *factRepo) ListByAggregate(ctx context.Context, aggregateID string) ([]eventlog.Fact, error) {
	out := make([]eventlog.Fact, 0)
	for _, f := range r.facts {
		if f.AggregateID == aggregateID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *factRepo) countByType(t eventlog.FactType) int {
	n := 0
	for _, f := range r.facts {
		if f.Type == t {
			n++
		}
	}
	return n
}

type testKeys map[string]string

func (k testKeys) KeyOf(ctx context.Context, userID string) (string, error) {
	key, ok := k[userID]
	if !ok || key == "" {
		return "", errors.New("no key")
	}
	return key, nil
}

type guardStub bool

func (g guardStub) HasOpenRequestForPet(ctx context.Context, petID string) (bool, error) {
	return bool(g), nil
}

func (g guardStub) HasOpenAgreementForPet(ctx context.Context, petID string) (bool, error) {
	return bool(g), nil
}

type nopTx struct{}

func (nopTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

const keeperKey = "GKEEPER0000000000000000000000000000000000000000000000000"

type fixture struct {
	svc   *Service
	repo  *testRepo
	lgr   *memledger.Ledger
	facts *factRepo
}

func newFixture(t *testing.T, opts ...memledger.Option) *fixture {
	t.Helper()

	repo := newTestRepo()
	facts := &factRepo{}
	lgr := memledger.New(opts...)

	svc := NewService(Deps{
		Repo:    repo,
		Gateway: lgr,
		Log:     eventlog.NewService(facts),
		Keys:    testKeys{"keeper-1": keeperKey},
		Flow:    workflow.New(guardStub(false), guardStub(false)),
		Tx:      nopTx{},
		Metrics: metrics.New(),
		Retry:   RetryPolicy{MaxAttempts: 1, Base: time.Millisecond, Ceiling: time.Millisecond},
	})

	return &fixture{svc: svc, repo: repo, lgr: lgr, facts: facts}
}

func openHold(t *testing.T, f *fixture) Account {
	t.Helper()

	acct, err := f.svc.OpenHold(context.Background(), OpenHoldInput{
		AgreementID: "agr-1",
		PetID:       "pet-1",
		DepositorID: "keeper-1",
		Amount:      150,
	})
	if err != nil {
		t.Fatalf("OpenHold error: %v", err)
	}
	return acct
}

// -------------------------
// Tests
// -------------------------

func TestOpenHold_PendingUntilLedgerConfirms(t *testing.T) {
	f := newFixture(t, memledger.WithBalance(keeperKey, 500))

	acct := openHold(t, f)
	if acct.Status != StatusPendingHold {
		t.Fatalf("expected PENDING_HOLD before confirmation, got %s", acct.Status)
	}
	if acct.HoldTxRef == "" {
		t.Fatalf("expected hold tx ref persisted")
	}
	if n := f.facts.countByType(eventlog.FactEscrowHeld); n != 0 {
		t.Fatalf("expected no ESCROW_HELD fact yet, got %d", n)
	}

	f.lgr.ConfirmAll()

	acct, err := f.svc.ConfirmHold(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("ConfirmHold error: %v", err)
	}
	if acct.Status != StatusHeld {
		t.Fatalf("expected HELD after confirmation, got %s", acct.Status)
	}
	if n := f.facts.countByType(eventlog.FactEscrowHeld); n != 1 {
		t.Fatalf("expected exactly one ESCROW_HELD fact, got %d", n)
	}
}

func TestOpenHold_Idempotent_OneLedgerEffect(t *testing.T) {
	f := newFixture(t, memledger.WithAutoConfirm(), memledger.WithBalance(keeperKey, 500))

	first := openHold(t, f)
	if first.Status != StatusHeld {
		t.Fatalf("expected HELD with auto-confirm, got %s", first.Status)
	}

	second := openHold(t, f)
	if second.ID != first.ID {
		t.Fatalf("expected same escrow account, got %s vs %s", first.ID, second.ID)
	}
	if got := f.lgr.Submissions(); got != 1 {
		t.Fatalf("expected exactly one ledger submission, got %d", got)
	}
	if n := f.facts.countByType(eventlog.FactEscrowHeld); n != 1 {
		t.Fatalf("expected exactly one ESCROW_HELD fact, got %d", n)
	}
}

func TestOpenHold_InsufficientFunds(t *testing.T) {
	f := newFixture(t, memledger.WithBalance(keeperKey, 100))

	_, err := f.svc.OpenHold(context.Background(), OpenHoldInput{
		AgreementID: "agr-1",
		PetID:       "pet-1",
		DepositorID: "keeper-1",
		Amount:      150,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestOpenHold_NoDepositorKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.OpenHold(context.Background(), OpenHoldInput{
		AgreementID: "agr-1",
		PetID:       "pet-1",
		DepositorID: "ghost",
		Amount:      150,
	})
	if !errors.Is(err, ErrNoDepositorKey) {
		t.Fatalf("expected ErrNoDepositorKey, got %v", err)
	}
}

func TestConfirmHold_FailedClearsRefForRetry(t *testing.T) {
	f := newFixture(t, memledger.WithBalance(keeperKey, 500))

	acct := openHold(t, f)
	f.lgr.FailTx(acct.HoldTxRef)

	acct, err := f.svc.ConfirmHold(context.Background(), acct.ID)
	if !errors.Is(err, ErrTransitionFailed) {
		t.Fatalf("expected ErrTransitionFailed, got %v", err)
	}
	if acct.Status != StatusPendingHold {
		t.Fatalf("expected account still PENDING_HOLD, got %s", acct.Status)
	}
	if acct.HoldTxRef != "" {
		t.Fatalf("expected hold tx ref cleared after failure")
	}

	// El retry re-emite el hold con la misma idempotency key.
	retried := openHold(t, f)
	if retried.HoldTxRef == "" {
		t.Fatalf("expected new hold tx ref on retry")
	}
}

func TestExit_OnlyFromHeld(t *testing.T) {
	f := newFixture(t, memledger.WithBalance(keeperKey, 500))

	acct := openHold(t, f) // sigue PENDING_HOLD

	if _, err := f.svc.Release(context.Background(), acct.ID, "GOWNER"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition releasing PENDING_HOLD, got %v", err)
	}
	if _, err := f.svc.Refund(context.Background(), acct.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition refunding PENDING_HOLD, got %v", err)
	}
}

func TestRelease_TerminalAndIdempotent(t *testing.T) {
	f := newFixture(t, memledger.WithAutoConfirm(), memledger.WithBalance(keeperKey, 500))

	acct := openHold(t, f)

	released, err := f.svc.Release(context.Background(), acct.ID, "GOWNER")
	if err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if released.Status != StatusReleased {
		t.Fatalf("expected RELEASED, got %s", released.Status)
	}
	if n := f.facts.countByType(eventlog.FactEscrowReleased); n != 1 {
		t.Fatalf("expected one ESCROW_RELEASED fact, got %d", n)
	}

	// Mismo release otra vez: no-op.
	again, err := f.svc.Release(context.Background(), acct.ID, "GOWNER")
	if err != nil {
		t.Fatalf("second Release error: %v", err)
	}
	if again.Status != StatusReleased {
		t.Fatalf("expected RELEASED on replay, got %s", again.Status)
	}
	if n := f.facts.countByType(eventlog.FactEscrowReleased); n != 1 {
		t.Fatalf("expected still one ESCROW_RELEASED fact, got %d", n)
	}

	// Un estado terminal es final: no hay refund después del release.
	if _, err := f.svc.Refund(context.Background(), acct.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition refund after release, got %v", err)
	}
}

func TestRefund_ReturnsFundsToDepositor(t *testing.T) {
	f := newFixture(t, memledger.WithAutoConfirm(), memledger.WithBalance(keeperKey, 500))

	acct := openHold(t, f)

	refunded, err := f.svc.Refund(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("Refund error: %v", err)
	}
	if refunded.Status != StatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", refunded.Status)
	}
	if refunded.ExitToKey != keeperKey {
		t.Fatalf("expected refund destination %s, got %s", keeperKey, refunded.ExitToKey)
	}
	if n := f.facts.countByType(eventlog.FactEscrowRefunded); n != 1 {
		t.Fatalf("expected one ESCROW_REFUNDED fact, got %d", n)
	}
}

func TestReconciler_SweepCommitsPendingHold(t *testing.T) {
	f := newFixture(t, memledger.WithBalance(keeperKey, 500))

	acct := openHold(t, f)
	if acct.Status != StatusPendingHold {
		t.Fatalf("expected PENDING_HOLD, got %s", acct.Status)
	}

	rec := NewReconciler(f.svc, nil, time.Second, testLogger{}, metrics.New())

	// Aún pendiente: el sweep no avanza nada.
	rec.Sweep(context.Background())
	got, _ := f.repo.GetByID(context.Background(), acct.ID)
	if got.Status != StatusPendingHold {
		t.Fatalf("expected still PENDING_HOLD, got %s", got.Status)
	}

	// Confirmado en el ledger: el sweep compromete HELD.
	f.lgr.ConfirmAll()
	rec.Sweep(context.Background())
	got, _ = f.repo.GetByID(context.Background(), acct.ID)
	if got.Status != StatusHeld {
		t.Fatalf("expected HELD after sweep, got %s", got.Status)
	}
	if n := f.facts.countByType(eventlog.FactEscrowHeld); n != 1 {
		t.Fatalf("expected one ESCROW_HELD fact, got %d", n)
	}
}

// refundSettler empuja un refund para todo HELD sin salida en vuelo, como
// hace custody.Service cuando el agreement ya cerró.
type refundSettler struct {
	svc *Service
}

func (s refundSettler) SettleHeld(ctx context.Context, acct Account) (bool, error) {
	_, err := s.svc.Refund(ctx, acct.ID)
	return true, err
}

func TestReconciler_SweepSettlesHeldWithoutExit(t *testing.T) {
	f := newFixture(t, memledger.WithBalance(keeperKey, 500))

	acct := openHold(t, f)
	rec := NewReconciler(f.svc, refundSettler{svc: f.svc}, time.Second, testLogger{}, metrics.New())

	// El hold confirma recién ahora: el sweep compromete HELD y, como no hay
	// salida en vuelo, el settler empuja el refund en la misma pasada.
	f.lgr.ConfirmAll()
	rec.Sweep(context.Background())

	got, _ := f.repo.GetByID(context.Background(), acct.ID)
	if got.Status != StatusHeld || got.ExitTxRef == "" {
		t.Fatalf("expected HELD with refund in flight, got %s exitRef=%q", got.Status, got.ExitTxRef)
	}

	// La confirmación del refund llega en el sweep siguiente.
	f.lgr.ConfirmAll()
	rec.Sweep(context.Background())

	got, _ = f.repo.GetByID(context.Background(), acct.ID)
	if got.Status != StatusRefunded {
		t.Fatalf("expected REFUNDED after second sweep, got %s", got.Status)
	}
	if n := f.facts.countByType(eventlog.FactEscrowRefunded); n != 1 {
		t.Fatalf("expected one ESCROW_REFUNDED fact, got %d", n)
	}
}

type testLogger struct{}

func (testLogger) With(map[string]any) logger.Logger { return testLogger{} }
func (testLogger) Debug(string, map[string]any)      {}
func (testLogger) Info(string, map[string]any)       {}
func (testLogger) Warn(string, map[string]any)       {}
func (testLogger) Error(string, map[string]any)      {}
