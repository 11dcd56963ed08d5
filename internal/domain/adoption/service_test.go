package adoption

import (
	"context"
	"errors"
	"testing"

	"pet-custody-escrow/internal/domain/eventlog"
	"pet-custody-escrow/internal/domain/pets"
	"pet-custody-escrow/internal/platform/metrics"
	"pet-custody-escrow/internal/ports/auth"
	"pet-custody-escrow/internal/workflow"
)

// -------------------------
// Test fixtures
// -------------------------

type testRepo struct {
	byID map[string]Request
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Request{}}
}

func (r *testRepo) Create(ctx context.Context, req Request) error {
	if _, ok := r.byID[req.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[req.ID] = req
	return nil
}

func (r *testRepo) Update(ctx context.Context, req Request) error {
	if _, ok := r.byID[req.ID]; !ok {
		return ErrNotFound
	}
	r.byID[req.ID] = req
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Request, error) {
	req, ok := r.byID[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *testRepo) HasOpenRequestForPet(ctx context.Context, petID string) (bool, error) {
	for _, req := range r.byID {
		if req.PetID == petID && !req.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

type petsRepo struct {
	byID map[string]pets.Pet
}

func (r *petsRepo) Create(ctx context.Context, p pets.Pet) error {
	r.byID[p.ID] = p
	return nil
}

func (r *petsRepo) GetByID(ctx context.Context, id string) (pets.Pet, error) {
	p, ok := r.byID[id]
	if !ok {
		return pets.Pet{}, errors.New("repo: not found")
	}
	return p, nil
}

func (r *petsRepo) List(ctx context.Context) ([]pets.Pet, error) { return nil, nil }

func (r *petsRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]pets.Pet, error) {
	return nil, nil
}

func (r *petsRepo) UpdateStatus(ctx context.Context, id string, status pets.Status) error {
	p, ok := r.byID[id]
	if !ok {
		return errors.New("repo: not found")
	}
	p.Status = status
	r.byID[id] = p
	return nil
}

type custodyGuardStub bool

func (g custodyGuardStub) HasOpenAgreementForPet(ctx context.Context, petID string) (bool, error) {
	return bool(g), nil
}

type nopTx struct{}

func (nopTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var (
	owner   = workflow.Actor{ID: "owner-1", Role: auth.RoleShelter}
	adopter = workflow.Actor{ID: "adopter-1", Role: auth.RoleUser}
	admin   = workflow.Actor{ID: "admin-1", Role: auth.RoleAdmin}
)

type fixture struct {
	svc  *Service
	pets *petsRepo
}

func newFixture(t *testing.T, custodyOpen bool) *fixture {
	t.Helper()

	repo := newTestRepo()
	pr := &petsRepo{byID: map[string]pets.Pet{
		"pet-1": {ID: "pet-1", OwnerUserID: "owner-1", Name: "Buddy", Status: pets.StatusAvailable},
	}}

	factsSvc := eventlog.NewService(&factRepo{})
	svc := NewService(Deps{
		Repo:    repo,
		Pets:    pets.NewService(pr, factsSvc, nopTx{}),
		Log:     factsSvc,
		Flow:    workflow.New(repo, custodyGuardStub(custodyOpen)),
		Tx:      nopTx{},
		Metrics: metrics.New(),
	})

	return &fixture{svc: svc, pets: pr}
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
	return nil, nil
}

func request(t *testing.T, f *fixture) Request {
	t.Helper()

	req, err := f.svc.Request(context.Background(), adopter, RequestInput{PetID: "pet-1"})
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	return req
}

// -------------------------
// Tests
// -------------------------

func TestRequest_MarksPetPending(t *testing.T) {
	f := newFixture(t, false)

	req := request(t, f)
	if req.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", req.Status)
	}

	p, _ := f.pets.GetByID(context.Background(), "pet-1")
	if p.Status != pets.StatusPending {
		t.Fatalf("expected pet PENDING, got %s", p.Status)
	}
}

func TestRequest_OwnerCannotRequestOwnPet(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.Request(context.Background(), owner, RequestInput{PetID: "pet-1"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRequest_ConflictsWithOpenRequest(t *testing.T) {
	f := newFixture(t, false)

	request(t, f)

	other := workflow.Actor{ID: "adopter-2", Role: auth.RoleUser}
	_, err := f.svc.Request(context.Background(), other, RequestInput{PetID: "pet-1"})
	if !errors.Is(err, workflow.ErrPetUnavailable) {
		t.Fatalf("expected ErrPetUnavailable, got %v", err)
	}
}

func TestRequest_ConflictsWithOpenAgreement(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.Request(context.Background(), adopter, RequestInput{PetID: "pet-1"})
	if !errors.Is(err, workflow.ErrPetUnavailable) {
		t.Fatalf("expected ErrPetUnavailable, got %v", err)
	}
}

func TestApprove_OwnerOnly(t *testing.T) {
	f := newFixture(t, false)
	req := request(t, f)

	// El adopter no tiene capacidad de approve.
	if _, err := f.svc.Approve(context.Background(), adopter, req.ID); !errors.Is(err, workflow.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for adopter, got %v", err)
	}

	// Otro shelter pasa la capacidad pero no es el owner del request.
	stranger := workflow.Actor{ID: "shelter-2", Role: auth.RoleShelter}
	if _, err := f.svc.Approve(context.Background(), stranger, req.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	got, err := f.svc.Approve(context.Background(), owner, req.ID)
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}

	p, _ := f.pets.GetByID(context.Background(), "pet-1")
	if p.Status != pets.StatusAdopted {
		t.Fatalf("expected pet ADOPTED, got %s", p.Status)
	}

	// Terminal: reject ya no aplica.
	if _, err := f.svc.Reject(context.Background(), owner, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after approve, got %v", err)
	}
}

func TestReject_ReturnsPetToAvailable(t *testing.T) {
	f := newFixture(t, false)
	req := request(t, f)

	got, err := f.svc.Reject(context.Background(), owner, req.ID)
	if err != nil {
		t.Fatalf("Reject error: %v", err)
	}
	if got.Status != StatusRejected {
		t.Fatalf("expected REJECTED, got %s", got.Status)
	}

	p, _ := f.pets.GetByID(context.Background(), "pet-1")
	if p.Status != pets.StatusAvailable {
		t.Fatalf("expected pet AVAILABLE, got %s", p.Status)
	}

	// La mascota liberada acepta una solicitud nueva.
	other := workflow.Actor{ID: "adopter-2", Role: auth.RoleUser}
	if _, err := f.svc.Request(context.Background(), other, RequestInput{PetID: "pet-1"}); err != nil {
		t.Fatalf("expected new request after reject, got %v", err)
	}
}

func TestCancel_AdopterOnly(t *testing.T) {
	f := newFixture(t, false)
	req := request(t, f)

	other := workflow.Actor{ID: "adopter-2", Role: auth.RoleUser}
	if _, err := f.svc.Cancel(context.Background(), other, req.ID); !errors.Is(err, ErrNotAdopter) {
		t.Fatalf("expected ErrNotAdopter, got %v", err)
	}

	got, err := f.svc.Cancel(context.Background(), adopter, req.ID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}

	p, _ := f.pets.GetByID(context.Background(), "pet-1")
	if p.Status != pets.StatusAvailable {
		t.Fatalf("expected pet AVAILABLE, got %s", p.Status)
	}
}

func TestAdmin_CanDecideAnyRequest(t *testing.T) {
	f := newFixture(t, false)
	req := request(t, f)

	got, err := f.svc.Approve(context.Background(), admin, req.ID)
	if err != nil {
		t.Fatalf("admin Approve error: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED by admin, got %s", got.Status)
	}
}

func TestDecide_IdempotentReplay(t *testing.T) {
	f := newFixture(t, false)
	req := request(t, f)

	if _, err := f.svc.Approve(context.Background(), owner, req.ID); err != nil {
		t.Fatalf("Approve error: %v", err)
	}

	// Mismo approve otra vez: no-op, mismo estado.
	got, err := f.svc.Approve(context.Background(), owner, req.ID)
	if err != nil {
		t.Fatalf("replay Approve error: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED on replay, got %s", got.Status)
	}
}
