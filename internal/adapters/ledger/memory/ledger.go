package memory

import (
	"context"
	"errors"
	"sync"

	"pet-custody-escrow/internal/ports/ledger"

	"github.com/google/uuid"
)

// Ledger simula el gateway para dev y tests: dedup por idempotency key,
// balances por public key y confirmación configurable.
type Ledger struct {
	mu sync.Mutex

	// AutoConfirm: las transacciones nacen confirmadas (modo dev). Si es
	// false, quedan PENDING hasta que un test llame ConfirmAll / FailTx.
	autoConfirm bool

	byKey map[string]string // idempotency key -> txRef
	txs   map[string]*tx

	balances map[string]float64 // public key -> fondos disponibles

	// openBalance > 0: keys desconocidas se siembran con ese saldo al primer
	// uso (modo dev, evita registrar cada key a mano).
	openBalance float64
}

type tx struct {
	ref    string
	status ledger.Status

	amount  float64
	fromKey string
	holdRef string
}

type Option func(*Ledger)

// WithAutoConfirm hace que toda transacción confirme inmediatamente.
func WithAutoConfirm() Option {
	return func(l *Ledger) { l.autoConfirm = true }
}

// WithBalance registra fondos para una public key. Keys sin registro se
// consideran desconocidas (ErrInvalidKey).
func WithBalance(key string, amount float64) Option {
	return func(l *Ledger) { l.balances[key] = amount }
}

// WithOpenAccounts siembra keys desconocidas con el saldo dado al primer
// uso, en vez de devolver ErrInvalidKey. Solo para modo dev.
func WithOpenAccounts(amount float64) Option {
	return func(l *Ledger) { l.openBalance = amount }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		byKey:    make(map[string]string),
		txs:      make(map[string]*tx),
		balances: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterKey da de alta una key con fondos (tests y seed de dev).
func (l *Ledger) RegisterKey(key string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key] = amount
}

func (l *Ledger) SubmitHold(ctx context.Context, amount float64, fromKey, escrowID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idemKey := ledger.IdempotencyKey(escrowID, ledger.OpHold)
	if ref, ok := l.byKey[idemKey]; ok {
		return ref, nil // mismo intento lógico: un solo efecto
	}

	balance, known := l.balances[fromKey]
	if !known {
		if l.openBalance <= 0 {
			return "", ledger.ErrInvalidKey
		}
		balance = l.openBalance
		l.balances[fromKey] = balance
	}
	if balance < amount {
		return "", ledger.ErrInsufficientFunds
	}

	l.balances[fromKey] = balance - amount

	t := &tx{
		ref:     uuid.NewString(),
		status:  ledger.StatusPending,
		amount:  amount,
		fromKey: fromKey,
	}
	if l.autoConfirm {
		t.status = ledger.StatusConfirmed
	}

	l.byKey[idemKey] = t.ref
	l.txs[t.ref] = t
	return t.ref, nil
}

func (l *Ledger) SubmitRelease(ctx context.Context, holdRef, toKey, escrowID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idemKey := ledger.IdempotencyKey(escrowID, ledger.OpRelease)
	if ref, ok := l.byKey[idemKey]; ok {
		return ref, nil
	}

	hold, ok := l.txs[holdRef]
	if !ok || hold.status != ledger.StatusConfirmed {
		return "", ledger.ErrInvalidKey
	}

	t := &tx{
		ref:     uuid.NewString(),
		status:  ledger.StatusPending,
		amount:  hold.amount,
		holdRef: holdRef,
	}
	if l.autoConfirm {
		t.status = ledger.StatusConfirmed
		l.balances[toKey] += hold.amount
	}

	l.byKey[idemKey] = t.ref
	l.txs[t.ref] = t
	return t.ref, nil
}

func (l *Ledger) Confirm(ctx context.Context, txRef string) (ledger.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.txs[txRef]
	if !ok {
		return "", errors.New("unknown tx ref")
	}
	return t.status, nil
}

// ConfirmAll marca confirmadas todas las transacciones pendientes (tests).
func (l *Ledger) ConfirmAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.txs {
		if t.status == ledger.StatusPending {
			t.status = ledger.StatusConfirmed
		}
	}
}

// FailTx marca una transacción como Failed y devuelve los fondos (tests).
func (l *Ledger) FailTx(txRef string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txs[txRef]
	if !ok || t.status != ledger.StatusPending {
		return
	}
	t.status = ledger.StatusFailed
	if t.fromKey != "" {
		l.balances[t.fromKey] += t.amount
	}
	// La key de dedupe se descarta: un retry re-emite la intención.
	for k, ref := range l.byKey {
		if ref == txRef {
			delete(l.byKey, k)
		}
	}
}

// Submissions cuenta transacciones emitidas (asserts de idempotencia).
func (l *Ledger) Submissions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

var _ ledger.Gateway = (*Ledger)(nil)
