package horizon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pet-custody-escrow/internal/platform/httpclient"
	"pet-custody-escrow/internal/ports/ledger"

	"golang.org/x/time/rate"
)

var (
	ErrNotConfigured = errors.New("horizon gateway not configured")
)

// Config del gateway contra el servicio de anclaje Stellar.
// BaseURL normalmente viene de HORIZON_URL.
type Config struct {
	BaseURL string

	// Cuenta pool del escrow: destino de los holds y origen de los releases.
	EscrowAccount string

	// Timeout HTTP por request.
	Timeout time.Duration

	// Requests por segundo contra el servicio (el anchor ratelimita fuerte).
	// <= 0 usa 10 rps.
	RPS float64
}

// Gateway implementa ledger.Gateway contra el anchor HTTP que envuelve
// Horizon. La idempotency key viaja como memo (MEMO_HASH): el anchor dedupea
// del lado del ledger, así un retry nunca duplica fondos.
type Gateway struct {
	http    *httpclient.Client
	escrow  string
	limiter *rate.Limiter
}

func New(cfg Config) (*Gateway, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, ErrNotConfigured
	}

	c, err := httpclient.NewWithBaseURL(base, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}

	return &Gateway{
		http:    c,
		escrow:  strings.TrimSpace(cfg.EscrowAccount),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// NewWithHTTP permite inyectar el cliente HTTP (tests con Transport fake).
func NewWithHTTP(c *httpclient.Client, escrowAccount string) *Gateway {
	return &Gateway{
		http:    c,
		escrow:  escrowAccount,
		limiter: rate.NewLimiter(rate.Limit(100), 1),
	}
}

type submitRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount"`
	// Memo lleva la idempotency key (32 bytes hex).
	Memo    string `json:"memo"`
	HoldRef string `json:"hold_ref,omitempty"`
}

type submitResponse struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

func (g *Gateway) SubmitHold(ctx context.Context, amount float64, fromKey, escrowID string) (string, error) {
	if g == nil || g.http == nil {
		return "", ErrNotConfigured
	}

	return g.submit(ctx, "/v1/escrow/holds", submitRequest{
		From:   fromKey,
		To:     g.escrow,
		Amount: formatAmount(amount),
		Memo:   ledger.IdempotencyKey(escrowID, ledger.OpHold),
	})
}

func (g *Gateway) SubmitRelease(ctx context.Context, holdRef, toKey, escrowID string) (string, error) {
	if g == nil || g.http == nil {
		return "", ErrNotConfigured
	}

	return g.submit(ctx, "/v1/escrow/releases", submitRequest{
		To:      toKey,
		Memo:    ledger.IdempotencyKey(escrowID, ledger.OpRelease),
		HoldRef: holdRef,
	})
}

func (g *Gateway) submit(ctx context.Context, path string, req submitRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var resp submitResponse
	err := g.http.DoJSON(ctx, http.MethodPost, path, nil, req, &resp)
	if err != nil {
		return "", mapHTTPError(err)
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("%w: empty tx hash", ledger.ErrUnavailable)
	}
	return resp.Hash, nil
}

type txResponse struct {
	Hash       string `json:"hash"`
	Successful *bool  `json:"successful"`
	Ledger     int64  `json:"ledger"`
}

func (g *Gateway) Confirm(ctx context.Context, txRef string) (ledger.Status, error) {
	if g == nil || g.http == nil {
		return "", ErrNotConfigured
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var resp txResponse
	err := g.http.DoJSON(ctx, http.MethodGet, "/v1/transactions/"+txRef, nil, nil, &resp)
	if err != nil {
		var httpErr *httpclient.HTTPError
		// 404: el anchor aún no indexó la transacción => sigue pendiente.
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return ledger.StatusPending, nil
		}
		return "", mapHTTPError(err)
	}

	switch {
	case resp.Successful == nil:
		return ledger.StatusPending, nil
	case *resp.Successful:
		return ledger.StatusConfirmed, nil
	default:
		return ledger.StatusFailed, nil
	}
}

// mapHTTPError traduce las respuestas del anchor a la taxonomía del port.
func mapHTTPError(err error) error {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		// Timeout / conexión caída: transitorio.
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}

	switch httpErr.StatusCode {
	case http.StatusPaymentRequired:
		return ledger.ErrInsufficientFunds
	case http.StatusBadRequest, http.StatusNotFound:
		return ledger.ErrInvalidKey
	case http.StatusConflict:
		// Memo duplicado: no debería pasar (el submit dedupea por memo y
		// devuelve el hash existente), pero si pasa es transitorio.
		return fmt.Errorf("%w: duplicate memo", ledger.ErrUnavailable)
	default:
		return fmt.Errorf("%w: status=%d", ledger.ErrUnavailable, httpErr.StatusCode)
	}
}

// formatAmount serializa con los 7 decimales de Stellar.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 7, 64)
}

var _ ledger.Gateway = (*Gateway)(nil)
