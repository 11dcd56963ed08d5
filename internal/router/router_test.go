package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	memledger "pet-custody-escrow/internal/adapters/ledger/memory"
	"pet-custody-escrow/internal/router"
)

const (
	keeperKey  = "GKEEPER000000000000000000000000000000000000000000000000"
	shelterKey = "GSHELTER00000000000000000000000000000000000000000000000"
)

func TestHTTP_EndToEnd_CustodyLifecycle(t *testing.T) {
	lgr := memledger.New(
		memledger.WithAutoConfirm(),
		memledger.WithBalance(keeperKey, 500),
		memledger.WithBalance(shelterKey, 0),
	)

	app := router.New(router.Options{AuthVerifier: nil, Ledger: lgr})
	ts := httptest.NewServer(app.Handler)
	defer ts.Close()

	// 1) Alta de usuarios: shelter (dueño), keeper (cuidador), adopter
	shelterID := registerUser(t, ts.URL, map[string]any{
		"email":              "shelter@example.com",
		"first_name":         "Huellitas",
		"role":               "SHELTER",
		"stellar_public_key": shelterKey,
	})
	keeperID := registerUser(t, ts.URL, map[string]any{
		"email":              "keeper@example.com",
		"first_name":         "Ana",
		"role":               "USER",
		"stellar_public_key": keeperKey,
	})
	adopterID := registerUser(t, ts.URL, map[string]any{
		"email":      "adopter@example.com",
		"first_name": "Luis",
		"role":       "USER",
	})

	// 2) Shelter lista una mascota
	petID := createPet(t, ts.URL, shelterID, map[string]any{
		"name":    "Buddy",
		"species": "DOG",
		"breed":   "mixed",
		"age":     3,
	})

	// Adopter no puede listar mascotas (rol USER)
	{
		st, _ := doReq(t, ts.URL, "POST", "/pets", adopterID, "USER", map[string]any{
			"name":    "Nope",
			"species": "CAT",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 create pet as USER, got %d", st)
		}
	}

	// 3) Shelter crea custody agreement con depósito de 150
	now := time.Now().UTC()
	agreementID := ""
	{
		st, body := doReq(t, ts.URL, "POST", "/custody-agreements", shelterID, "SHELTER", map[string]any{
			"pet_id":         petID,
			"keeper_id":      keeperID,
			"deposit_amount": 150.0,
			"start_date":     now.Format(time.RFC3339),
			"end_date":       now.Add(time.Hour).Format(time.RFC3339),
			"terms":          "vacaciones",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 create agreement, got %d body=%s", st, string(body))
		}

		var resp struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Status != "PENDING" {
			t.Fatalf("expected agreement PENDING, got %q", resp.Status)
		}
		agreementID = resp.ID
	}

	// 4) Con el agreement abierto, nadie puede solicitar adopción
	{
		st, body := doReq(t, ts.URL, "POST", "/adoption-requests", adopterID, "USER", map[string]any{
			"pet_id": petID,
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 adoption with open agreement, got %d body=%s", st, string(body))
		}
	}

	// 5) El hold ya confirmó (auto-confirm): activate pasa a ACTIVE
	{
		st, body := doReq(t, ts.URL, "POST", "/custody-agreements/"+agreementID+"/activate", shelterID, "SHELTER", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 activate, got %d body=%s", st, string(body))
		}

		var resp struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Status != "ACTIVE" {
			t.Fatalf("expected ACTIVE, got %q", resp.Status)
		}
	}
	assertPetStatus(t, ts.URL, shelterID, petID, "IN_CUSTODY")

	// 6) Complete antes de EndDate => 422 y current_status sin cambios
	{
		st, body := doReq(t, ts.URL, "POST", "/custody-agreements/"+agreementID+"/complete", shelterID, "SHELTER", nil)
		if st != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 complete before end date, got %d body=%s", st, string(body))
		}

		var resp struct {
			CurrentStatus string `json:"current_status"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.CurrentStatus != "ACTIVE" {
			t.Fatalf("expected current_status ACTIVE, got %q", resp.CurrentStatus)
		}
	}

	// 7) Terminate devuelve el depósito al keeper y libera la mascota
	{
		st, body := doReq(t, ts.URL, "POST", "/custody-agreements/"+agreementID+"/terminate", shelterID, "SHELTER", map[string]any{
			"reason": "keeper moved abroad",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 terminate, got %d body=%s", st, string(body))
		}

		var resp struct {
			Status string `json:"status"`
			Reason string `json:"termination_reason"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Status != "TERMINATED" || resp.Reason != "keeper moved abroad" {
			t.Fatalf("unexpected terminate response: %s", string(body))
		}
	}
	assertPetStatus(t, ts.URL, shelterID, petID, "AVAILABLE")

	// 8) Mascota libre: ahora sí hay solicitud de adopción
	requestID := ""
	{
		st, body := doReq(t, ts.URL, "POST", "/adoption-requests", adopterID, "USER", map[string]any{
			"pet_id": petID,
			"notes":  "tengo patio",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 adoption request, got %d body=%s", st, string(body))
		}

		var resp struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(body, &resp)
		requestID = resp.ID
	}
	assertPetStatus(t, ts.URL, shelterID, petID, "PENDING")

	// Un segundo interesado choca contra el request abierto
	{
		st, _ := doReq(t, ts.URL, "POST", "/adoption-requests", keeperID, "USER", map[string]any{
			"pet_id": petID,
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 second adoption request, got %d", st)
		}
	}

	// El adopter no puede aprobar su propia solicitud
	{
		st, _ := doReq(t, ts.URL, "POST", "/adoption-requests/"+requestID+"/approve", adopterID, "USER", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 approve by adopter, got %d", st)
		}
	}

	// 9) Owner aprueba: request APPROVED, mascota ADOPTED
	{
		st, body := doReq(t, ts.URL, "POST", "/adoption-requests/"+requestID+"/approve", shelterID, "SHELTER", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 approve, got %d body=%s", st, string(body))
		}

		var resp struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(body, &resp)
		if resp.Status != "APPROVED" {
			t.Fatalf("expected APPROVED, got %q", resp.Status)
		}
	}
	assertPetStatus(t, ts.URL, shelterID, petID, "ADOPTED")

	// 10) Una mascota adoptada no entra a custodia: la adopción quedó firme
	{
		st, body := doReq(t, ts.URL, "POST", "/custody-agreements", shelterID, "SHELTER", map[string]any{
			"pet_id":         petID,
			"keeper_id":      keeperID,
			"deposit_amount": 150.0,
			"start_date":     now.Format(time.RFC3339),
			"end_date":       now.Add(time.Hour).Format(time.RFC3339),
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 custody on adopted pet, got %d body=%s", st, string(body))
		}
	}
	assertPetStatus(t, ts.URL, shelterID, petID, "ADOPTED")

	// 11) Audit trail del agreement: created -> activated -> terminated
	{
		st, body := doReq(t, ts.URL, "GET", "/events?aggregateId="+agreementID, shelterID, "SHELTER", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 list events, got %d body=%s", st, string(body))
		}

		var facts []struct {
			Sequence int64  `json:"sequence"`
			Type     string `json:"type"`
		}
		_ = json.Unmarshal(body, &facts)

		want := []string{"CUSTODY_CREATED", "CUSTODY_ACTIVATED", "CUSTODY_TERMINATED"}
		if len(facts) != len(want) {
			t.Fatalf("expected %d facts, got %d body=%s", len(want), len(facts), string(body))
		}
		for i, f := range facts {
			if f.Type != want[i] {
				t.Fatalf("fact %d: expected %s, got %s", i, want[i], f.Type)
			}
			if i > 0 && facts[i].Sequence <= facts[i-1].Sequence {
				t.Fatalf("sequence not increasing: %d then %d", facts[i-1].Sequence, facts[i].Sequence)
			}
		}
	}
}

func TestHTTP_Health(t *testing.T) {
	app := router.New(router.Options{AuthVerifier: nil})
	ts := httptest.NewServer(app.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
}

func TestHTTP_Metrics_Exposed(t *testing.T) {
	app := router.New(router.Options{AuthVerifier: nil})
	ts := httptest.NewServer(app.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 metrics, got %d", resp.StatusCode)
	}
}

func registerUser(t *testing.T, baseURL string, payload map[string]any) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/users", "", "", payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 register user, got %d body=%s", st, string(body))
	}

	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("register user: missing id body=%s", string(body))
	}
	return resp.ID
}

func createPet(t *testing.T, baseURL, shelterID string, payload map[string]any) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/pets", shelterID, "SHELTER", payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create pet, got %d body=%s", st, string(body))
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.ID == "" {
		t.Fatalf("create pet: missing id body=%s", string(body))
	}
	if resp.Status != "AVAILABLE" {
		t.Fatalf("expected new pet AVAILABLE, got %q", resp.Status)
	}
	return resp.ID
}

func assertPetStatus(t *testing.T, baseURL, userID, petID, want string) {
	t.Helper()

	st, body := doReq(t, baseURL, "GET", "/pets/"+petID, userID, "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 get pet, got %d body=%s", st, string(body))
	}

	var resp struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.Status != want {
		t.Fatalf("expected pet status %s, got %q", want, resp.Status)
	}
}

func doReq(t *testing.T, baseURL, method, path, userID, role string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-Debug-User-ID", userID)
	}
	if role != "" {
		req.Header.Set("X-Debug-Role", role)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}
