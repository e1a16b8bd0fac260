package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/internal/api"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/internal/eventlog"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/jmerrifield20/memoryledger/pkg/client"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"go.uber.org/zap"
)

type fixture struct {
	owner  signature.PrivateKey
	prover *proofchain.Prover
	app    *applier.Applier
	router *gin.Engine
	ms     atomic.Int64
}

func (f *fixture) now() time.Time { return time.UnixMilli(f.ms.Add(1)) }

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{}
	f.ms.Store(1_000_000)
	f.owner, _ = signature.GenerateKey(nil)
	proverKey, _ := signature.GenerateKey(nil)
	prover := proofchain.NewProver(proverKey)
	f.prover = prover

	f.app = applier.New(ledger.New(f.owner.Public()), eventlog.NewMemory(),
		proofchain.NewVerifier(prover.VerificationKey()),
		applier.WithClock(f.now),
		applier.WithObserver(api.ObserveTransaction),
	)

	r := gin.New()
	r.Use(api.PrometheusMiddleware())
	r.GET("/metrics", api.MetricsHandler())
	v1 := r.Group("/api/v1")
	api.NewLedgerHandler(f.app, zap.NewNop()).Register(v1)
	api.NewEventHandler(f.app.Log(), zap.NewNop()).Register(v1)
	api.NewProverHandler(prover, f.now, zap.NewNop()).Register(v1)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) sign(t *testing.T, fields []field.Element) string {
	t.Helper()
	sig, err := signature.Sign(f.owner, fields)
	if err != nil {
		t.Fatal(err)
	}
	return sig.String()
}

func aria() ledger.CharacterRecord {
	return ledger.CharacterRecord{
		ID:          field.New(42),
		Name:        field.FromText("Aria"),
		LastUpdated: field.New(1000),
		Bio:         field.Texts([]string{"a wandering bard"}),
	}
}

func (f *fixture) storeAria(t *testing.T) {
	t.Helper()
	rec := aria()
	w := f.do(t, http.MethodPost, "/api/v1/characters", wire.StoreCharacterRequest{
		Character: rec.Wire(),
		Signature: f.sign(t, rec.SignedFields()),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("store: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestStoreCharacter_201(t *testing.T) {
	f := setup(t)
	rec := aria()
	w := f.do(t, http.MethodPost, "/api/v1/characters", wire.StoreCharacterRequest{
		Character: rec.Wire(),
		Signature: f.sign(t, rec.SignedFields()),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	r := decode[wire.Receipt](t, w)
	if !r.Success || len(r.TransactionHash) != 64 || r.Sequence != 1 {
		t.Errorf("unexpected receipt: %+v", r)
	}
	if r.Ledger.CharacterCount != "1" || r.Ledger.EventCount != 2 {
		t.Errorf("unexpected ledger in receipt: %+v", r.Ledger)
	}

	w = f.do(t, http.MethodGet, "/api/v1/characters/42", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	got := decode[wire.Character](t, w)
	if got.Name != field.FromText("Aria").String() || got.MemoryCommitment != "0" || got.IsVerified {
		t.Errorf("unexpected character: %+v", got)
	}
}

func TestStoreCharacter_errors(t *testing.T) {
	f := setup(t)
	f.storeAria(t)
	rec := aria()
	other, _ := signature.GenerateKey(nil)
	forged, _ := signature.Sign(other, rec.SignedFields())

	tests := []struct {
		name string
		body any
		want int
		code string
	}{
		{"duplicate", wire.StoreCharacterRequest{Character: rec.Wire(), Signature: f.sign(t, rec.SignedFields())}, http.StatusConflict, "DuplicateId"},
		{"wrong signer", wire.StoreCharacterRequest{Character: rec.Wire(), Signature: forged.String()}, http.StatusUnauthorized, "Unauthorized"},
		{"bad signature", wire.StoreCharacterRequest{Character: rec.Wire(), Signature: "zz"}, http.StatusUnauthorized, "Unauthorized"},
		{"missing signature", wire.StoreCharacterRequest{Character: rec.Wire()}, http.StatusUnauthorized, "Unauthorized"},
		{"bad id", map[string]any{"character": map[string]any{"id": "x"}, "signature": "00"}, http.StatusBadRequest, "InvalidRequest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/characters", tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if e := decode[wire.ErrorResponse](t, w); e.Code != tc.code {
				t.Errorf("code = %q, want %q", e.Code, tc.code)
			}
		})
	}
	if f.app.Overview().CharacterCount != 1 {
		t.Error("rejected requests changed the ledger")
	}
}

func TestGetCharacter_404(t *testing.T) {
	f := setup(t)
	if w := f.do(t, http.MethodGet, "/api/v1/characters/7", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/characters/seven", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/characters/7/memories", nil); w.Code != http.StatusNotFound {
		t.Errorf("memories: expected 404, got %d", w.Code)
	}
}

func (f *fixture) prove(t *testing.T, path string, req wire.ProveRequest) string {
	t.Helper()
	w := f.do(t, http.MethodPost, path, req)
	if w.Code != http.StatusOK {
		t.Fatalf("prove: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return decode[wire.ProveResponse](t, w).Proof
}

func (f *fixture) appendMemory(t *testing.T, hash, ts, proof string) *httptest.ResponseRecorder {
	t.Helper()
	u := wire.MemoryUpdate{ID: hash, CharacterID: "42", CommitmentHash: hash, Timestamp: ts, Proof: proof, Type: "1"}
	entry, _, err := ledger.EntryFromUpdate(u)
	if err != nil {
		t.Fatal(err)
	}
	return f.do(t, http.MethodPost, "/api/v1/characters/42/memories", wire.AppendMemoryRequest{
		Update:    u,
		Signature: f.sign(t, entry.SignedFields()),
	})
}

func TestAppendMemory_chain(t *testing.T) {
	f := setup(t)
	f.storeAria(t)

	base := f.prove(t, "/api/v1/prover/base", wire.ProveRequest{CommitmentHash: "5", Timestamp: "1001", CharacterID: "42"})
	if w := f.appendMemory(t, "5", "1001", base); w.Code != http.StatusCreated {
		t.Fatalf("first append: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	ext := f.prove(t, "/api/v1/prover/extension", wire.ProveRequest{CommitmentHash: "9", Timestamp: "1002", CharacterID: "42", Previous: base})
	if w := f.appendMemory(t, "9", "1002", ext); w.Code != http.StatusCreated {
		t.Fatalf("second append: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// A valid proof of the wrong predecessor.
	w := f.appendMemory(t, "10", "1003", f.prove(t, "/api/v1/prover/extension",
		wire.ProveRequest{CommitmentHash: "10", Timestamp: "1003", CharacterID: "42", Previous: base}))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("stale predecessor: expected 422, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/characters/42/memories", nil)
	mems := decode[struct {
		Memories []wire.Memory `json:"memories"`
	}](t, w).Memories
	if len(mems) != 2 || mems[1].CommitmentHash != "9" || !mems[1].IsVerified {
		t.Errorf("unexpected memories: %+v", mems)
	}
}

func TestAppendMemory_pathMismatch(t *testing.T) {
	f := setup(t)
	f.storeAria(t)
	w := f.do(t, http.MethodPost, "/api/v1/characters/43/memories", wire.AppendMemoryRequest{
		Update:    wire.MemoryUpdate{CharacterID: "42", CommitmentHash: "5", Timestamp: "1"},
		Signature: "00",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAppendMemory_malformedProof(t *testing.T) {
	f := setup(t)
	f.storeAria(t)

	w := f.appendMemory(t, "5", "1001", "AAAA")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("signed, undecodable proof: expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[wire.ErrorResponse](t, w).Code; got != "InvalidProofChain" {
		t.Errorf("code = %q, want InvalidProofChain", got)
	}

	// The signature is checked first.
	w = f.do(t, http.MethodPost, "/api/v1/characters/42/memories", wire.AppendMemoryRequest{
		Update:    wire.MemoryUpdate{ID: "5", CommitmentHash: "5", Timestamp: "1001", Proof: "AAAA"},
		Signature: "not-hex",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned, undecodable proof: expected 401, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/characters/42/memories", nil)
	if mems := decode[struct {
		Memories []wire.Memory `json:"memories"`
	}](t, w).Memories; len(mems) != 0 {
		t.Errorf("rejected appends left %d entries", len(mems))
	}
}

func TestValueOperations_malformedSignature(t *testing.T) {
	f := setup(t)
	bob, _ := signature.GenerateKey(nil)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"deposit empty", "/api/v1/deposits", wire.DepositRequest{Amount: "1"}},
		{"deposit short", "/api/v1/deposits", wire.DepositRequest{Amount: "1", Signature: "00"}},
		{"transfer", "/api/v1/transfers", wire.TransferRequest{To: bob.Public().String(), Amount: "1", Signature: "zz"}},
		{"owner", "/api/v1/owner", wire.ChangeOwnerRequest{NewOwner: bob.Public().String()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tc.path, tc.body)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
			}
			if got := decode[wire.ErrorResponse](t, w).Code; got != "Unauthorized" {
				t.Errorf("code = %q, want Unauthorized", got)
			}
		})
	}
}

func TestProver_refusesBrokenChain(t *testing.T) {
	f := setup(t)
	w := f.do(t, http.MethodPost, "/api/v1/prover/base", wire.ProveRequest{CommitmentHash: "0", Timestamp: "1", CharacterID: "42"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero hash: expected 422, got %d", w.Code)
	}
	w = f.do(t, http.MethodPost, "/api/v1/prover/extension", wire.ProveRequest{CommitmentHash: "6", Timestamp: "2", CharacterID: "42"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing previous: expected 400, got %d", w.Code)
	}
}

func TestValueOperations(t *testing.T) {
	f := setup(t)
	bob, _ := signature.GenerateKey(nil)

	w := f.do(t, http.MethodPost, "/api/v1/deposits", wire.DepositRequest{
		Amount: "100", Signature: f.sign(t, applier.DepositTuple(100, 0)),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	transfer := wire.TransferRequest{
		To: bob.Public().String(), Amount: "500", Signature: f.sign(t, applier.TransferTuple(bob.Public(), 500, 1)),
	}
	if w := f.do(t, http.MethodPost, "/api/v1/transfers", transfer); w.Code != http.StatusConflict {
		t.Fatalf("overdraft: expected 409, got %d", w.Code)
	}

	transfer.Amount, transfer.Signature = "40", f.sign(t, applier.TransferTuple(bob.Public(), 40, 1))
	if w := f.do(t, http.MethodPost, "/api/v1/transfers", transfer); w.Code != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Replaying the same signed transfer fails: the nonce moved on.
	if w := f.do(t, http.MethodPost, "/api/v1/transfers", transfer); w.Code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", w.Code)
	}

	if w := f.do(t, http.MethodPost, "/api/v1/deposits", wire.DepositRequest{Amount: "-1", Signature: "00"}); w.Code != http.StatusBadRequest {
		t.Errorf("negative amount: expected 400, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/v1/owner", wire.ChangeOwnerRequest{
		NewOwner: bob.Public().String(), Signature: f.sign(t, applier.OwnerTuple(bob.Public(), 2)),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	ov := decode[wire.Ledger](t, f.do(t, http.MethodGet, "/api/v1/ledger", nil))
	if ov.Owner != bob.Public().String() || ov.Balance != "60" || ov.Nonce != "3" || ov.EventCount != 4 {
		t.Errorf("unexpected overview: %+v", ov)
	}
}

func TestEvents(t *testing.T) {
	f := setup(t)
	f.storeAria(t)
	for i := uint64(0); i < 3; i++ {
		w := f.do(t, http.MethodPost, "/api/v1/deposits", wire.DepositRequest{
			Amount: "1", Signature: f.sign(t, applier.DepositTuple(1, i)),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("deposit %d: %d", i, w.Code)
		}
	}

	page := decode[wire.EventPage](t, f.do(t, http.MethodGet, "/api/v1/events?limit=3", nil))
	if len(page.Events) != 3 || page.Next != 4 {
		t.Fatalf("unexpected first page: %d events, next %d", len(page.Events), page.Next)
	}
	if page.Events[0].Kind != string(ledger.EventCharacterStored) || page.Events[0].Actor != f.owner.Public().String() {
		t.Errorf("unexpected first event: %+v", page.Events[0])
	}
	page = decode[wire.EventPage](t, f.do(t, http.MethodGet, "/api/v1/events?from=4", nil))
	if len(page.Events) != 1 || page.Next != 0 {
		t.Fatalf("unexpected last page: %+v", page)
	}

	genesis := decode[wire.Event](t, f.do(t, http.MethodGet, "/api/v1/events/0", nil))
	if genesis.Hash != eventlog.GenesisHash {
		t.Errorf("genesis hash = %s", genesis.Hash)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/events/99", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/events?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	v := decode[wire.Verification](t, f.do(t, http.MethodGet, "/api/v1/events/verify", nil))
	if !v.Valid || v.Records != 5 || v.Root != page.Events[0].Hash {
		t.Errorf("unexpected verification: %+v", v)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t)
	f.storeAria(t)
	w := f.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, want := range []string{"ledger_transactions_total", "ledger_requests_total", `op="storeCharacter"`} {
		if !bytes.Contains(w.Body.Bytes(), []byte(want)) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestClientAgainstServer(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	rec := aria()
	if _, err := c.StoreCharacter(ctx, wire.StoreCharacterRequest{
		Character: rec.Wire(), Signature: f.sign(t, rec.SignedFields()),
	}); err != nil {
		t.Fatalf("StoreCharacter() error: %v", err)
	}
	_, err := c.StoreCharacter(ctx, wire.StoreCharacterRequest{
		Character: rec.Wire(), Signature: f.sign(t, rec.SignedFields()),
	})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "DuplicateId" || apiErr.Status != http.StatusConflict {
		t.Fatalf("duplicate store error = %v", err)
	}

	chars, err := c.ListCharacters(ctx)
	if err != nil || len(chars) != 1 || chars[0].ID != "42" {
		t.Fatalf("ListCharacters() = %+v, %v", chars, err)
	}
	if _, err := c.GetCharacter(ctx, "9"); !client.IsNotFound(err) {
		t.Errorf("GetCharacter(9) error = %v, want not found", err)
	}
	proof, err := c.ProveBase(ctx, wire.ProveRequest{CommitmentHash: "5", Timestamp: "1001", CharacterID: "42"})
	if err != nil {
		t.Fatalf("ProveBase() error: %v", err)
	}
	u := wire.MemoryUpdate{ID: "1", CharacterID: "42", CommitmentHash: "5", Timestamp: "1001", Proof: proof}
	entry, _, _ := ledger.EntryFromUpdate(u)
	if _, err := c.AppendMemory(ctx, wire.AppendMemoryRequest{Update: u, Signature: f.sign(t, entry.SignedFields())}); err != nil {
		t.Fatalf("AppendMemory() error: %v", err)
	}
	v, err := c.VerifyEvents(ctx)
	if err != nil || !v.Valid || v.Records != 3 {
		t.Errorf("VerifyEvents() = %+v, %v", v, err)
	}
}
