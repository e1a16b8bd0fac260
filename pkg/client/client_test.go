package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmerrifield20/memoryledger/pkg/client"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
)

// ── Stub server ─────────────────────────────────────────────────────────

func stubLedgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/ledger", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wire.Ledger{Owner: "ab", CharacterCount: "1", Nonce: "3"})
	})

	mux.HandleFunc("POST /api/v1/characters", func(w http.ResponseWriter, r *http.Request) {
		var req wire.StoreCharacterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Signature == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(wire.ErrorResponse{Error: "signature does not match the owner key", Code: "Unauthorized"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(wire.Receipt{
			TransactionResult: wire.TransactionResult{TransactionHash: "feed", Success: true},
			Sequence:          1,
		})
	})

	mux.HandleFunc("GET /api/v1/characters/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "42" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(wire.ErrorResponse{Error: "character not found", Code: "NotFound"})
			return
		}
		json.NewEncoder(w).Encode(wire.Character{ID: "42", Name: "7", IsVerified: true})
	})

	mux.HandleFunc("POST /api/v1/characters/{id}/memories", func(w http.ResponseWriter, r *http.Request) {
		var req wire.AppendMemoryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.PathValue("id") != req.Update.CharacterID {
			t.Errorf("path id %q does not match body %q", r.PathValue("id"), req.Update.CharacterID)
		}
		json.NewEncoder(w).Encode(wire.Receipt{TransactionResult: wire.TransactionResult{TransactionHash: "beef", Success: true}})
	})

	mux.HandleFunc("GET /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from") != "1" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(wire.EventPage{
			Events: []wire.Event{{Sequence: 1, Kind: "character-stored"}, {Sequence: 2, Kind: "memory-updated"}},
			Next:   3,
		})
	})

	mux.HandleFunc("POST /api/v1/prover/base", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "prover offline", http.StatusServiceUnavailable)
	})

	return httptest.NewServer(mux)
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_invalidBase(t *testing.T) {
	if _, err := client.New("not a url"); err == nil {
		t.Error("expected error for invalid base URL")
	}
	if _, err := client.New("http://localhost:8080", client.WithTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
}

func TestLedger(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL + "/")
	led, err := c.Ledger(context.Background())
	if err != nil {
		t.Fatalf("Ledger() error: %v", err)
	}
	if led.CharacterCount != "1" || led.Nonce != "3" {
		t.Errorf("unexpected ledger: %+v", led)
	}
}

func TestStoreCharacter(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()
	c := client.MustNew(srv.URL)

	r, err := c.StoreCharacter(context.Background(), wire.StoreCharacterRequest{Signature: "ok"})
	if err != nil {
		t.Fatalf("StoreCharacter() error: %v", err)
	}
	if !r.Success || r.TransactionHash != "feed" || r.Sequence != 1 {
		t.Errorf("unexpected receipt: %+v", r)
	}

	_, err = c.StoreCharacter(context.Background(), wire.StoreCharacterRequest{Signature: "bad"})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != "Unauthorized" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
	if client.Retryable(err) {
		t.Error("a rejected signature must not be retryable")
	}
}

func TestGetCharacter_notFound(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()
	c := client.MustNew(srv.URL)

	ch, err := c.GetCharacter(context.Background(), "42")
	if err != nil || ch.Name != "7" || !ch.IsVerified {
		t.Fatalf("GetCharacter() = %+v, %v", ch, err)
	}
	if _, err := c.GetCharacter(context.Background(), "9"); !client.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAppendMemory_pathFromUpdate(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()
	c := client.MustNew(srv.URL)

	r, err := c.AppendMemory(context.Background(), wire.AppendMemoryRequest{
		Update: wire.MemoryUpdate{CharacterID: "42", CommitmentHash: "5", Timestamp: "1001"},
	})
	if err != nil || r.TransactionHash != "beef" {
		t.Fatalf("AppendMemory() = %+v, %v", r, err)
	}
}

func TestEvents(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()
	c := client.MustNew(srv.URL)

	page, err := c.Events(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 2 || page.Next != 3 {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestErrors_retryable(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.ProveBase(context.Background(), wire.ProveRequest{})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
	if apiErr.Message != "prover offline" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if !client.Retryable(err) {
		t.Error("503 should be retryable")
	}

	srv.Close()
	_, err = c.Ledger(context.Background())
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError after server shutdown, got %T: %v", err, err)
	}
	if !client.Retryable(err) {
		t.Error("transport errors should be retryable")
	}
}
