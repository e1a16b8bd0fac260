// Package api is the HTTP surface of ledgerd.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/internal/eventlog"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"go.uber.org/zap"
)

// Ledger is the transaction applier as the handlers see it.
// *applier.Applier implements it.
type Ledger interface {
	StoreCharacter(ctx context.Context, req applier.StoreCharacter) (*applier.Receipt, error)
	AppendMemory(ctx context.Context, req applier.AppendMemory) (*applier.Receipt, error)
	TransferValue(ctx context.Context, req applier.TransferValue) (*applier.Receipt, error)
	Deposit(ctx context.Context, req applier.Deposit) (*applier.Receipt, error)
	ChangeOwner(ctx context.Context, req applier.ChangeOwner) (*applier.Receipt, error)

	Overview() ledger.Overview
	Character(id field.Element) (ledger.CharacterRecord, error)
	Characters() []ledger.CharacterRecord
	Memories(characterID field.Element) ([]ledger.MemoryEntry, error)
	Log() eventlog.Log
}

// LedgerHandler serves the ledger state and accepts signed operations.
type LedgerHandler struct {
	ledger Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/ledger", h.Overview)

	ch := rg.Group("/characters")
	{
		ch.POST("", h.StoreCharacter)
		ch.GET("", h.ListCharacters)
		ch.GET("/:id", h.GetCharacter)
		ch.POST("/:id/memories", h.AppendMemory)
		ch.GET("/:id/memories", h.ListMemories)
	}

	rg.POST("/transfers", h.Transfer)
	rg.POST("/deposits", h.Deposit)
	rg.POST("/owner", h.ChangeOwner)
}

// Overview handles GET /ledger.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()
	out := h.ledger.Overview().Wire()

	n, err := h.ledger.Log().Len(ctx)
	if err != nil {
		h.logger.Error("event log Len", zap.Error(err))
		abort(c, err)
		return
	}
	root, err := h.ledger.Log().Root(ctx)
	if err != nil {
		h.logger.Error("event log Root", zap.Error(err))
		abort(c, err)
		return
	}
	out.EventCount, out.EventRoot = n, root
	c.JSON(http.StatusOK, out)
}

// StoreCharacter handles POST /characters.
func (h *LedgerHandler) StoreCharacter(c *gin.Context) {
	var req wire.StoreCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := ledger.CharacterFromWire(req.Character)
	if err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.ledger.StoreCharacter(c.Request.Context(), applier.StoreCharacter{Record: rec, Signature: signature.Lenient(req.Signature)})
	h.respond(c, http.StatusCreated, r, err)
}

// ListCharacters handles GET /characters.
func (h *LedgerHandler) ListCharacters(c *gin.Context) {
	recs := h.ledger.Characters()
	out := make([]wire.Character, len(recs))
	for i, r := range recs {
		out[i] = r.Wire()
	}
	c.JSON(http.StatusOK, gin.H{"characters": out})
}

// GetCharacter handles GET /characters/:id.
func (h *LedgerHandler) GetCharacter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := h.ledger.Character(id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.Wire())
}

// AppendMemory handles POST /characters/:id/memories. The update may omit
// characterId; when present it must match the path. Signatures and proofs
// that do not decode are passed on so the applier rejects them in order.
func (h *LedgerHandler) AppendMemory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req wire.AppendMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Update.CharacterID == "" {
		req.Update.CharacterID = id.String()
	}
	entry, proofErr, err := ledger.EntryFromUpdate(req.Update)
	if err != nil {
		badRequest(c, err)
		return
	}
	if !entry.CharacterID.Equal(id) {
		badRequest(c, fmt.Errorf("update is for character %s, path names %s", entry.CharacterID, id))
		return
	}

	r, err := h.ledger.AppendMemory(c.Request.Context(), applier.AppendMemory{
		CharacterID: id,
		Entry:       entry,
		ProofErr:    proofErr,
		Signature:   signature.Lenient(req.Signature),
	})
	h.respond(c, http.StatusCreated, r, err)
}

// ListMemories handles GET /characters/:id/memories.
func (h *LedgerHandler) ListMemories(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.ledger.Memories(id)
	if err != nil {
		abort(c, err)
		return
	}
	out := make([]wire.Memory, len(entries))
	for i, e := range entries {
		out[i] = e.Wire()
	}
	c.JSON(http.StatusOK, gin.H{"memories": out})
}

// Transfer handles POST /transfers.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req wire.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	to, err := signature.ParsePublicKey(req.To)
	if err != nil {
		badRequest(c, fmt.Errorf("to: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.ledger.TransferValue(c.Request.Context(), applier.TransferValue{To: to, Amount: amount, Signature: signature.Lenient(req.Signature)})
	h.respond(c, http.StatusOK, r, err)
}

// Deposit handles POST /deposits.
func (h *LedgerHandler) Deposit(c *gin.Context) {
	var req wire.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.ledger.Deposit(c.Request.Context(), applier.Deposit{Amount: amount, Signature: signature.Lenient(req.Signature)})
	h.respond(c, http.StatusOK, r, err)
}

// ChangeOwner handles POST /owner.
func (h *LedgerHandler) ChangeOwner(c *gin.Context) {
	var req wire.ChangeOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	owner, err := signature.ParsePublicKey(req.NewOwner)
	if err != nil {
		badRequest(c, fmt.Errorf("newOwner: %w", err))
		return
	}

	r, err := h.ledger.ChangeOwner(c.Request.Context(), applier.ChangeOwner{NewOwner: owner, Signature: signature.Lenient(req.Signature)})
	h.respond(c, http.StatusOK, r, err)
}

func (h *LedgerHandler) respond(c *gin.Context, status int, r *applier.Receipt, err error) {
	if err != nil {
		if applier.CodeOf(err) == applier.CodeInternal {
			h.logger.Error("transaction failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		abort(c, err)
		return
	}
	c.JSON(status, receipt(r))
}

func receipt(r *applier.Receipt) wire.Receipt {
	out := wire.Receipt{
		TransactionResult: wire.TransactionResult{TransactionHash: r.TransactionHash, Success: true},
		Ledger:            r.Ledger.Wire(),
	}
	if r.Event != nil {
		out.Sequence = r.Event.Sequence
		out.Ledger.EventCount = r.Event.Sequence + 1
		out.Ledger.EventRoot = r.Event.Hash
	}
	return out
}

func pathID(c *gin.Context) (field.Element, bool) {
	id, err := field.FromDecimal(c.Param("id"))
	if err != nil {
		badRequest(c, fmt.Errorf("id: %w", err))
		return field.Element{}, false
	}
	return id, true
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("amount is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: want an unsigned 64-bit decimal", s)
	}
	return n, nil
}
