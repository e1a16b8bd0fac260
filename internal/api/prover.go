package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"go.uber.org/zap"
)

// ProverHandler seals memory proofs with the prover key.
type ProverHandler struct {
	prover *proofchain.Prover
	now    func() time.Time
	logger *zap.Logger
}

// NewProverHandler creates a new ProverHandler. now supplies the time bound
// of base proofs.
func NewProverHandler(p *proofchain.Prover, now func() time.Time, logger *zap.Logger) *ProverHandler {
	if now == nil {
		now = time.Now
	}
	return &ProverHandler{prover: p, now: now, logger: logger}
}

// Register mounts the prover routes on the given router group.
func (h *ProverHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/prover")
	{
		p.POST("/base", h.Base)
		p.POST("/extension", h.Extension)
	}
}

// Base handles POST /prover/base.
func (h *ProverHandler) Base(c *gin.Context) {
	in, _, ok := bindProve(c, false)
	if !ok {
		return
	}
	bound := field.New(uint64(h.now().UnixMilli()))
	h.respond(c, in)(h.prover.ProveBase(in, bound))
}

// Extension handles POST /prover/extension.
func (h *ProverHandler) Extension(c *gin.Context) {
	in, prev, ok := bindProve(c, true)
	if !ok {
		return
	}
	h.respond(c, in)(h.prover.ProveExtension(in, prev))
}

func (h *ProverHandler) respond(c *gin.Context, in proofchain.Input) func(*proofchain.Proof, error) {
	return func(p *proofchain.Proof, err error) {
		if err != nil {
			h.logger.Info("proof refused",
				zap.String("character", in.CharacterID.String()),
				zap.String("hash", in.Hash.String()),
				zap.Error(err),
			)
			abort(c, &applier.Error{Code: applier.CodeInvalidProofChain, Err: err})
			return
		}
		c.JSON(http.StatusOK, wire.ProveResponse{Proof: p.Encode()})
	}
}

func bindProve(c *gin.Context, extension bool) (proofchain.Input, *proofchain.Proof, bool) {
	var req wire.ProveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return proofchain.Input{}, nil, false
	}
	var in proofchain.Input
	for _, f := range []struct {
		name string
		src  string
		dst  *field.Element
	}{
		{"commitmentHash", req.CommitmentHash, &in.Hash},
		{"timestamp", req.Timestamp, &in.Timestamp},
		{"characterId", req.CharacterID, &in.CharacterID},
	} {
		v, err := field.FromDecimal(f.src)
		if err != nil {
			badRequest(c, fmt.Errorf("%s: %w", f.name, err))
			return proofchain.Input{}, nil, false
		}
		*f.dst = v
	}
	if !extension {
		return in, nil, true
	}
	if req.Previous == "" {
		badRequest(c, errors.New("previous proof is required"))
		return proofchain.Input{}, nil, false
	}
	prev, err := proofchain.Decode(req.Previous)
	if err != nil {
		badRequest(c, fmt.Errorf("previous: %w", err))
		return proofchain.Input{}, nil, false
	}
	return in, prev, true
}
