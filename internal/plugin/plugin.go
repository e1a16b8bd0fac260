// Package plugin is the agent-facing facade over the ledger. It turns text
// character profiles and memory updates into owner-signed operations, fetches
// proofs from a prover, submits the operations and reports each outcome as a
// wire.TransactionResult. It never returns an error from an operation and
// never panics.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/internal/config"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/jmerrifield20/memoryledger/pkg/client"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Submitter applies owner-signed operations and answers reads.
// *applier.Applier implements it.
type Submitter interface {
	StoreCharacter(ctx context.Context, req applier.StoreCharacter) (*applier.Receipt, error)
	AppendMemory(ctx context.Context, req applier.AppendMemory) (*applier.Receipt, error)
	TransferValue(ctx context.Context, req applier.TransferValue) (*applier.Receipt, error)
	Deposit(ctx context.Context, req applier.Deposit) (*applier.Receipt, error)
	ChangeOwner(ctx context.Context, req applier.ChangeOwner) (*applier.Receipt, error)

	Character(id field.Element) (ledger.CharacterRecord, error)
	Memories(characterID field.Element) ([]ledger.MemoryEntry, error)
	LastMemory(characterID field.Element) (ledger.MemoryEntry, bool)
	Overview() ledger.Overview
}

// Plugin signs with the deployer key, which must be the ledger owner.
type Plugin struct {
	// mu keeps the nonce and latest-entry reads consistent with the
	// submission that depends on them.
	mu sync.Mutex

	sub    Submitter
	proofs ProofSource
	key    signature.PrivateKey
	logger *zap.Logger

	now        func() time.Time
	newID      func() uuid.UUID
	retryBase  time.Duration
	maxRetries uint64
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithProofSource replaces the remote prover at mina.prover_url.
func WithProofSource(s ProofSource) Option {
	return func(p *Plugin) { p.proofs = s }
}

// WithClock sets the source of lastUpdated and memory timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Plugin) { p.now = now }
}

// WithIDs sets the generator of memory entry ids.
func WithIDs(newID func() uuid.UUID) Option {
	return func(p *Plugin) { p.newID = newID }
}

// WithRetry sets the exponential backoff of proof generation.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(p *Plugin) {
		p.retryBase = base
		p.maxRetries = maxRetries
	}
}

// New returns a Plugin, or nil when any required setting is missing. The
// missing keys are logged.
func New(cfg *config.Config, sub Submitter, logger *zap.Logger, opts ...Option) (*Plugin, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn("plugin disabled: missing required configuration", zap.Strings("missing", missing))
		return nil, nil
	}
	if err := cfg.Mina.Validate(); err != nil {
		return nil, err
	}

	key, err := signature.ParsePrivateKey(cfg.Mina.DeployerKey)
	if err != nil {
		return nil, fmt.Errorf("mina.deployer_key: %w", err)
	}
	pub, err := signature.ParsePublicKey(cfg.Mina.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("mina.public_key: %w", err)
	}
	if key.Public() != pub {
		return nil, errors.New("mina.public_key does not belong to mina.deployer_key")
	}

	p := &Plugin{
		sub:        sub,
		key:        key,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.New,
		retryBase:  200 * time.Millisecond,
		maxRetries: 4,
	}
	for _, o := range opts {
		o(p)
	}
	if p.proofs == nil {
		c, err := client.New(cfg.Mina.ProverURL)
		if err != nil {
			return nil, fmt.Errorf("mina.prover_url: %w", err)
		}
		p.proofs = RemoteProver{Client: c}
	}

	logger.Info("plugin enabled",
		zap.String("network", cfg.Mina.Network),
		zap.String("network_url", cfg.Mina.NetworkURL),
		zap.String("contract", cfg.Mina.ContractAddress),
		zap.String("default_fee", cfg.Mina.DefaultFee),
	)
	return p, nil
}

// StoreCharacter stores a new character built from profile, with an empty
// memory commitment and lastUpdated set to the current time.
func (p *Plugin) StoreCharacter(ctx context.Context, profile Profile) wire.TransactionResult {
	rec := profile.Record()
	rec.LastUpdated = p.timestamp()

	p.mu.Lock()
	defer p.mu.Unlock()
	sig, err := signature.Sign(p.key, rec.SignedFields())
	if err != nil {
		return p.result("storeCharacter", nil, err)
	}
	r, err := p.sub.StoreCharacter(ctx, applier.StoreCharacter{Record: rec, Signature: sig})
	return p.result("storeCharacter", r, err)
}

// UpdateMemory appends a memory entry. A missing id is generated, a missing
// timestamp is the current time and a missing proof is requested from the
// proof source. A proof that does not decode is submitted as such and
// rejected by the applier.
func (p *Plugin) UpdateMemory(ctx context.Context, update wire.MemoryUpdate) wire.TransactionResult {
	entry, proofErr, err := ledger.EntryFromUpdate(update)
	if err != nil {
		return p.result("updateMemory", nil, &applier.Error{Code: applier.CodeInvalidRequest, Err: err})
	}

	if entry.ID.IsZero() {
		entry.ID = field.FromUUID(p.newID())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.timestamp()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if entry.Proof == nil && proofErr == nil {
		var prev *proofchain.Proof
		if last, ok := p.sub.LastMemory(entry.CharacterID); ok {
			prev = last.Proof
		}
		if entry.Proof, err = p.prove(ctx, entry.PublicInput(), prev); err != nil {
			return p.result("updateMemory", nil, fmt.Errorf("generate proof: %w", err))
		}
	}
	sig, err := signature.Sign(p.key, entry.SignedFields())
	if err != nil {
		return p.result("updateMemory", nil, err)
	}
	r, err := p.sub.AppendMemory(ctx, applier.AppendMemory{
		CharacterID: entry.CharacterID,
		Entry:       entry,
		ProofErr:    proofErr,
		Signature:   sig,
	})
	return p.result("updateMemory", r, err)
}

// LoadCharacter returns the character with the given decimal id, or nil.
func (p *Plugin) LoadCharacter(characterID string) *wire.Character {
	id, err := field.FromDecimal(characterID)
	if err != nil {
		p.logger.Warn("load character: invalid id", zap.String("id", characterID), zap.Error(err))
		return nil
	}
	rec, err := p.sub.Character(id)
	if err != nil {
		return nil
	}
	w := rec.Wire()
	return &w
}

// LoadMemory returns the memory log of the character with the given decimal
// id, or nil when the character does not exist.
func (p *Plugin) LoadMemory(characterID string) []wire.Memory {
	id, err := field.FromDecimal(characterID)
	if err != nil {
		p.logger.Warn("load memory: invalid id", zap.String("id", characterID), zap.Error(err))
		return nil
	}
	entries, err := p.sub.Memories(id)
	if err != nil {
		return nil
	}
	out := make([]wire.Memory, len(entries))
	for i, e := range entries {
		out[i] = e.Wire()
	}
	return out
}

// TransferTokens moves amount from the ledger balance to the hex key to.
func (p *Plugin) TransferTokens(ctx context.Context, to string, amount uint64) wire.TransactionResult {
	pk, err := signature.ParsePublicKey(to)
	if err != nil {
		return p.result("transferTokens", nil, &applier.Error{Code: applier.CodeInvalidRequest, Err: err})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sig, err := signature.Sign(p.key, applier.TransferTuple(pk, amount, p.sub.Overview().Nonce))
	if err != nil {
		return p.result("transferTokens", nil, err)
	}
	r, err := p.sub.TransferValue(ctx, applier.TransferValue{To: pk, Amount: amount, Signature: sig})
	return p.result("transferTokens", r, err)
}

// Deposit credits amount to the ledger balance.
func (p *Plugin) Deposit(ctx context.Context, amount uint64) wire.TransactionResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	sig, err := signature.Sign(p.key, applier.DepositTuple(amount, p.sub.Overview().Nonce))
	if err != nil {
		return p.result("deposit", nil, err)
	}
	r, err := p.sub.Deposit(ctx, applier.Deposit{Amount: amount, Signature: sig})
	return p.result("deposit", r, err)
}

// ChangeOwner hands the ledger to the hex key newOwner. The plugin can no
// longer authorize anything afterwards.
func (p *Plugin) ChangeOwner(ctx context.Context, newOwner string) wire.TransactionResult {
	pk, err := signature.ParsePublicKey(newOwner)
	if err != nil {
		return p.result("changeOwner", nil, &applier.Error{Code: applier.CodeInvalidRequest, Err: err})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sig, err := signature.Sign(p.key, applier.OwnerTuple(pk, p.sub.Overview().Nonce))
	if err != nil {
		return p.result("changeOwner", nil, err)
	}
	r, err := p.sub.ChangeOwner(ctx, applier.ChangeOwner{NewOwner: pk, Signature: sig})
	return p.result("changeOwner", r, err)
}

// prove asks the proof source, retrying transport failures with exponential
// backoff. Rejections are returned at once.
func (p *Plugin) prove(ctx context.Context, in proofchain.Input, prev *proofchain.Proof) (*proofchain.Proof, error) {
	b := retry.WithMaxRetries(p.maxRetries, retry.NewExponential(p.retryBase))

	var proof *proofchain.Proof
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		proof, err = p.proofs.Prove(ctx, in, prev)
		if err != nil && client.Retryable(err) {
			p.logger.Warn("proof generation failed, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

func (p *Plugin) timestamp() field.Element {
	return field.New(uint64(p.now().UnixMilli()))
}

func (p *Plugin) result(op string, r *applier.Receipt, err error) wire.TransactionResult {
	if err != nil {
		p.logger.Warn("transaction rejected",
			zap.String("op", op),
			zap.String("code", string(applier.CodeOf(err))),
			zap.Error(err),
		)
		return wire.TransactionResult{Success: false, Error: err.Error()}
	}
	p.logger.Info("transaction applied",
		zap.String("op", op),
		zap.String("tx", r.TransactionHash),
		zap.Int("seq", r.Event.Sequence),
	)
	return wire.TransactionResult{TransactionHash: r.TransactionHash, Success: true}
}
