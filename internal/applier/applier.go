// Package applier applies owner-signed operations to a ledger atomically.
//
// Every mutation runs the same sequence: verify the owner signature over the
// operation's tuple, verify the memory proof chain where the operation
// carries one, validate the ledger transition, append its event, then commit.
// A failure at any step leaves the ledger unchanged. Writers are serialized;
// readers observe the state before or after a transaction, never between.
package applier

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/memoryledger/internal/eventlog"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// ProofVerifier checks memory proofs. *proofchain.Verifier implements it.
type ProofVerifier interface {
	VerifyBase(in proofchain.Input, p *proofchain.Proof, bound field.Element) error
	VerifyExtension(in proofchain.Input, p, prev *proofchain.Proof) error
}

// Applier is the single writer of a ledger.State and its event log.
type Applier struct {
	mu    sync.RWMutex
	state *ledger.State
	log   eventlog.Log

	sigs    signature.Verifier
	proofs  ProofVerifier
	now     func() time.Time
	timeout time.Duration
	addr    Addresses
	observe Observer
}

// New creates an Applier owning state. Events are appended to log.
func New(state *ledger.State, log eventlog.Log, proofs ProofVerifier, opts ...Option) *Applier {
	a := &Applier{
		state:   state,
		log:     log,
		sigs:    signature.Ed25519Verifier{},
		proofs:  proofs,
		now:     time.Now,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// StoreCharacter applies a signed character insertion.
func (a *Applier) StoreCharacter(ctx context.Context, req StoreCharacter) (*Receipt, error) {
	return a.run(ctx, OpStoreCharacter, func(ctx context.Context, now field.Element) (*Receipt, error) {
		fields := req.Record.SignedFields()
		if err := a.verify(ctx, a.checkSignature(fields, req.Signature), nil); err != nil {
			return nil, err
		}
		tr, err := a.state.StoreCharacter(req.Record, now)
		if err != nil {
			return nil, err
		}
		return a.commit(ctx, OpStoreCharacter, a.addr.Character, fields, req.Signature, tr)
	})
}

// AppendMemory applies a signed memory entry after checking its proof
// against the character's latest entry.
func (a *Applier) AppendMemory(ctx context.Context, req AppendMemory) (*Receipt, error) {
	return a.run(ctx, OpAppendMemory, func(ctx context.Context, now field.Element) (*Receipt, error) {
		entry := req.Entry
		fields := entry.SignedFields()

		in := entry.PublicInput()
		var checkProof func() error
		if req.ProofErr != nil {
			checkProof = func() error { return req.ProofErr }
		} else if prev, ok := a.state.LastMemory(req.CharacterID); ok {
			checkProof = func() error { return a.proofs.VerifyExtension(in, entry.Proof, prev.Proof) }
		} else {
			checkProof = func() error { return a.proofs.VerifyBase(in, entry.Proof, now) }
		}
		if err := a.verify(ctx, a.checkSignature(fields, req.Signature), checkProof); err != nil {
			return nil, err
		}

		entry.IsVerified = true
		tr, err := a.state.AppendMemory(req.CharacterID, entry, now)
		if err != nil {
			return nil, err
		}
		return a.commit(ctx, OpAppendMemory, a.addr.Memory, fields, req.Signature, tr)
	})
}

// TransferValue applies a signed transfer out of the ledger balance.
func (a *Applier) TransferValue(ctx context.Context, req TransferValue) (*Receipt, error) {
	return a.run(ctx, OpTransferValue, func(ctx context.Context, now field.Element) (*Receipt, error) {
		fields := TransferTuple(req.To, req.Amount, a.state.Nonce())
		if err := a.verify(ctx, a.checkSignature(fields, req.Signature), nil); err != nil {
			return nil, err
		}
		tr, err := a.state.TransferValue(req.To, req.Amount, now)
		if err != nil {
			return nil, err
		}
		return a.commit(ctx, OpTransferValue, a.addr.Contract, fields, req.Signature, tr)
	})
}

// Deposit applies a signed credit to the ledger balance.
func (a *Applier) Deposit(ctx context.Context, req Deposit) (*Receipt, error) {
	return a.run(ctx, OpDeposit, func(ctx context.Context, now field.Element) (*Receipt, error) {
		fields := DepositTuple(req.Amount, a.state.Nonce())
		if err := a.verify(ctx, a.checkSignature(fields, req.Signature), nil); err != nil {
			return nil, err
		}
		tr, err := a.state.Deposit(req.Amount, now)
		if err != nil {
			return nil, err
		}
		return a.commit(ctx, OpDeposit, a.addr.Contract, fields, req.Signature, tr)
	})
}

// ChangeOwner applies an owner change signed by the current owner.
func (a *Applier) ChangeOwner(ctx context.Context, req ChangeOwner) (*Receipt, error) {
	return a.run(ctx, OpChangeOwner, func(ctx context.Context, now field.Element) (*Receipt, error) {
		fields := OwnerTuple(req.NewOwner, a.state.Nonce())
		if err := a.verify(ctx, a.checkSignature(fields, req.Signature), nil); err != nil {
			return nil, err
		}
		tr, err := a.state.ChangeOwner(req.NewOwner, now)
		if err != nil {
			return nil, err
		}
		return a.commit(ctx, OpChangeOwner, a.addr.Contract, fields, req.Signature, tr)
	})
}

// run serializes fn against all other writers and classifies its error.
func (a *Applier) run(ctx context.Context, op Op, fn func(context.Context, field.Element) (*Receipt, error)) (*Receipt, error) {
	start := time.Now()
	r, err := func() (*Receipt, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return fn(ctx, field.New(uint64(a.now().UnixMilli())))
	}()

	var code Code
	if err != nil {
		e := classify(err)
		code, err = e.Code, e
	}
	if a.observe != nil {
		a.observe(op, code, time.Since(start))
	}
	return r, err
}

func (a *Applier) checkSignature(fields []field.Element, sig signature.Signature) func() error {
	owner := a.state.Owner()
	return func() error {
		if !a.sigs.Verify(owner, fields, sig) {
			return reject(CodeUnauthorized, errors.New("signature does not match the owner key"))
		}
		return nil
	}
}

// verify runs the signature check and the optional proof check concurrently
// and waits for both, up to the configured timeout. A signature failure takes
// precedence over a proof failure.
func (a *Applier) verify(ctx context.Context, sig, proof func() error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var sigErr, proofErr error
	var g errgroup.Group
	g.Go(func() error {
		sigErr = sig()
		return nil
	})
	if proof != nil {
		g.Go(func() error {
			proofErr = proof()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return reject(CodeVerificationTimeout, ctx.Err())
	}
	if sigErr != nil {
		return sigErr
	}
	if proofErr != nil {
		return reject(CodeInvalidProofChain, proofErr)
	}
	return nil
}

// commit appends the transition's event and then applies it. Apply cannot
// fail, so a failed append leaves the state untouched.
func (a *Applier) commit(ctx context.Context, op Op, address string, fields []field.Element, sig signature.Signature, tr *ledger.Transition) (*Receipt, error) {
	rec, err := a.log.Append(ctx, string(tr.Event.Kind), tr.Event.Subject, a.state.Owner().String(), tr.Event.Payload)
	if err != nil {
		return nil, reject(CodeInternal, fmt.Errorf("append event: %w", err))
	}
	a.state.Apply(tr)
	return &Receipt{
		Op:              op,
		TransactionHash: transactionHash(address, op, fields, sig),
		Event:           rec,
		Ledger:          a.state.Overview(),
	}, nil
}

func transactionHash(address string, op Op, fields []field.Element, sig signature.Signature) string {
	h, _ := blake2b.New256(nil)
	for _, s := range []string{address, string(op)} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	msg := signature.Message(fields)
	h.Write(msg[:])
	h.Write(sig)
	return hex.EncodeToString(h.Sum(nil))
}

// Overview returns the ledger-wide counters.
func (a *Applier) Overview() ledger.Overview {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Overview()
}

// Character returns the character with the given id.
func (a *Applier) Character(id field.Element) (ledger.CharacterRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, err := a.state.Character(id)
	if err != nil {
		return rec, classify(err)
	}
	return rec, nil
}

// Characters returns all characters in insertion order.
func (a *Applier) Characters() []ledger.CharacterRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Characters()
}

// Memories returns the memory log of a character.
func (a *Applier) Memories(characterID field.Element) ([]ledger.MemoryEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries, err := a.state.Memories(characterID)
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

// LastMemory returns the latest memory entry of a character, if any.
func (a *Applier) LastMemory(characterID field.Element) (ledger.MemoryEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.LastMemory(characterID)
}

// CreditOf returns the value transferred to k.
func (a *Applier) CreditOf(k signature.PublicKey) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.CreditOf(k)
}

// Log returns the event log the applier appends to.
func (a *Applier) Log() eventlog.Log { return a.log }
