package applier

import (
	"time"

	"github.com/jmerrifield20/memoryledger/internal/signature"
)

// DefaultTimeout bounds signature and proof verification of one transaction.
const DefaultTimeout = 10 * time.Second

// Observer is called once per transaction with its outcome. code is empty on
// success.
type Observer func(op Op, code Code, elapsed time.Duration)

// Addresses separate transaction hashes of different deployments.
// Character and Memory default to Contract when empty.
type Addresses struct {
	Contract  string
	Character string
	Memory    string
}

// Option configures an Applier.
type Option func(*Applier)

// WithClock sets the source of the verification time bound and of
// lastUpdateTime. Timestamps are Unix milliseconds.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) { a.now = now }
}

// WithTimeout bounds verification. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(a *Applier) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithSignatureVerifier replaces the Ed25519 verifier.
func WithSignatureVerifier(v signature.Verifier) Option {
	return func(a *Applier) { a.sigs = v }
}

// WithObserver registers a callback for transaction outcomes.
func WithObserver(o Observer) Option {
	return func(a *Applier) { a.observe = o }
}

// WithAddresses sets the addresses mixed into transaction hashes.
func WithAddresses(addr Addresses) Option {
	return func(a *Applier) {
		if addr.Character == "" {
			addr.Character = addr.Contract
		}
		if addr.Memory == "" {
			addr.Memory = addr.Contract
		}
		a.addr = addr
	}
}
