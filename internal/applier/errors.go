package applier

import (
	"errors"
	"fmt"

	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
)

// Code classifies a rejected transaction.
type Code string

const (
	CodeUnauthorized        Code = "Unauthorized"
	CodeInvalidProofChain   Code = "InvalidProofChain"
	CodeDuplicateID         Code = "DuplicateId"
	CodeUnknownCharacter    Code = "UnknownCharacter"
	CodeInsufficientBalance Code = "InsufficientBalance"
	CodeVerificationTimeout Code = "VerificationTimeout"
	CodeNotFound            Code = "NotFound"
	CodeInvalidRequest      Code = "InvalidRequest"
	CodeInternal            Code = "Internal"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its code.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidProofChain   = errors.New("invalid proof chain")
	ErrDuplicateID         = errors.New("duplicate id")
	ErrUnknownCharacter    = errors.New("unknown character")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrVerificationTimeout = errors.New("verification timeout")
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternal            = errors.New("internal error")
)

var sentinels = map[Code]error{
	CodeUnauthorized:        ErrUnauthorized,
	CodeInvalidProofChain:   ErrInvalidProofChain,
	CodeDuplicateID:         ErrDuplicateID,
	CodeUnknownCharacter:    ErrUnknownCharacter,
	CodeInsufficientBalance: ErrInsufficientBalance,
	CodeVerificationTimeout: ErrVerificationTimeout,
	CodeNotFound:            ErrNotFound,
	CodeInvalidRequest:      ErrInvalidRequest,
	CodeInternal:            ErrInternal,
}

// Error is the typed rejection returned by every Applier operation.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel registered for e.Code.
func (e *Error) Is(target error) bool {
	return sentinels[e.Code] == target
}

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func reject(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// classify maps ledger and proof-chain failures onto codes.
func classify(err error) *Error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, ledger.ErrDuplicateID):
		return reject(CodeDuplicateID, err)
	case errors.Is(err, ledger.ErrUnknownCharacter):
		return reject(CodeUnknownCharacter, err)
	case errors.Is(err, ledger.ErrNotFound):
		return reject(CodeNotFound, err)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return reject(CodeInsufficientBalance, err)
	case errors.Is(err, ledger.ErrNonMonotonic),
		errors.Is(err, proofchain.ErrMalformedProof),
		errors.Is(err, proofchain.ErrInvalidSeal),
		errors.Is(err, proofchain.ErrInvariantViolation):
		return reject(CodeInvalidProofChain, err)
	case errors.Is(err, ledger.ErrInvalidRecord), errors.Is(err, ledger.ErrOverflow):
		return reject(CodeInvalidRequest, err)
	}
	return reject(CodeInternal, err)
}
