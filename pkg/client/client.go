package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/memoryledger/pkg/wire"
)

// TransportError reports a failure to reach ledgerd or to read its response.
// It is the only error class worth retrying blindly.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from ledgerd.
type APIError struct {
	Status  int
	Code    string // applier error code, e.g. "InvalidProofChain"
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledgerd %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("ledgerd %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from ledgerd.
func IsNotFound(err error) bool {
	var e *APIError
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

// Retryable reports whether repeating the request may succeed: transport
// failures and 5xx responses other than 501.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ae *APIError
	return errors.As(err, &ae) && ae.Status >= 500 && ae.Status != http.StatusNotImplemented
}

// Client talks to one ledgerd instance.
type Client struct {
	base       string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client for the ledgerd at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Ledger returns the ledger-wide counters and the event log tip.
func (c *Client) Ledger(ctx context.Context) (*wire.Ledger, error) {
	var out wire.Ledger
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StoreCharacter submits an owner-signed character.
func (c *Client) StoreCharacter(ctx context.Context, req wire.StoreCharacterRequest) (*wire.Receipt, error) {
	return c.mutate(ctx, "/api/v1/characters", req)
}

// GetCharacter fetches one character by its decimal id.
func (c *Client) GetCharacter(ctx context.Context, id string) (*wire.Character, error) {
	var out wire.Character
	if err := c.call(ctx, http.MethodGet, "/api/v1/characters/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCharacters fetches every character in insertion order.
func (c *Client) ListCharacters(ctx context.Context) ([]wire.Character, error) {
	var out struct {
		Characters []wire.Character `json:"characters"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/characters", nil, &out); err != nil {
		return nil, err
	}
	return out.Characters, nil
}

// AppendMemory submits an owner-signed memory entry for the character named
// in req.Update.CharacterID.
func (c *Client) AppendMemory(ctx context.Context, req wire.AppendMemoryRequest) (*wire.Receipt, error) {
	return c.mutate(ctx, "/api/v1/characters/"+url.PathEscape(req.Update.CharacterID)+"/memories", req)
}

// ListMemories fetches the memory log of a character.
func (c *Client) ListMemories(ctx context.Context, characterID string) ([]wire.Memory, error) {
	var out struct {
		Memories []wire.Memory `json:"memories"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/characters/"+url.PathEscape(characterID)+"/memories", nil, &out); err != nil {
		return nil, err
	}
	return out.Memories, nil
}

// Transfer submits an owner-signed value transfer.
func (c *Client) Transfer(ctx context.Context, req wire.TransferRequest) (*wire.Receipt, error) {
	return c.mutate(ctx, "/api/v1/transfers", req)
}

// Deposit submits an owner-signed deposit.
func (c *Client) Deposit(ctx context.Context, req wire.DepositRequest) (*wire.Receipt, error) {
	return c.mutate(ctx, "/api/v1/deposits", req)
}

// ChangeOwner submits an owner change signed by the current owner.
func (c *Client) ChangeOwner(ctx context.Context, req wire.ChangeOwnerRequest) (*wire.Receipt, error) {
	return c.mutate(ctx, "/api/v1/owner", req)
}

// Events fetches up to limit events starting at sequence from.
func (c *Client) Events(ctx context.Context, from, limit int) (*wire.EventPage, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	q.Set("limit", strconv.Itoa(limit))
	var out wire.EventPage
	if err := c.call(ctx, http.MethodGet, "/api/v1/events?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyEvents asks ledgerd to walk its event log hash chain.
func (c *Client) VerifyEvents(ctx context.Context) (*wire.Verification, error) {
	var out wire.Verification
	if err := c.call(ctx, http.MethodGet, "/api/v1/events/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProveBase asks the prover endpoint for a base proof.
func (c *Client) ProveBase(ctx context.Context, req wire.ProveRequest) (string, error) {
	return c.prove(ctx, "/api/v1/prover/base", req)
}

// ProveExtension asks the prover endpoint for a proof extending
// req.Previous.
func (c *Client) ProveExtension(ctx context.Context, req wire.ProveRequest) (string, error) {
	return c.prove(ctx, "/api/v1/prover/extension", req)
}

func (c *Client) prove(ctx context.Context, path string, req wire.ProveRequest) (string, error) {
	var out wire.ProveResponse
	if err := c.call(ctx, http.MethodPost, path, req, &out); err != nil {
		return "", err
	}
	return out.Proof, nil
}

func (c *Client) mutate(ctx context.Context, path string, body any) (*wire.Receipt, error) {
	var out wire.Receipt
	if err := c.call(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call sends body as JSON and decodes a 2xx response into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes req and converts non-2xx responses into *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	op := req.Method + " " + req.URL.Path
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var e wire.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Error
		}
		return nil, apiErr
	}
	return body, nil
}
