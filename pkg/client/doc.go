// Package client is the Go SDK for ledgerd.
//
// Mutations must be signed by the ledger owner before they are submitted.
// The tuples to sign are fixed per operation:
//
//	storeCharacter  [id, name, memoryCommitment, lastUpdated]
//	appendMemory    [entryId, characterId, commitmentHash, timestamp]
//	transfer        [toHi, toLo, amount, nonce]
//	deposit         [amount, nonce]
//	changeOwner     [newHi, newLo, nonce]
//
// where nonce is the current value reported by Ledger.
//
// # Usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	led, err := c.Ledger(ctx)
//
// Failures to reach the server are returned as *TransportError; rejections
// are returned as *APIError carrying the server's error code:
//
//	_, err = c.AppendMemory(ctx, req)
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == "InvalidProofChain" {
//	    // the proof does not extend the latest entry
//	}
package client
