// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"time"
)

// =============================================================================
// Raw Capture Types (for Enterprise storage)
// =============================================================================

// HTTPHeaders represents HTTP headers as a map.
//
// Using a defined type provides clearer intent and allows future extension
// with helper methods if needed.
type HTTPHeaders map[string]string

// Get retrieves a header value by key (case-sensitive).
func (h HTTPHeaders) Get(key string) string {
	return h[key]
}

// Set adds or updates a header value.
func (h HTTPHeaders) Set(key, value string) {
	h[key] = value
}

// AuditableRequest contains raw request data for audit capture.
//
// This type is passed to CaptureRequest() to give Enterprise implementations
// access to the raw bytes for hashing, encryption, and storage. FOSS does
// NOT compute hashes - that's Enterprise's responsibility.
//
// # Usage
//
// Handlers create this struct with the raw request body and pass it to
// the RequestAuditor. Enterprise implementations then:
//  1. Compute content_hash = SHA256(Body)
//  2. Encrypt the body if required
//  3. Store to immutable storage (GCS, QLDB, etc.)
//
// Example:
//
//	req := &AuditableRequest{
//	    Method:    "POST",
//	    Path:      "/v1/vault/withdraw",
//	    Headers:   HTTPHeaders{"Content-Type": "application/json"},
//	    Body:      rawRequestBytes,
//	    UserID:    authInfo.UserID,
//	    Actor:     actor,
//	    RequestID: requestID,
//	    Timestamp: time.Now().UTC(),
//	}
//	auditID, err := auditor.CaptureRequest(ctx, req)
type AuditableRequest struct {
	// Method is the HTTP method (GET, POST, etc.)
	Method string

	// Path is the request path (e.g., "/v1/vault/deposit")
	Path string

	// Headers contains the HTTP request headers.
	// Sensitive headers (Authorization) should be redacted by caller.
	Headers HTTPHeaders

	// Body is the raw request body bytes.
	// This is what Enterprise will hash and potentially encrypt.
	Body []byte

	// UserID identifies who made the request.
	// Extracted from AuthInfo by the handler.
	UserID string

	// Actor is the acting ledger address (if applicable).
	Actor string

	// RequestID is the unique identifier for this request.
	RequestID string

	// Timestamp is when the request was received (always UTC).
	Timestamp time.Time
}

// AuditableResponse contains raw response data for audit capture.
//
// This type is passed to CaptureResponse() to complete the audit record.
// The auditID from CaptureRequest() links the request and response together.
//
// Example:
//
//	resp := &AuditableResponse{
//	    StatusCode: 200,
//	    Headers:    HTTPHeaders{"Content-Type": "application/json"},
//	    Body:       receiptBytes,
//	    Timestamp:  time.Now().UTC(),
//	}
//	err := auditor.CaptureResponse(ctx, auditID, resp)
type AuditableResponse struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Headers contains the HTTP response headers.
	Headers HTTPHeaders

	// Body is the raw response body bytes.
	Body []byte

	// Timestamp is when the response was sent (always UTC).
	Timestamp time.Time
}

// =============================================================================
// Hash Chain Types (for FOSS local use)
// =============================================================================

// HashChainEntry represents a single entry in a tamper-evident audit chain.
//
// Hash chains provide cryptographic proof of the order and integrity of
// events. Each entry's hash incorporates the previous entry's hash, creating
// a chain that detects any modification to historical records. For the
// vault, the natural chain is the event journal: one entry per committed
// transition, in sequence order.
//
// # Chain Structure
//
// Entry N hash = SHA256(Entry N-1 hash + Entry N content)
//
// This ensures:
//   - Insertion detection: Adding entries breaks the chain
//   - Deletion detection: Removing entries breaks the chain
//   - Modification detection: Changing entries breaks the chain
//
// Example:
//
//	entry := HashChainEntry{
//	    ChainID:      "journal",
//	    SequenceNum:  5,
//	    ContentHash:  "abc123...",
//	    PreviousHash: "def456...",
//	    ChainHash:    "ghi789...",
//	    Timestamp:    time.Now().UTC(),
//	    ContentType:  "transition",
//	    Metadata: NewMetadata().
//	        Set("user_id", "alice").
//	        Set("seq", receipt.Seq),
//	}
type HashChainEntry struct {
	// ChainID identifies the chain this entry belongs to.
	// The vault uses "journal" for the transition chain; per-holder
	// chains use the holder address.
	ChainID string

	// SequenceNum is the position in the chain (1-indexed).
	// Used to verify chain completeness and ordering.
	SequenceNum int

	// ContentHash is the hash of the content being recorded.
	// For transitions: SHA256(marshalled receipt)
	// For requests: SHA256(request body)
	ContentHash string

	// PreviousHash is the ChainHash of the preceding entry.
	// Empty string for the first entry in a chain (SequenceNum == 1).
	PreviousHash string

	// ChainHash is the cumulative hash incorporating all previous entries.
	// ChainHash = SHA256(PreviousHash + ContentHash)
	// This is the value stored and used for verification.
	ChainHash string

	// Timestamp is when this entry was created (always UTC).
	Timestamp time.Time

	// ContentType describes what kind of content was hashed.
	// Examples: "transition", "request", "response"
	ContentType string

	// Metadata contains additional context about the entry.
	// May include: user_id, request_id, seq, etc.
	//
	// Use NewMetadata() and type-safe accessors:
	//
	//   Metadata: NewMetadata().
	//       Set("user_id", userID).
	//       Set("request_id", requestID),
	Metadata Metadata
}

// ChainVerificationResult contains the outcome of hash chain verification.
//
// Example:
//
//	result, _ := auditor.VerifyChain(ctx, "journal")
//	if !result.IsValid {
//	    log.Error("chain integrity violation",
//	        "break_point", result.BreakPoint,
//	        "expected", result.ExpectedHash,
//	        "actual", result.ActualHash,
//	    )
//	}
type ChainVerificationResult struct {
	// IsValid is true if the entire chain is intact.
	IsValid bool

	// TotalEntries is the number of entries verified.
	TotalEntries int

	// BreakPoint is the sequence number where integrity failed.
	// Only meaningful when IsValid is false.
	// Zero means the chain is valid or empty.
	BreakPoint int

	// ExpectedHash is what the hash should be at BreakPoint.
	ExpectedHash string

	// ActualHash is what the hash actually was at BreakPoint.
	ActualHash string

	// Message provides human-readable verification status.
	Message string
}

// =============================================================================
// RequestAuditor Interface
// =============================================================================

// RequestAuditor provides tamper-evident audit logging via hash chains.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopRequestAuditor accepts all entries and always reports
// chains as valid. This allows the local vault to function without
// cryptographic audit infrastructure; durability still comes from the
// journal itself.
//
// # Enterprise Implementation
//
// Enterprise versions implement persistent hash chains stored in:
//   - Append-only databases (e.g., Amazon QLDB)
//   - Immutable storage (e.g., S3 Object Lock)
//   - Blockchain-based ledgers
//   - Hardware security modules (HSMs)
//
// Example enterprise implementation:
//
//	type QLDBRequestAuditor struct {
//	    ledger *qldb.Driver
//	}
//
//	func (a *QLDBRequestAuditor) RecordEntry(ctx context.Context, entry HashChainEntry) error {
//	    lastHash, err := a.getLastHash(ctx, entry.ChainID)
//	    if err != nil {
//	        return err
//	    }
//	    if entry.PreviousHash != lastHash {
//	        return errors.New("chain continuity violation")
//	    }
//	    return a.ledger.Execute(ctx, func(txn qldb.Transaction) error {
//	        return txn.Insert("audit_chain", entry)
//	    })
//	}
//
// # Usage
//
// Mutating handlers capture the raw request on entry and the raw response
// on exit:
//
//	auditID, _ := auditor.CaptureRequest(ctx, &AuditableRequest{
//	    Method:    c.Request.Method,
//	    Path:      c.Request.URL.Path,
//	    Body:      rawBody,
//	    UserID:    userID,
//	    Actor:     actor,
//	    Timestamp: time.Now().UTC(),
//	})
//	// ... apply transition ...
//	_ = auditor.CaptureResponse(ctx, auditID, &AuditableResponse{
//	    StatusCode: status,
//	    Body:       respBody,
//	    Timestamp:  time.Now().UTC(),
//	})
//
// # Regulatory Compliance
//
// Hash chains support:
//   - SOX: Internal controls over financial reporting
//   - GDPR: Accountability and records of processing
//   - PCI DSS: Logging and monitoring (Requirement 10)
//
// # Limitations
//
//   - Cannot prevent real-time tampering (only detect after the fact)
//   - Chain verification requires all entries (no partial verification)
//   - Storage grows linearly with entries
//
// # Assumptions
//
//   - Clock synchronization across nodes (for timestamp ordering)
//   - SHA256 is collision-resistant (standard assumption)
//   - Enterprise storage is truly append-only
type RequestAuditor interface {
	// CaptureRequest records the raw request for audit purposes.
	//
	// Called at the START of request processing with the raw request
	// body. Enterprise implementations receive the raw bytes to hash,
	// optionally encrypt, and store immutably.
	//
	// Returns an auditID that must be passed to CaptureResponse to link
	// them. NopRequestAuditor returns "".
	//
	// The request body should be read before calling (use
	// io.TeeReader or gin's raw body accessors); sensitive headers are
	// redacted by the caller.
	//
	// Thread-safe: may be called concurrently.
	CaptureRequest(ctx context.Context, req *AuditableRequest) (auditID string, err error)

	// CaptureResponse records the raw response for audit purposes.
	//
	// Called at the END of request processing with the raw response
	// body. The auditID links this response to its corresponding
	// request.
	//
	// Thread-safe: may be called concurrently.
	CaptureResponse(ctx context.Context, auditID string, resp *AuditableResponse) error

	// RecordEntry adds a new entry to a hash chain.
	//
	// Persists an audit entry and updates the chain hash.
	// Implementations should verify chain continuity before accepting
	// the entry: PreviousHash must equal the ChainHash of the last
	// recorded entry for the same ChainID.
	//
	// Entries cannot be modified after recording. Entries for the same
	// chain should be serialized by the caller to maintain order; the
	// vault's single-writer commit path provides this for the journal
	// chain.
	//
	// Thread-safe: may be called concurrently across chains.
	RecordEntry(ctx context.Context, entry HashChainEntry) error

	// GetLastEntry retrieves the most recent entry for a chain.
	//
	// Returns the last recorded entry, which is needed to compute
	// PreviousHash for the next entry:
	//
	//   lastEntry, err := auditor.GetLastEntry(ctx, "journal")
	//   if lastEntry != nil {
	//       newEntry.PreviousHash = lastEntry.ChainHash
	//       newEntry.SequenceNum = lastEntry.SequenceNum + 1
	//   } else {
	//       newEntry.PreviousHash = ""
	//       newEntry.SequenceNum = 1
	//   }
	//
	// Returns nil (not an error) for chains with no entries.
	//
	// Thread-safe: may be called concurrently.
	GetLastEntry(ctx context.Context, chainID string) (*HashChainEntry, error)

	// VerifyChain validates the integrity of a chain.
	//
	// Retrieves all entries for the chain and verifies that each
	// entry's ChainHash correctly incorporates the previous entry's
	// hash. Empty chains are considered valid. Verification loads all
	// entries and may be slow for long chains.
	//
	// Thread-safe: may be called concurrently.
	VerifyChain(ctx context.Context, chainID string) (*ChainVerificationResult, error)

	// GetChainLength returns the number of entries in a chain.
	//
	// Returns the count without loading the entries. Zero for
	// non-existent chains. Does not verify integrity.
	//
	// Thread-safe: may be called concurrently.
	GetChainLength(ctx context.Context, chainID string) (int, error)
}

// =============================================================================
// No-Op Implementation
// =============================================================================

// NopRequestAuditor is the default auditor for open source.
//
// It accepts all operations without persisting anything. This allows
// the vault to function without cryptographic audit infrastructure.
// Enterprise implementations replace this with actual storage.
//
// Thread-safe: This implementation has no mutable state (discards everything).
//
// Example:
//
//	auditor := &NopRequestAuditor{}
//	auditID, _ := auditor.CaptureRequest(ctx, req)
//	// auditID == "" (no tracking)
//	auditor.CaptureResponse(ctx, auditID, resp)
//	// No-op, nothing stored
type NopRequestAuditor struct{}

// CaptureRequest accepts the request without storing it.
//
// Always succeeds and returns an empty auditID. This is intentional for
// local deployments without audit requirements.
func (a *NopRequestAuditor) CaptureRequest(_ context.Context, _ *AuditableRequest) (string, error) {
	return "", nil
}

// CaptureResponse accepts the response without storing it.
//
// Always succeeds without storing anything.
func (a *NopRequestAuditor) CaptureResponse(_ context.Context, _ string, _ *AuditableResponse) error {
	return nil
}

// RecordEntry accepts the entry without persisting it.
//
// Always succeeds. No tamper detection capability is provided.
func (a *NopRequestAuditor) RecordEntry(_ context.Context, _ HashChainEntry) error {
	return nil
}

// GetLastEntry returns nil, indicating an empty chain.
func (a *NopRequestAuditor) GetLastEntry(_ context.Context, _ string) (*HashChainEntry, error) {
	return nil, nil
}

// VerifyChain always returns valid.
//
// Returns a valid result with zero entries since nothing is tracked.
func (a *NopRequestAuditor) VerifyChain(_ context.Context, _ string) (*ChainVerificationResult, error) {
	return &ChainVerificationResult{
		IsValid:      true,
		TotalEntries: 0,
		Message:      "no audit entries (NopRequestAuditor)",
	}, nil
}

// GetChainLength always returns zero.
func (a *NopRequestAuditor) GetChainLength(_ context.Context, _ string) (int, error) {
	return 0, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

// Compile-time interface compliance check.
var _ RequestAuditor = (*NopRequestAuditor)(nil)
