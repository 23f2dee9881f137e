package codec

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	metadataKeyEncoding         = "encoding"
	metadataKeyEncodingOriginal = "encoding-original"
	metadataKeyIdentifier       = "external-payload-id"
	// DefaultSentinelEncoding marks a payload as having been externalized
	// by this codec. A reverse pass on a payload carrying any other
	// encoding value passes it through unchanged.
	DefaultSentinelEncoding = "external/batched-v1"
)

// registration is what Register captures during the inbound walk: either
// a payload that turned out not to be sentinel-encoded (passthrough) or
// one awaiting a batched external read, keyed by the identifier the
// outbound pass assigned it.
type registration struct {
	passthrough []byte
	tenant      string
	externalID  string
	shell       *payload
}

// BatchingCodec is the reference implementation of C4 (C5): it buffers
// outbound transforms and flushes them as a single external write per
// tenant at Finish, and on the inbound path defers each payload's result
// until a single external read per tenant resolves every registered
// payload at once, inside Finish.
//
// An instance is single-call-scoped: the surrounding pipeline must give
// each call its own instance, or reuse one only after Finish has returned
// for every scope it opened (see Init/Finish below).
type BatchingCodec struct {
	Store            ExternalStore
	SentinelEncoding string

	mu           sync.Mutex
	cond         *sync.Cond
	outboundOpen bool
	outboundBuf  []outboundEntry

	inboundOpen bool
	nextToken   uint64
	pending     map[string]*registration
	resolved    map[string]pendingIOResult
}

type pendingIOResult struct {
	data []byte
	err  error
}

type outboundEntry struct {
	record StoreRecord
	tenant string
}

func (c *BatchingCodec) sentinel() string {
	if c.SentinelEncoding != "" {
		return c.SentinelEncoding
	}
	return DefaultSentinelEncoding
}

// Defers reports that the inbound direction's result isn't known until
// Finish(inbound) runs; the rewriter uses this to call Register/Resolve
// instead of Transform for this direction.
func (c *BatchingCodec) Defers(direction Direction) bool {
	return direction == Inbound
}

func (c *BatchingCodec) Init(_ context.Context, direction Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch direction {
	case Outbound:
		if c.outboundOpen {
			return &LifecycleError{Reason: "double Init(outbound)"}
		}
		c.outboundOpen = true
		c.outboundBuf = nil
	case Inbound:
		if c.inboundOpen {
			return &LifecycleError{Reason: "double Init(inbound)"}
		}
		c.inboundOpen = true
		c.pending = make(map[string]*registration)
		c.resolved = nil
		if c.cond == nil {
			c.cond = sync.NewCond(&c.mu)
		}
	}
	return nil
}

func (c *BatchingCodec) Transform(ctx context.Context, pctx PayloadContext, direction Direction, data []byte) ([]byte, error) {
	if direction == Outbound {
		return c.transformOutbound(pctx, data)
	}

	// The rewriter always prefers Register/Resolve for this direction
	// (Defers(Inbound) is true); this path only serves a caller that
	// invokes Transform directly. It blocks until Finish(inbound) settles
	// the registration it makes here, so the caller must arrange for
	// Finish to run on another goroutine after this call has started.
	token, err := c.Register(ctx, pctx, direction, data)
	if err != nil {
		return nil, err
	}
	return c.awaitResolved(token)
}

func (c *BatchingCodec) transformOutbound(pctx PayloadContext, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.outboundOpen {
		return nil, &LifecycleError{Reason: "Transform(outbound) outside an open scope"}
	}

	p, err := parsePayload(data)
	if err != nil {
		return nil, &Error{Op: "Transform(outbound)", Err: err}
	}

	id := uuid.NewString()
	originalEncoding, hadEncoding := p.metadata[metadataKeyEncoding]

	recordMeta := make(map[string][]byte, len(p.metadata))
	for k, v := range p.metadata {
		recordMeta[k] = v
	}
	c.outboundBuf = append(c.outboundBuf, outboundEntry{
		tenant: pctx.Tenant,
		record: StoreRecord{ID: id, Data: p.data, Metadata: recordMeta},
	})

	newMeta := make(map[string][]byte, len(p.metadata)+2)
	for k, v := range p.metadata {
		newMeta[k] = v
	}
	if hadEncoding {
		newMeta[metadataKeyEncodingOriginal] = originalEncoding
	}
	newMeta[metadataKeyEncoding] = []byte(c.sentinel())
	newMeta[metadataKeyIdentifier] = []byte(id)

	out := &payload{metadata: newMeta}
	return out.marshal(), nil
}

// Register captures an inbound payload's eventual-resolution state. It
// does no I/O: it only parses the payload and records what Finish will
// need, returning a token the rewriter holds onto until Resolve.
func (c *BatchingCodec) Register(_ context.Context, pctx PayloadContext, direction Direction, data []byte) (string, error) {
	p, err := parsePayload(data)
	if err != nil {
		return "", &Error{Op: "Register", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inboundOpen {
		return "", &LifecycleError{Reason: "Register(inbound) outside an open scope"}
	}

	c.nextToken++
	token := fmt.Sprintf("t%d", c.nextToken)

	if string(p.metadata[metadataKeyEncoding]) != c.sentinel() {
		c.pending[token] = &registration{passthrough: data}
		return token, nil
	}

	idBytes, ok := p.metadata[metadataKeyIdentifier]
	if !ok {
		return "", &Error{Op: "Register", Err: fmt.Errorf("sentinel encoding present without an identifier")}
	}
	c.pending[token] = &registration{tenant: pctx.Tenant, externalID: string(idBytes), shell: p}
	return token, nil
}

// Resolve returns the settled result for a token Register issued. It must
// only be called after Finish(inbound) has returned for the scope that
// produced the token.
func (c *BatchingCodec) Resolve(_ context.Context, token string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.resolved[token]
	if !ok {
		return nil, &Error{Op: "Resolve", Err: fmt.Errorf("token %q has no settled result", token)}
	}
	return res.data, res.err
}

func (c *BatchingCodec) awaitResolved(token string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if res, ok := c.resolved[token]; ok {
			return res.data, res.err
		}
		c.cond.Wait()
	}
}

func (c *BatchingCodec) Finish(ctx context.Context, direction Direction) error {
	if direction == Outbound {
		return c.finishOutbound(ctx)
	}
	return c.finishInbound(ctx)
}

func (c *BatchingCodec) finishOutbound(ctx context.Context) error {
	c.mu.Lock()
	buf := c.outboundBuf
	c.outboundBuf = nil
	c.outboundOpen = false
	c.mu.Unlock()

	byTenant := make(map[string][]StoreRecord)
	order := make([]string, 0)
	for _, e := range buf {
		if _, seen := byTenant[e.tenant]; !seen {
			order = append(order, e.tenant)
		}
		byTenant[e.tenant] = append(byTenant[e.tenant], e.record)
	}

	for _, tenant := range order {
		if err := c.Store.WriteBatch(ctx, tenant, byTenant[tenant]); err != nil {
			return &Error{Op: "Finish(outbound)", Err: fmt.Errorf("tenant %q: %w", tenant, err)}
		}
	}
	return nil
}

func (c *BatchingCodec) finishInbound(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.inboundOpen = false
	cond := c.cond
	c.mu.Unlock()

	resolved := make(map[string]pendingIOResult, len(pending))
	byTenant := make(map[string][]string) // tenant -> external IDs
	tokensByExternalID := make(map[string][]string)

	for token, reg := range pending {
		if reg.passthrough != nil {
			resolved[token] = pendingIOResult{data: reg.passthrough}
			continue
		}
		byTenant[reg.tenant] = append(byTenant[reg.tenant], reg.externalID)
		tokensByExternalID[reg.externalID] = append(tokensByExternalID[reg.externalID], token)
	}

	var finishErr error
	for tenant, ids := range byTenant {
		fetched, err := c.Store.ReadBatch(ctx, tenant, ids)
		if err != nil {
			wrapped := &Error{Op: "Finish(inbound)", Err: fmt.Errorf("tenant %q: %w", tenant, err)}
			for _, id := range ids {
				for _, token := range tokensByExternalID[id] {
					resolved[token] = pendingIOResult{err: wrapped}
				}
			}
			finishErr = wrapped
			continue
		}
		for _, id := range ids {
			for _, token := range tokensByExternalID[id] {
				data, found := fetched[id]
				if !found {
					resolved[token] = pendingIOResult{err: &Error{Op: "Finish(inbound)", Err: fmt.Errorf("identifier %q not found", id)}}
					continue
				}
				resolved[token] = pendingIOResult{data: rebuildInboundPayload(pending[token].shell, data)}
			}
		}
	}

	c.mu.Lock()
	c.resolved = resolved
	c.mu.Unlock()
	if cond != nil {
		cond.Broadcast()
	}
	return finishErr
}

// rebuildInboundPayload restores a payload to its pre-externalization
// shape: the identifier and sentinel-encoding keys are dropped, the
// original encoding is restored from encoding-original, every other
// metadata key is kept byte-identical, and data comes from the store.
func rebuildInboundPayload(shell *payload, data []byte) []byte {
	meta := make(map[string][]byte, len(shell.metadata))
	for k, v := range shell.metadata {
		meta[k] = v
	}
	delete(meta, metadataKeyIdentifier)
	delete(meta, metadataKeyEncoding)
	if orig, ok := meta[metadataKeyEncodingOriginal]; ok {
		meta[metadataKeyEncoding] = orig
		delete(meta, metadataKeyEncodingOriginal)
	}
	out := &payload{metadata: meta, data: data}
	return out.marshal()
}
