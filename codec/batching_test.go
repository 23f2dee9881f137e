package codec

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu             sync.Mutex
	writes         int
	writesByTenant map[string]int
	reads          int
	readsByTenant  map[string]int
	blobs          map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		writesByTenant: make(map[string]int),
		readsByTenant:  make(map[string]int),
		blobs:          make(map[string][]byte),
	}
}

func (s *memStore) WriteBatch(_ context.Context, tenant string, records []StoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.writesByTenant[tenant]++
	for _, r := range records {
		s.blobs[r.ID] = r.Data
	}
	return nil
}

func (s *memStore) ReadBatch(_ context.Context, tenant string, ids []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	s.readsByTenant[tenant]++
	out := make(map[string][]byte)
	for _, id := range ids {
		if b, ok := s.blobs[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func samplePayload(encoding, data string) []byte {
	p := &payload{metadata: map[string][]byte{"encoding": []byte(encoding)}, data: []byte(data)}
	return p.marshal()
}

// TestBatchingCodec_MetadataContract exercises the Register/Resolve path
// the wire rewriter actually drives for the inbound direction (P5).
func TestBatchingCodec_MetadataContract(t *testing.T) {
	store := newMemStore()
	c := &BatchingCodec{Store: store}
	ctx := context.Background()

	require.NoError(t, c.Init(ctx, Outbound))
	out, err := c.Transform(ctx, PayloadContext{Tenant: "default"}, Outbound, samplePayload("json/plain", "hello"))
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, Outbound))

	p, err := parsePayload(out)
	require.NoError(t, err)
	require.Equal(t, DefaultSentinelEncoding, string(p.metadata["encoding"]))
	require.Equal(t, "json/plain", string(p.metadata["encoding-original"]))
	require.NotEmpty(t, p.metadata["external-payload-id"])

	require.NoError(t, c.Init(ctx, Inbound))
	token, err := c.Register(ctx, PayloadContext{Tenant: "default"}, Inbound, out)
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, Inbound))

	back, err := c.Resolve(ctx, token)
	require.NoError(t, err)

	p2, err := parsePayload(back)
	require.NoError(t, err)
	require.Equal(t, "json/plain", string(p2.metadata["encoding"]))
	require.Equal(t, "hello", string(p2.data))
	require.NotContains(t, p2.metadata, "encoding-original")
	require.NotContains(t, p2.metadata, "external-payload-id")
}

func TestBatchingCodec_LifecycleErrors(t *testing.T) {
	c := &BatchingCodec{Store: newMemStore()}
	ctx := context.Background()

	_, err := c.Transform(ctx, PayloadContext{Tenant: "t"}, Outbound, samplePayload("x", "y"))
	var lcErr *LifecycleError
	require.ErrorAs(t, err, &lcErr)

	require.NoError(t, c.Init(ctx, Outbound))
	require.Error(t, c.Init(ctx, Outbound), "double Init")
}

func TestBatchingCodec_BatchesPerTenant(t *testing.T) {
	store := newMemStore()
	c := &BatchingCodec{Store: store}
	ctx := context.Background()

	require.NoError(t, c.Init(ctx, Outbound))
	tenants := []string{"a", "a", "b", "a", "b"}
	var outs [][]byte
	for _, tn := range tenants {
		out, err := c.Transform(ctx, PayloadContext{Tenant: tn}, Outbound, samplePayload("json", "x"))
		require.NoError(t, err)
		outs = append(outs, out)
	}
	require.NoError(t, c.Finish(ctx, Outbound))
	require.Equal(t, 2, store.writes, "one batched write per distinct tenant regardless of payload count")
	require.Equal(t, 1, store.writesByTenant["a"])
	require.Equal(t, 1, store.writesByTenant["b"])

	require.NoError(t, c.Init(ctx, Inbound))
	tokens := make([]string, len(tenants))
	for i, tn := range tenants {
		tok, err := c.Register(ctx, PayloadContext{Tenant: tn}, Inbound, outs[i])
		require.NoError(t, err)
		tokens[i] = tok
	}
	require.NoError(t, c.Finish(ctx, Inbound))
	require.Equal(t, 2, store.reads, "one batched read per distinct tenant regardless of payload count")

	for _, tok := range tokens {
		_, err := c.Resolve(ctx, tok)
		require.NoError(t, err)
	}
}

func TestBatchingCodec_InboundPassthroughForUnrelatedEncoding(t *testing.T) {
	c := &BatchingCodec{Store: newMemStore()}
	ctx := context.Background()
	require.NoError(t, c.Init(ctx, Inbound))
	data := samplePayload("json/plain", "untouched")
	token, err := c.Register(ctx, PayloadContext{Tenant: "t"}, Inbound, data)
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, Inbound))

	out, err := c.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, data, out)
}
