package filestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fireflycore/payload-proxy/codec"
)

func TestStore_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	s := &Store{Dir: dir}
	ctx := context.Background()

	err := s.WriteBatch(ctx, "tenant-a", []codec.StoreRecord{
		{ID: "id-1", Data: []byte("hello"), Metadata: map[string][]byte{"k": []byte("v")}},
		{ID: "id-2", Data: []byte("world")},
	})
	require.NoError(t, err)

	got, err := s.ReadBatch(ctx, "tenant-a", []string{"id-1", "id-2", "missing"})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got["id-1"])
	require.Equal(t, []byte("world"), got["id-2"])
	require.NotContains(t, got, "missing")
}

func TestStore_TenantIsolation(t *testing.T) {
	dir := t.TempDir()
	s := &Store{Dir: dir}
	ctx := context.Background()

	require.NoError(t, s.WriteBatch(ctx, "a", []codec.StoreRecord{{ID: "shared", Data: []byte("from-a")}}))
	require.NoError(t, s.WriteBatch(ctx, "b", []codec.StoreRecord{{ID: "shared", Data: []byte("from-b")}}))

	got, err := s.ReadBatch(ctx, "a", []string{"shared"})
	require.NoError(t, err)
	require.Equal(t, []byte("from-a"), got["shared"])

	got, err = s.ReadBatch(ctx, "b", []string{"shared"})
	require.NoError(t, err)
	require.Equal(t, []byte("from-b"), got["shared"])
}

func TestStore_ReadBeforeWriteReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := &Store{Dir: dir}

	got, err := s.ReadBatch(context.Background(), "never-written", []string{"id"})
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestStore_RejectsPathTraversalTenant exercises a tenant string lifted
// straight from a request header (proxy/context.go's tenantHeader):
// nothing upstream of this store sanitizes it, so an adversarial value
// must be rejected here or it escapes Dir outright.
func TestStore_RejectsPathTraversalTenant(t *testing.T) {
	dir := t.TempDir()
	s := &Store{Dir: dir}
	ctx := context.Background()

	require.NoError(t, s.WriteBatch(ctx, "victim", []codec.StoreRecord{{ID: "secret", Data: []byte("victim-data")}}))

	for _, tenant := range []string{"../victim", "../../victim", "/etc/victim", "a/../victim", "a/b"} {
		err := s.WriteBatch(ctx, tenant, []codec.StoreRecord{{ID: "secret", Data: []byte("attacker-data")}})
		require.Error(t, err, "tenant %q must be rejected", tenant)

		_, err = s.ReadBatch(ctx, tenant, []string{"secret"})
		require.Error(t, err, "tenant %q must be rejected", tenant)
	}

	got, err := s.ReadBatch(ctx, "victim", []string{"secret"})
	require.NoError(t, err)
	require.Equal(t, []byte("victim-data"), got["secret"], "victim's record must be untouched by the rejected calls")
}
