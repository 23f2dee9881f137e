// Package filestore is the one concrete codec.ExternalStore this
// repository ships: a directory of one file per tenant, each holding a
// gob-encoded map of externalized payload blobs. It exists only so
// `payload-proxy serve --codec-strategy=batched-external-store` has
// something real to run against; operators with an actual blob store or
// KMS-backed service are expected to implement codec.ExternalStore
// themselves and are not served by this package.
package filestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fireflycore/payload-proxy/codec"
)

// Store persists each tenant's externalized payloads as a single file
// under Dir, named by the tenant string. A process-wide mutex per tenant
// path keeps concurrent WriteBatch/ReadBatch calls from tearing a file.
type Store struct {
	Dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type record struct {
	Data     []byte
	Metadata map[string][]byte
}

func (s *Store) tenantLock(tenant string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[tenant]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenant] = l
	}
	return l
}

// validateTenant rejects any tenant string that isn't a single clean
// path segment, so a value lifted from a request header (e.g.
// "../../other-tenant" or an absolute path) can't resolve outside Dir or
// onto another tenant's file.
func validateTenant(tenant string) error {
	if tenant == "" || filepath.Base(tenant) != tenant {
		return fmt.Errorf("filestore: invalid tenant %q", tenant)
	}
	return nil
}

func (s *Store) tenantPath(tenant string) string {
	return filepath.Join(s.Dir, tenant+".gob")
}

func (s *Store) load(tenant string) (map[string]record, error) {
	data, err := os.ReadFile(s.tenantPath(tenant))
	if os.IsNotExist(err) {
		return make(map[string]record), nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]record)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, fmt.Errorf("filestore: decode %s: %w", tenant, err)
	}
	return out, nil
}

func (s *Store) save(tenant string, blobs map[string]record) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(blobs); err != nil {
		return fmt.Errorf("filestore: encode %s: %w", tenant, err)
	}
	return os.WriteFile(s.tenantPath(tenant), buf.Bytes(), 0o644)
}

// WriteBatch persists records under tenant, merging into whatever that
// tenant's file already holds.
func (s *Store) WriteBatch(_ context.Context, tenant string, records []codec.StoreRecord) error {
	if err := validateTenant(tenant); err != nil {
		return err
	}
	lock := s.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	blobs, err := s.load(tenant)
	if err != nil {
		return err
	}
	for _, r := range records {
		blobs[r.ID] = record{Data: r.Data, Metadata: r.Metadata}
	}
	return s.save(tenant, blobs)
}

// ReadBatch returns the data bytes for every id present in tenant's file.
// Missing ids are simply absent from the result, per codec.ExternalStore's
// contract.
func (s *Store) ReadBatch(_ context.Context, tenant string, ids []string) (map[string][]byte, error) {
	if err := validateTenant(tenant); err != nil {
		return nil, err
	}
	lock := s.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	blobs, err := s.load(tenant)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		if r, ok := blobs[id]; ok {
			out[id] = r.Data
		}
	}
	return out, nil
}
