package catalog

import (
	"context"
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// fakeStore is an in-memory hash store for tests.
type fakeStore struct {
	hashes map[string]map[string]string

	hsetErr    error
	hgetAllErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if f.hsetErr != nil {
		return f.hsetErr
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.hgetAllErr != nil {
		return nil, f.hgetAllErr
	}
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for key := range f.hashes {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func newTestRepo(t *testing.T) (*Repo, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	return New(fs), fs
}

func testDocument(t *testing.T, id string, version int) domain.Document {
	t.Helper()
	audiences, err := domain.NewAudienceSet("customer", "admin")
	if err != nil {
		t.Fatalf("NewAudienceSet: %v", err)
	}
	uploaded := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).Add(time.Duration(version) * time.Hour)
	return domain.ReconstructDocument(
		id, "Setup Guide", "restart the gateway after configuration changes",
		"markdown", "sum-"+id+"-v"+strconv.Itoa(version),
		audiences, version, uploaded, domain.StatusActive,
	)
}
