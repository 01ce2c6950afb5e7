package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/routeway/pkg/storage"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func makeTranscript(id string, offset int) *storage.Transcript {
	return &storage.Transcript{
		ID:         id,
		Model:      "test-model",
		Request:    json.RawMessage(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`),
		Response:   json.RawMessage(`{"id":"x","choices":[]}`),
		StatusCode: 200,
		CreatedAt:  baseTime.Add(time.Duration(offset) * time.Second),
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Save(ctx, makeTranscript("tr_1", 0)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "tr_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Model != "test-model" {
		t.Errorf("Model = %q, want %q", got.Model, "test-model")
	}
	if string(got.Response) != `{"id":"x","choices":[]}` {
		t.Errorf("Response = %s", got.Response)
	}
}

func TestSaveConflict(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.Save(ctx, makeTranscript("tr_dup", 0))
	if err := s.Save(ctx, makeTranscript("tr_dup", 1)); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)
	if _, err := s.Get(context.Background(), "tr_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Save(ctx, makeTranscript("tr_del", 0))

	if err := s.Delete(ctx, "tr_del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "tr_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "tr_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(0)
	acme := storage.WithTenant(context.Background(), "acme")
	globex := storage.WithTenant(context.Background(), "globex")

	s.Save(acme, makeTranscript("tr_acme", 0))

	if _, err := s.Get(globex, "tr_acme"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other tenant should not see transcript, got %v", err)
	}
	if err := s.Delete(globex, "tr_acme"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other tenant should not delete transcript, got %v", err)
	}
	got, err := s.Get(acme, "tr_acme")
	if err != nil {
		t.Fatalf("owner Get failed: %v", err)
	}
	if got.Tenant != "acme" {
		t.Errorf("Tenant = %q, want acme", got.Tenant)
	}
	if _, err := s.Get(context.Background(), "tr_acme"); err != nil {
		t.Errorf("unscoped context should see all tenants, got %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	s.Save(ctx, makeTranscript("tr_a", 0))
	s.Save(ctx, makeTranscript("tr_b", 1))

	// Touch a so b becomes the least recently used.
	if _, err := s.Get(ctx, "tr_a"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	s.Save(ctx, makeTranscript("tr_c", 2))

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if _, err := s.Get(ctx, "tr_b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tr_b should have been evicted, got %v", err)
	}
	for _, id := range []string{"tr_a", "tr_c"} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Errorf("%s should survive eviction: %v", id, err)
		}
	}
}

func TestListPagination(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Save(ctx, makeTranscript(fmt.Sprintf("tr_%d", i), i))
	}
	other := makeTranscript("tr_other", 10)
	other.Model = "other-model"
	s.Save(ctx, other)

	tests := []struct {
		name    string
		opts    storage.ListOptions
		wantIDs []string
		hasMore bool
	}{
		{"desc default", storage.ListOptions{Model: "test-model", Limit: 2}, []string{"tr_4", "tr_3"}, true},
		{"asc", storage.ListOptions{Model: "test-model", Order: "asc", Limit: 3}, []string{"tr_0", "tr_1", "tr_2"}, true},
		{"after cursor", storage.ListOptions{Model: "test-model", After: "tr_3"}, []string{"tr_2", "tr_1", "tr_0"}, false},
		{"before cursor", storage.ListOptions{Model: "test-model", Before: "tr_2"}, []string{"tr_4", "tr_3"}, false},
		{"unknown cursor", storage.ListOptions{After: "tr_nope"}, nil, false},
		{"model filter", storage.ListOptions{Model: "other-model"}, []string{"tr_other"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list.Data) != len(tt.wantIDs) {
				t.Fatalf("len(Data) = %d, want %d", len(list.Data), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if list.Data[i].ID != id {
					t.Errorf("Data[%d] = %q, want %q", i, list.Data[i].ID, id)
				}
			}
			if list.HasMore != tt.hasMore {
				t.Errorf("HasMore = %v, want %v", list.HasMore, tt.hasMore)
			}
			if list.Data == nil {
				t.Error("Data should be an empty slice, not nil")
			}
		})
	}
}

func TestListOptionsNormalize(t *testing.T) {
	o := storage.ListOptions{Limit: 1000, Order: "sideways"}.Normalize()
	if o.Limit != 100 || o.Order != "desc" {
		t.Errorf("Normalize() = %+v", o)
	}
	if o := (storage.ListOptions{}).Normalize(); o.Limit != 20 {
		t.Errorf("default limit = %d, want 20", o.Limit)
	}
}
