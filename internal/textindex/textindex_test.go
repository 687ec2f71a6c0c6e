package textindex

import (
	"testing"

	"github.com/Chunkys0up7/atomindex/internal/store"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func seedIndex(t *testing.T, idx *Index) {
	t.Helper()
	records := []*store.Record{
		{ID: "proc-onboarding", ParentID: "proc-onboarding", Type: "process",
			Title: "Customer Onboarding", Body: "Steps to onboard a new customer account."},
		{ID: "policy-kyc", ParentID: "policy-kyc", Type: "policy",
			Title: "KYC Policy", Body: "Identity verification requirements.",
			Tags: []string{"compliance", "onboarding"}},
		{ID: "sys-crm#0", ParentID: "sys-crm", Type: "system",
			Title: "CRM", Body: "Stores customer master data."},
		{ID: "sys-crm#1", ParentID: "sys-crm", Type: "system",
			Title: "CRM", Body: "Integrates with the billing platform."},
	}
	for _, rec := range records {
		if err := idx.IndexRecord(rec); err != nil {
			t.Fatalf("IndexRecord(%s): %v", rec.ID, err)
		}
	}
}

func TestSearchFindsRecords(t *testing.T) {
	idx := openTestIndex(t)
	seedIndex(t, idx)

	hits, err := idx.Search("onboarding", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("Search returned no hits for an indexed term")
	}
	found := make(map[string]bool)
	for _, h := range hits {
		found[h.RecordID] = true
		if h.Score <= 0 {
			t.Errorf("hit %s has non-positive score %v", h.RecordID, h.Score)
		}
	}
	if !found["proc-onboarding"] {
		t.Errorf("hits = %v, want proc-onboarding via its title", hits)
	}
	if !found["policy-kyc"] {
		t.Errorf("hits = %v, want policy-kyc via its tags", hits)
	}
}

func TestSearchTitleBoost(t *testing.T) {
	idx := openTestIndex(t)
	seedIndex(t, idx)

	hits, err := idx.Search("customer", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) < 2 {
		t.Fatalf("got %d hits, want the title and body matches", len(hits))
	}
	// The title match outranks records that only say "customer" in the body.
	if hits[0].RecordID != "proc-onboarding" {
		t.Errorf("top hit = %s, want the boosted title match", hits[0].RecordID)
	}
}

func TestSearchTopK(t *testing.T) {
	idx := openTestIndex(t)
	seedIndex(t, idx)

	hits, err := idx.Search("customer", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want topK to cap at 1", len(hits))
	}
}

func TestDeleteByParentRemovesChunks(t *testing.T) {
	idx := openTestIndex(t)
	seedIndex(t, idx)

	if err := idx.DeleteByParent("sys-crm"); err != nil {
		t.Fatalf("DeleteByParent: %v", err)
	}

	count, err := idx.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("doc count = %d, want 2 after deleting both chunks", count)
	}

	hits, err := idx.Search("billing", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want deleted chunk content gone", hits)
	}
}

func TestIndexRecordReplaces(t *testing.T) {
	idx := openTestIndex(t)
	rec := &store.Record{ID: "a", ParentID: "a", Type: "system", Title: "Ledger", Body: "original wording"}
	if err := idx.IndexRecord(rec); err != nil {
		t.Fatalf("IndexRecord: %v", err)
	}

	rec.Body = "revised wording"
	if err := idx.IndexRecord(rec); err != nil {
		t.Fatalf("IndexRecord (replace): %v", err)
	}

	count, err := idx.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("doc count = %d, want replacement not duplication", count)
	}

	if hits, _ := idx.Search("original", 10); len(hits) != 0 {
		t.Errorf("hits = %v, want the old wording unsearchable", hits)
	}
}
