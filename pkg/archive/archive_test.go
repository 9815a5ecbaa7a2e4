package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/endomorphosis/websearch/pkg/search"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("closing archive: %v", err)
		}
	})
	return a
}

func TestOpenUnwritablePathFailsCleanly(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "archive.db"))
	if err == nil {
		t.Fatal("expected an error for a nonexistent directory")
	}
}

func TestRecordAndSearch(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	err := a.Record(ctx, "brave", search.Query{Text: "golang generics"}, []search.Result{
		{Title: "Go generics tutorial", URL: "https://go.dev/doc/tutorial/generics", Description: "Type parameters"},
		{Title: "Unrelated page", URL: "https://example.com", Description: "Nothing here"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	hits, err := a.Search(ctx, "generics", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Title != "Go generics tutorial" {
		t.Errorf("hit = %+v", hits[0])
	}
	if hits[0].Provider != "brave" || hits[0].Query != "golang generics" {
		t.Errorf("hit attribution = %+v", hits[0])
	}
}

func TestSearchEmptyQueryReturnsRecent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for _, q := range []string{"first", "second"} {
		err := a.Record(ctx, "brave", search.Query{Text: q}, []search.Result{
			{Title: q, URL: "https://example.com/" + q},
		})
		if err != nil {
			t.Fatalf("record %q: %v", q, err)
		}
	}

	hits, err := a.Search(ctx, "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
}

func TestRecordEmptyBatchIsNoop(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if err := a.Record(ctx, "brave", search.Query{Text: "x"}, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	st, err := a.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Results != 0 {
		t.Errorf("results = %d, want 0", st.Results)
	}
}

func TestHistoryGroupsByQuery(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := a.Record(ctx, "brave", search.Query{Text: "repeated"}, []search.Result{
			{Title: "r", URL: "https://example.com/r"},
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	err := a.Record(ctx, "github", search.Query{Text: "other"}, []search.Result{
		{Title: "o", URL: "https://example.com/o"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Query == "repeated" && e.Results != 2 {
			t.Errorf("repeated query results = %d, want 2", e.Results)
		}
	}
}

func TestStats(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	err := a.Record(ctx, "brave", search.Query{Text: "q1"}, []search.Result{
		{Title: "a", URL: "https://example.com/a"},
		{Title: "b", URL: "https://example.com/b"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	st, err := a.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Results != 2 {
		t.Errorf("results = %d, want 2", st.Results)
	}
	if st.Queries != 1 {
		t.Errorf("queries = %d, want 1", st.Queries)
	}
	if st.SizeBytes == 0 {
		t.Errorf("size = 0, want > 0")
	}
}
