package probe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"askdata/internal/handlers"
	"askdata/internal/storage/sqlite"
)

func TestProbe_CSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "people.csv")
	data := "id,status,note\n1,open,\n2,open,late\n3,closed,\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Probe(context.Background(), handlers.NewRegistry(nil), path, sqlite.Dialect{}, Options{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Probe returned %d results, want 1", len(got))
	}
	r := got[0]
	if r.Table != "people" || r.Rows != 3 || r.Sampled != 3 {
		t.Fatalf("result = %s/%d/%d, want people/3/3", r.Table, r.Rows, r.Sampled)
	}
	for _, want := range []string{`CREATE TABLE "people"`, `"id" INTEGER NOT NULL PRIMARY KEY`} {
		if !strings.Contains(r.DDL, want) {
			t.Fatalf("DDL = %q, missing %q", r.DDL, want)
		}
	}
	if len(r.Indexes) != 1 || !strings.Contains(r.Indexes[0], "idx_people_status") {
		t.Fatalf("Indexes = %v, want one on status", r.Indexes)
	}

	u := r.Uniqueness
	if u.Total["note"] != 1 || u.Distinct["status"] != 2 || u.Distinct["id"] != 3 {
		t.Fatalf("uniqueness = %+v", u)
	}
	report := u.Report()
	if strings.Index(report, "status") > strings.Index(report, "id ") {
		t.Fatalf("report not ordered by ratio:\n%s", report)
	}
}

func TestProbe_SampleRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "n.csv")
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 50; i++ {
		b.WriteString("x\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Probe(context.Background(), handlers.NewRegistry(nil), path, sqlite.Dialect{}, Options{SampleRows: 10})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if got[0].Rows != 50 || got[0].Sampled != 10 || got[0].Uniqueness.Total["n"] != 10 {
		t.Fatalf("result = %+v", got[0])
	}
}

func TestProbe_Unsupported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, []byte{0, 1}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Probe(context.Background(), handlers.NewRegistry(nil), path, sqlite.Dialect{}, Options{}); err == nil {
		t.Fatalf("Probe(%q) succeeded, want error", path)
	}
}

func TestUniquenessReport_Empty(t *testing.T) {
	t.Parallel()
	if got := (Uniqueness{}).Report(); got != "uniqueness: no rows sampled" {
		t.Fatalf("Report() = %q", got)
	}
}
