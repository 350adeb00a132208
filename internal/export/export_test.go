package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nciocpl/ebms/internal/config"
	"github.com/nciocpl/ebms/internal/snapshot"
	"github.com/nciocpl/ebms/internal/store"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestExport_FromDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "ebms.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE users (uid TEXT, name TEXT)`,
		`INSERT INTO users VALUES ('7', 'x')`,
		`CREATE TABLE ebms_journal (source_id TEXT, title TEXT)`,
		`INSERT INTO ebms_journal VALUES ('1', 'A'), ('2', 'B')`,
	} {
		if _, err := db.RawDB().Exec(stmt); err != nil {
			t.Fatalf("Exec() failed: %v", err)
		}
	}

	out := filepath.Join(dir, "exported")
	result, err := Export(context.Background(), db, Options{
		Dir: out,
		Tables: map[string]config.TableConfig{
			"users":    {Table: "users", OrderBy: "uid"},
			"journals": {Table: "ebms_journal", OrderBy: "source_id"},
		},
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if result.Records["journals"] != 2 || result.Records["users"] != 1 {
		t.Errorf("Records = %v", result.Records)
	}

	data, err := os.ReadFile(filepath.Join(out, "users.json"))
	if err != nil {
		t.Fatalf("users.json not written: %v", err)
	}
	if string(data) != `{"uid": "7", "name": "x"}`+"\n" {
		t.Errorf("users.json = %q", data)
	}

	types, err := snapshot.EntityTypes(out)
	if err != nil {
		t.Fatalf("EntityTypes() failed: %v", err)
	}
	if len(types) != 2 {
		t.Errorf("expected 2 entity files and no temp files, got %v", types)
	}
}

type failingExporter struct{}

func (failingExporter) ExportTable(ctx context.Context, table, orderBy string, w io.Writer) (int, error) {
	fmt.Fprintln(w, `{"id": 1}`)
	return 0, errors.New("connection lost")
}

func TestExport_FailureLeavesNoPartialFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exported")
	_, err := Export(context.Background(), failingExporter{}, Options{
		Dir:    out,
		Tables: map[string]config.TableConfig{"docs": {Table: "ebms_doc"}},
		Logger: quietLogger(),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("expected no files after failure, found %d", len(entries))
	}
}

func TestExport_RotatesPreviousSnapshot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exported")
	if err := os.MkdirAll(out, 0755); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	result, err := Export(context.Background(), stubExporter{}, Options{
		Dir:    out,
		Tables: map[string]config.TableConfig{"docs": {Table: "ebms_doc"}},
		Logger: quietLogger(),
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if result.RotatedTo != out+"-20240506070809" {
		t.Errorf("RotatedTo = %q", result.RotatedTo)
	}
}

func TestExport_NoTables(t *testing.T) {
	if _, err := Export(context.Background(), stubExporter{}, Options{Dir: t.TempDir()}); err == nil {
		t.Error("expected error when no tables are configured")
	}
}

type stubExporter struct{}

func (stubExporter) ExportTable(ctx context.Context, table, orderBy string, w io.Writer) (int, error) {
	_, err := io.WriteString(w, `{"id": 1}`+"\n")
	return 1, err
}
