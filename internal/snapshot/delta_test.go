package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testWorkspace creates baseline/exported directories under a temp dir.
func testWorkspace(t *testing.T) (baseline, exported, output string) {
	t.Helper()
	dir := t.TempDir()
	baseline = filepath.Join(dir, "baseline")
	exported = filepath.Join(dir, "exported")
	output = filepath.Join(dir, "deltas")
	for _, d := range []string{baseline, exported} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}
	return baseline, exported, output
}

func writeSnapshot(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	data := strings.Join(lines, "\n")
	if len(lines) > 0 {
		data += "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func readOutput(t *testing.T, path string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data), true
}

func quietOptions(baseline, exported, output string) Options {
	return Options{
		BaselineDir: baseline,
		ExportedDir: exported,
		OutputDir:   output,
		IDKeys:      DefaultIDKeys(),
		Logger:      log.New(io.Discard, "", 0),
	}
}

func TestComputeDeltas_NewJournal(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "journals", `{"source_id": "1", "title": "A"}`)
	writeSnapshot(t, exported, "journals",
		`{"source_id": "1", "title": "A"}`,
		`{"source_id": "2", "title": "B"}`)

	result, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output))
	if err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}

	got, ok := readOutput(t, filepath.Join(output, NewDir, "journals.json"))
	if !ok {
		t.Fatal("new/journals.json was not created")
	}
	if got != "{\"source_id\": \"2\", \"title\": \"B\"}\n" {
		t.Errorf("new/journals.json = %q", got)
	}
	if _, ok := readOutput(t, filepath.Join(output, ModDir, "journals.json")); ok {
		t.Error("mod/journals.json should not exist when nothing changed")
	}

	if len(result.Types) != 1 {
		t.Fatalf("expected 1 entity type, got %d", len(result.Types))
	}
	stats := result.Types[0]
	if stats.New != 1 || stats.Modified != 0 || stats.Unchanged != 1 {
		t.Errorf("stats = %+v, want new=1 modified=0 unchanged=1", stats)
	}
	if stats.IDField != "source_id" {
		t.Errorf("IDField = %q, want source_id", stats.IDField)
	}
}

func TestComputeDeltas_ModifiedUser(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "users", `{"uid": "7", "name": "x"}`)
	writeSnapshot(t, exported, "users", `{"uid": "7", "name": "y"}`)

	if _, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output)); err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}

	got, ok := readOutput(t, filepath.Join(output, ModDir, "users.json"))
	if !ok {
		t.Fatal("mod/users.json was not created")
	}
	if got != "{\"uid\": \"7\", \"name\": \"y\"}\n" {
		t.Errorf("mod/users.json = %q", got)
	}
	if _, ok := readOutput(t, filepath.Join(output, NewDir, "users.json")); ok {
		t.Error("new/users.json should not exist")
	}
}

func TestComputeDeltas_Classification(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "articles",
		`{"id": 1, "title": "same"}`,
		`{"id": 2, "title": "before"}`,
		`{"id": 3, "title": "spacing"}`,
		`{"id": 4, "title": "deleted"}`)
	writeSnapshot(t, exported, "articles",
		`{"id": 1, "title": "same"}`,
		`{"id": 2, "title": "after"}`,
		`{"id":3,"title":"spacing"}`,
		`{"id": 5, "title": "brand new"}`,
		`{"id": "1", "title": "string key"}`)

	result, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output))
	if err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}

	newOut, _ := readOutput(t, filepath.Join(output, NewDir, "articles.json"))
	modOut, _ := readOutput(t, filepath.Join(output, ModDir, "articles.json"))

	tests := []struct {
		line    string
		wantNew bool
		wantMod bool
	}{
		{`{"id": 1, "title": "same"}`, false, false},
		{`{"id": 2, "title": "after"}`, false, true},
		{`{"id":3,"title":"spacing"}`, false, true}, // re-serialized counts as modified
		{`{"id": 5, "title": "brand new"}`, true, false},
		{`{"id": "1", "title": "string key"}`, true, false}, // "1" is not 1
	}
	for _, tt := range tests {
		inNew := strings.Contains(newOut, tt.line+"\n")
		inMod := strings.Contains(modOut, tt.line+"\n")
		if inNew != tt.wantNew || inMod != tt.wantMod {
			t.Errorf("%s: in new=%v mod=%v, want new=%v mod=%v", tt.line, inNew, inMod, tt.wantNew, tt.wantMod)
		}
	}

	stats := result.Types[0]
	if stats.Exported != stats.New+stats.Modified+stats.Unchanged {
		t.Errorf("classification incomplete: %+v", stats)
	}
}

func TestComputeDeltas_DeletionsNotReported(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "topics", `{"id": 1, "name": "kept"}`, `{"id": 2, "name": "gone"}`)
	writeSnapshot(t, exported, "topics", `{"id": 1, "name": "kept"}`)
	writeSnapshot(t, baseline, "boards", `{"id": 9, "name": "whole file gone"}`)

	result, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output))
	if err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}

	for _, sub := range []string{NewDir, ModDir} {
		entries, err := os.ReadDir(filepath.Join(output, sub))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", sub, err)
		}
		if len(entries) != 0 {
			t.Errorf("%s/ should be empty when records were only deleted, found %d files", sub, len(entries))
		}
	}

	var boards *TypeStats
	for i := range result.Types {
		if result.Types[i].EntityType == "boards" {
			boards = &result.Types[i]
		}
	}
	if boards == nil {
		t.Fatal("boards missing from result")
	}
	if !boards.ExportedMissing {
		t.Error("boards should be flagged as missing from the export")
	}
}

func TestComputeDeltas_IgnoresTypesOnlyInExport(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, exported, "messages", `{"id": 1}`)

	result, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output))
	if err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}
	if len(result.Types) != 0 {
		t.Errorf("expected no entity types, got %d", len(result.Types))
	}
	if _, ok := readOutput(t, filepath.Join(output, NewDir, "messages.json")); ok {
		t.Error("types absent from the baseline should not be compared")
	}
}

func TestComputeDeltas_Idempotent(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "docs", `{"id": 1, "v": 1}`, `{"id": 2, "v": 1}`)
	writeSnapshot(t, exported, "docs", `{"id": 1, "v": 2}`, `{"id": 2, "v": 1}`, `{"id": 3, "v": 1}`)

	opts := quietOptions(baseline, exported, output)
	opts.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	if _, err := ComputeDeltas(context.Background(), opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := map[string]string{}
	for _, sub := range []string{NewDir, ModDir} {
		first[sub], _ = readOutput(t, filepath.Join(output, sub, "docs.json"))
	}

	result, err := ComputeDeltas(context.Background(), opts)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	for _, sub := range []string{NewDir, ModDir} {
		got, _ := readOutput(t, filepath.Join(output, sub, "docs.json"))
		if got != first[sub] {
			t.Errorf("%s differs between runs: %q vs %q", sub, got, first[sub])
		}
	}
	if result.RotatedTo != output+"-20240301120000" {
		t.Errorf("RotatedTo = %q", result.RotatedTo)
	}
}

func TestComputeDeltas_RotationPreservesPriorOutput(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "docs", `{"id": 1}`)
	writeSnapshot(t, exported, "docs", `{"id": 1}`)

	marker := filepath.Join(output, NewDir, "docs.json")
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		t.Fatalf("Failed to create prior output: %v", err)
	}
	if err := os.WriteFile(marker, []byte("prior run\n"), 0644); err != nil {
		t.Fatalf("Failed to write prior output: %v", err)
	}

	result, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output))
	if err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}
	if result.RotatedTo == "" {
		t.Fatal("expected prior output to be rotated")
	}

	got, ok := readOutput(t, filepath.Join(result.RotatedTo, NewDir, "docs.json"))
	if !ok || got != "prior run\n" {
		t.Errorf("prior output not preserved, got %q", got)
	}
	if _, ok := readOutput(t, marker); ok {
		t.Error("new output directory should start empty")
	}
}

func TestComputeDeltas_MalformedAborts(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "users", `{"uid": "1"}`)
	writeSnapshot(t, exported, "users", `{"uid": "1"}`, `{"name": "no uid"}`)

	_, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output))
	if err == nil {
		t.Fatal("expected error for record without identifying field")
	}
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}
	var mre *MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("expected *MalformedRecordError, got %T", err)
	}
	if mre.EntityType != "users" || mre.Line != 2 {
		t.Errorf("error = %+v, want users line 2", mre)
	}
}

func TestComputeDeltas_UnparseableLine(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "docs", `{"id": 1}`, `not json`)
	writeSnapshot(t, exported, "docs", `{"id": 1}`)

	_, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output))
	if !IsMalformed(err) {
		t.Errorf("expected malformed record error, got %v", err)
	}
}

func TestComputeDeltas_SkipMalformed(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "docs", `{"id": 1}`, `[1, 2]`)
	writeSnapshot(t, exported, "docs", `{"id": 1}`, `{"title": "no id"}`, `{"id": 2}`)

	var logs bytes.Buffer
	opts := quietOptions(baseline, exported, output)
	opts.SkipMalformed = true
	opts.Logger = log.New(&logs, "", 0)

	result, err := ComputeDeltas(context.Background(), opts)
	if err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}
	if result.TotalSkipped() != 2 {
		t.Errorf("TotalSkipped() = %d, want 2", result.TotalSkipped())
	}
	if result.TotalNew() != 1 {
		t.Errorf("TotalNew() = %d, want 1", result.TotalNew())
	}
	if !strings.Contains(logs.String(), "skipping") {
		t.Errorf("expected skipped records to be logged, got %q", logs.String())
	}
}

func TestComputeDeltas_MissingBaselineDir(t *testing.T) {
	_, exported, output := testWorkspace(t)
	opts := quietOptions(filepath.Join(t.TempDir(), "nope"), exported, output)
	if _, err := ComputeDeltas(context.Background(), opts); err == nil {
		t.Error("expected error for missing baseline directory")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("output directory should not be created when inputs are unreadable")
	}
}

func TestComputeDeltas_LastLineWithoutNewline(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "docs", `{"id": 1}`)
	if err := os.WriteFile(filepath.Join(exported, "docs.json"), []byte(`{"id": 1}`+"\n"+`{"id": 2}`), 0644); err != nil {
		t.Fatalf("Failed to write exported: %v", err)
	}

	if _, err := ComputeDeltas(context.Background(), quietOptions(baseline, exported, output)); err != nil {
		t.Fatalf("ComputeDeltas() failed: %v", err)
	}
	got, _ := readOutput(t, filepath.Join(output, NewDir, "docs.json"))
	if got != "{\"id\": 2}\n" {
		t.Errorf("new/docs.json = %q", got)
	}
}

func TestComputeDeltas_Cancelled(t *testing.T) {
	baseline, exported, output := testWorkspace(t)
	writeSnapshot(t, baseline, "docs", `{"id": 1}`)
	writeSnapshot(t, exported, "docs", `{"id": 1}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ComputeDeltas(ctx, quietOptions(baseline, exported, output)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEntityTypes_Sorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"users", "articles", "journals"} {
		writeSnapshot(t, dir, name, `{"id": 1}`)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := EntityTypes(dir)
	if err != nil {
		t.Fatalf("EntityTypes() failed: %v", err)
	}
	want := []string{"articles", "journals", "users"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("EntityTypes() = %v, want %v", got, want)
	}
}
