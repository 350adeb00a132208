package manifest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nciocpl/ebms/internal/store"
)

type fakeSource map[int64]string

func (f fakeSource) ArticleChecksums(ctx context.Context) ([]store.ArticleChecksum, error) {
	var out []store.ArticleChecksum
	for id := int64(1); id <= int64(len(f))+10; id++ {
		if xml, ok := f[id]; ok {
			out = append(out, store.ArticleChecksum{ID: id, SHA1: sum(xml)})
		}
	}
	return out, nil
}

func (f fakeSource) ArticleXML(ctx context.Context, id int64) ([]byte, error) {
	xml, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("article %d: %w", id, store.ErrNotFound)
	}
	return []byte(xml), nil
}

func sum(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func testOptions(dir string) Options {
	return Options{
		Dir:    dir,
		Logger: log.New(io.Discard, "", 0),
		Now:    func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func writeManifest(t *testing.T, dir string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "articles.manifest"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRefresh(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir,
		sum("<a1/>")+" 1 5 20200101000000",
		sum("<old/>")+" 2 6 20200101000000",
	)
	src := fakeSource{1: "<a1/>", 2: "<a2 new/>", 3: "<a3/>"}

	result, err := Refresh(context.Background(), src, testOptions(dir))
	if err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if result.Added != 1 || result.Updated != 1 || result.Unchanged != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.RotatedTo == "" {
		t.Error("expected previous manifest to be rotated")
	} else if _, err := os.Stat(result.RotatedTo); err != nil {
		t.Errorf("rotated manifest missing: %v", err)
	}

	manifest, err := os.ReadFile(filepath.Join(dir, "articles.manifest"))
	if err != nil {
		t.Fatal(err)
	}
	wantManifest := sum("<a1/>") + " 1 5 20200101000000\n" +
		sum("<a2 new/>") + " 2 9 20240102030405\n" +
		sum("<a3/>") + " 3 5 20240102030405\n"
	if string(manifest) != wantManifest {
		t.Errorf("manifest =\n%s\nwant\n%s", manifest, wantManifest)
	}

	sums, err := os.ReadFile(filepath.Join(dir, "articles.sums"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(sums), sum("<a3/>")+" articles/3.xml\n") {
		t.Errorf("sums missing article 3:\n%s", sums)
	}

	if _, err := os.Stat(filepath.Join(dir, "articles", "1.xml")); !os.IsNotExist(err) {
		t.Error("unchanged article should not be rewritten")
	}
	xml, err := os.ReadFile(filepath.Join(dir, "articles", "2.xml"))
	if err != nil || string(xml) != "<a2 new/>" {
		t.Errorf("articles/2.xml = %q, %v", xml, err)
	}
}

func TestRefresh_ReportOnly(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, sum("<a1/>")+" 1 5 20200101000000")
	opts := testOptions(dir)
	opts.ReportOnly = true

	result, err := Refresh(context.Background(), fakeSource{1: "<changed/>", 2: "<a2/>"}, opts)
	if err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if result.Added != 1 || result.Updated != 1 {
		t.Errorf("result = %+v", result)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("report-only run wrote files: %v", entries)
	}
}

func TestRefresh_FirstRun(t *testing.T) {
	dir := t.TempDir()
	result, err := Refresh(context.Background(), fakeSource{1: "<a1/>"}, testOptions(dir))
	if err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if result.Added != 1 || result.RotatedTo != "" {
		t.Errorf("result = %+v", result)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "abc 1 5")
	if _, err := Load(filepath.Join(dir, "articles.manifest")); err == nil {
		t.Error("expected error for short manifest line")
	}
}
