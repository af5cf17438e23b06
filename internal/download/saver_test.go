package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSaveWritesNamedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	saver := NewSaver(dir)
	path, err := saver.Save(context.Background(), "Operation Iron Tide_Package.zip", []byte("PK"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "Operation Iron Tide_Package.zip" {
		t.Fatalf("unexpected file name %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "PK" {
		t.Fatalf("file content = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestSaveNeverOverwrites(t *testing.T) {
	saver := NewSaver(t.TempDir())
	first, err := saver.Save(context.Background(), "Ex_WARNO.txt", []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := saver.Save(context.Background(), "Ex_WARNO.txt", []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(second) != "Ex_WARNO (1).txt" {
		t.Fatalf("second save = %q", second)
	}
	if data, _ := os.ReadFile(first); string(data) != "one" {
		t.Fatalf("first file overwritten: %q", data)
	}
}

func TestConcurrentSavesClaimDistinctNames(t *testing.T) {
	dir := t.TempDir()
	saver := NewSaver(dir)
	const n = 8
	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = saver.Save(context.Background(), "Iron Tide_Package.zip", []byte(fmt.Sprintf("payload-%d", i)))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("save %d: %v", i, errs[i])
		}
		if seen[paths[i]] {
			t.Fatalf("two saves returned %q", paths[i])
		}
		seen[paths[i]] = true
		data, err := os.ReadFile(paths[i])
		if err != nil || string(data) != fmt.Sprintf("payload-%d", i) {
			t.Fatalf("file %q = %q, %v", paths[i], data, err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != n {
		t.Fatalf("expected %d files and no temp leftovers, got %d entries", n, len(entries))
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":  "_.._etc_passwd",
		"  Op: Alpha  ":     "Op_ Alpha",
		"Name\twith\ncodes": "Namewithcodes",
		"...":               "",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveRejectsEmptyName(t *testing.T) {
	if _, err := NewSaver(t.TempDir()).Save(context.Background(), " .. ", nil); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
