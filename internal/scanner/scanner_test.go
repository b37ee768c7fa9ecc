package scanner

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/artemshloyda/photovault/internal/config"
	"github.com/artemshloyda/photovault/internal/storage"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(root string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.UploadDir = root
	return cfg
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"a.jpg",
		"b.PNG",
		"notes.txt",
		".hidden/x.jpg",
		"._meta.jpg",
		"sub/c.webp",
	)

	s := New(testConfig(root), nil)
	files, errs := s.Scan(context.Background())

	var got []string
	for f := range files {
		got = append(got, f.RelPath)
		if !filepath.IsAbs(f.Path) {
			t.Errorf("Path %q is not absolute", f.Path)
		}
		if f.Size != 4 {
			t.Errorf("Size = %d, want 4", f.Size)
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	slices.Sort(got)
	want := []string{"a.jpg", "b.PNG", filepath.Join("sub", "c.webp")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scanned files mismatch (-want +got):\n%s", diff)
	}

	n, err := s.CountFiles()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("CountFiles() = %d, want 3", n)
	}
}

func TestScanner_MissingRoot(t *testing.T) {
	s := New(testConfig(filepath.Join(t.TempDir(), "nope")), nil)
	files, errs := s.Scan(context.Background())
	for range files {
	}
	if err := <-errs; err == nil {
		t.Error("Scan() of missing dir should fail")
	}
}

type recordingQueue struct {
	ids []int64
}

func (q *recordingQueue) Enqueue(id int64, _ string) error {
	q.ids = append(q.ids, id)
	return nil
}

func TestImporter_Import(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "cat.jpg")
	st, err := storage.New(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	q := &recordingQueue{}
	imp := NewImporter(st, q, nil)
	ctx := context.Background()

	info, err := os.Stat(filepath.Join(root, "cat.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	f, err := Describe(root, filepath.Join(root, "cat.jpg"), info)
	if err != nil {
		t.Fatal(err)
	}

	first, err := imp.Import(ctx, f)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !first.Created || !first.Queued {
		t.Errorf("first import = %+v, want created and queued", first)
	}
	if first.Image.MimeType != "image/jpeg" || first.Image.Filename != "cat.jpg" {
		t.Errorf("image = %+v", first.Image)
	}

	// Повторный импорт без эмбеддинга снова ставит в очередь.
	second, err := imp.Import(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created || !second.Queued || second.Image.ID != first.Image.ID {
		t.Errorf("second import = %+v", second)
	}

	if err := st.UpdateEmbedding(ctx, first.Image.ID, []float64{1}); err != nil {
		t.Fatal(err)
	}
	third, err := imp.Import(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if third.Queued {
		t.Error("image with embedding must not be queued")
	}

	if diff := cmp.Diff([]int64{first.Image.ID, first.Image.ID}, q.ids); diff != "" {
		t.Errorf("enqueued ids mismatch (-want +got):\n%s", diff)
	}
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.jpg", "image/jpeg"},
		{"a.JPEG", "image/jpeg"},
		{"a.png", "image/png"},
		{"a.heic", "image/heic"},
		{"a.unknownext", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := MimeType(tt.path); got != tt.want {
				t.Errorf("MimeType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
