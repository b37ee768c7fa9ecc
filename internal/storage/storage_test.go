package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "db", "test.sqlite"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insert(t *testing.T, s *Storage, path string) int64 {
	t.Helper()
	id, err := s.InsertImage(context.Background(), NewImage{FilePath: path, MimeType: "image/jpeg", Size: 10})
	if err != nil {
		t.Fatalf("InsertImage(%s) error = %v", path, err)
	}
	return id
}

func TestStorage_InsertAndGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id := insert(t, s, "/data/a.jpg")

	img, err := s.GetImage(ctx, id)
	if err != nil {
		t.Fatalf("GetImage() error = %v", err)
	}
	if img.Filename != "a.jpg" || img.OriginalName != "a.jpg" {
		t.Errorf("names = %q/%q, want a.jpg", img.Filename, img.OriginalName)
	}
	if img.HasEmbedding {
		t.Error("new image should not have embedding")
	}

	if _, err := s.InsertImage(ctx, NewImage{FilePath: "/data/a.jpg"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second InsertImage() error = %v, want ErrDuplicate", err)
	}

	if _, err := s.GetImage(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetImage(999) error = %v, want ErrNotFound", err)
	}
}

func TestStorage_RegisterImage(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first, created, err := s.RegisterImage(ctx, NewImage{FilePath: "/data/b.png"})
	if err != nil || !created {
		t.Fatalf("RegisterImage() = %v, %v, want created", created, err)
	}
	again, created, err := s.RegisterImage(ctx, NewImage{FilePath: "/data/b.png"})
	if err != nil || created {
		t.Fatalf("RegisterImage() again = %v, %v, want existing", created, err)
	}
	if again.ID != first.ID {
		t.Errorf("RegisterImage() returned id %d, want %d", again.ID, first.ID)
	}
}

func TestStorage_EmbeddingRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id := insert(t, s, "/data/42.jpg")
	want := []float64{0.1, 0.2, 0.3}

	if err := s.UpdateEmbedding(ctx, id, want); err != nil {
		t.Fatalf("UpdateEmbedding() error = %v", err)
	}

	got, err := s.GetEmbedding(ctx, id)
	if err != nil {
		t.Fatalf("GetEmbedding() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("embedding mismatch (-want +got):\n%s", diff)
	}

	img, _ := s.GetImage(ctx, id)
	if !img.HasEmbedding {
		t.Error("HasEmbedding should be true after update")
	}
}

func TestStorage_UpdateEmbeddingErrors(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.UpdateEmbedding(ctx, 12345, []float64{1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEmbedding(missing) error = %v, want ErrNotFound", err)
	}

	id := insert(t, s, "/data/c.jpg")
	if err := s.UpdateEmbedding(ctx, id, nil); !errors.Is(err, ErrMalformedEmbedding) {
		t.Errorf("UpdateEmbedding(nil) error = %v, want ErrMalformedEmbedding", err)
	}
	if _, err := s.GetEmbedding(ctx, id); !errors.Is(err, ErrMalformedEmbedding) {
		t.Errorf("GetEmbedding() of null error = %v, want ErrMalformedEmbedding", err)
	}
}

func TestStorage_CoverageAndListings(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var ids []int64
	for _, p := range []string{"/d/1.jpg", "/d/2.jpg", "/d/3.jpg", "/d/4.jpg"} {
		ids = append(ids, insert(t, s, p))
	}
	if err := s.UpdateEmbedding(ctx, ids[1], []float64{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateEmbedding(ctx, ids[3], []float64{3, 4}); err != nil {
		t.Fatal(err)
	}

	cov, err := s.CountCoverage(ctx)
	if err != nil {
		t.Fatalf("CountCoverage() error = %v", err)
	}
	if cov.Total != 4 || cov.WithEmbedding != 2 || cov.Without() != 2 {
		t.Errorf("Coverage = %+v, want 4 total / 2 embedded", cov)
	}
	if cov.Percent() != 50 {
		t.Errorf("Percent() = %v, want 50", cov.Percent())
	}

	missing, err := s.ListImagesWithoutEmbedding(ctx)
	if err != nil {
		t.Fatalf("ListImagesWithoutEmbedding() error = %v", err)
	}
	want := []ImageRef{{ID: ids[0], FilePath: "/d/1.jpg"}, {ID: ids[2], FilePath: "/d/3.jpg"}}
	if diff := cmp.Diff(want, missing); diff != "" {
		t.Errorf("ListImagesWithoutEmbedding mismatch (-want +got):\n%s", diff)
	}

	rows, err := s.ListEmbeddings(ctx)
	if err != nil {
		t.Fatalf("ListEmbeddings() error = %v", err)
	}
	if len(rows) != 2 || rows[0].ID != ids[1] || rows[1].ID != ids[3] {
		t.Errorf("ListEmbeddings() = %+v, want ids %d and %d", rows, ids[1], ids[3])
	}

	byID, err := s.GetImagesByIDs(ctx, []int64{ids[0], ids[3], 999})
	if err != nil {
		t.Fatalf("GetImagesByIDs() error = %v", err)
	}
	if len(byID) != 2 {
		t.Errorf("GetImagesByIDs() returned %d images, want 2", len(byID))
	}
}

func TestStorage_ListEmbeddingsRawForms(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	plain := insert(t, s, "/d/plain.jpg")
	nested := insert(t, s, "/d/nested.jpg")
	broken := insert(t, s, "/d/broken.jpg")

	mustExec := func(q string, args ...any) {
		if _, err := s.db.Exec(q, args...); err != nil {
			t.Fatal(err)
		}
	}
	mustExec("UPDATE images SET embedding = ? WHERE id = ?", "[0.5, 1.5]", plain)
	mustExec("UPDATE images SET embedding = ? WHERE id = ?", `"[2, 3]"`, nested)
	mustExec("UPDATE images SET embedding = ? WHERE id = ?", "not json", broken)

	rows, err := s.ListEmbeddings(ctx)
	if err != nil {
		t.Fatalf("ListEmbeddings() error = %v", err)
	}

	got := map[int64][]float64{}
	var malformed []int64
	for _, r := range rows {
		vec, err := DecodeVector(r.Raw)
		if err != nil {
			malformed = append(malformed, r.ID)
			continue
		}
		got[r.ID] = vec
	}

	want := map[int64][]float64{plain: {0.5, 1.5}, nested: {2, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded embeddings mismatch (-want +got):\n%s", diff)
	}
	if len(malformed) != 1 || malformed[0] != broken {
		t.Errorf("malformed = %v, want [%d]", malformed, broken)
	}
}

func TestDecodeVector(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    []float64
		wantErr bool
	}{
		{name: "json string", raw: "[1,2.5]", want: []float64{1, 2.5}},
		{name: "json bytes", raw: []byte(" [3] "), want: []float64{3}},
		{name: "double encoded", raw: `"[4,5]"`, want: []float64{4, 5}},
		{name: "native floats", raw: []float64{6}, want: []float64{6}},
		{name: "native any", raw: []any{7.0, 8.0}, want: []float64{7, 8}},
		{name: "nil", raw: nil, wantErr: true},
		{name: "empty array", raw: "[]", wantErr: true},
		{name: "object", raw: `{"a":1}`, wantErr: true},
		{name: "strings inside", raw: `["a","b"]`, wantErr: true},
		{name: "mixed", raw: `[1,"b"]`, wantErr: true},
		{name: "triple encoded", raw: `"\"[1]\""`, wantErr: true},
		{name: "garbage", raw: "nope", wantErr: true},
		{name: "unexpected type", raw: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVector(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeVector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrMalformedEmbedding) {
					t.Errorf("error %v is not ErrMalformedEmbedding", err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeVector() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
