package settings

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/imgveil/dbopen"
	"github.com/hazyhaar/imgveil/noise"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db)
}

func TestStoreLoadEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(Defaults()) {
		t.Fatalf("empty store load = %+v, want defaults", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	want := Settings{NoiseType: noise.KindGaussian, Intensity: 37.5}
	if err := s.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Fatalf("load = %+v, want %+v", got, want)
	}
}

func TestStoreSaveNormalizes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Settings{NoiseType: noise.KindUniform, Intensity: 500}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Intensity != MaxIntensity {
		t.Fatalf("intensity = %v, want clamped to %v", got.Intensity, MaxIntensity)
	}
}

func TestStoreLoadCorruptRow(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	s := NewStore(db)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO settings (area, key, value, updated_at) VALUES
		('local', 'noiseType', 'static', 1),
		('local', 'intensity', 'very loud', 1)`)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(Defaults()) {
		t.Fatalf("corrupt rows load = %+v, want defaults", got)
	}
}

func TestStoreIgnoresForeignAreas(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	s := NewStore(db)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO settings (area, key, value, updated_at) VALUES
		('sync', 'noiseType', 'gaussian', 1),
		('sync', 'intensity', '99', 1)`)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(Defaults()) {
		t.Fatalf("foreign-area rows leaked into load: %+v", got)
	}

	v, err := s.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("version = %d, want 0 when only foreign areas exist", v)
	}
}

func TestStoreVersionAdvances(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v0, err := s.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v0 != 0 {
		t.Fatalf("empty version = %d, want 0", v0)
	}

	if err := s.Save(ctx, Defaults()); err != nil {
		t.Fatal(err)
	}
	v1, err := s.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v1 <= v0 {
		t.Fatalf("version did not advance: %d -> %d", v0, v1)
	}

	time.Sleep(2 * time.Millisecond) // token has millisecond resolution
	if err := s.Save(ctx, Settings{NoiseType: noise.KindGaussian, Intensity: 10}); err != nil {
		t.Fatal(err)
	}
	v2, err := s.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v2 <= v1 {
		t.Fatalf("version did not advance: %d -> %d", v1, v2)
	}
}
