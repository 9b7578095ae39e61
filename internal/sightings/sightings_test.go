package sightings

import (
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func TestAddAndList(t *testing.T) {
	s := newStore(t)

	added, err := s.Add(Sighting{
		CatName:       "Oreo",
		UserName:      "sam",
		Caption:       "Spotted near the library",
		Lat:           ptr(43.0731),
		Lng:           ptr(-89.4012),
		Confidence:    ptr(0.92),
		ImageChecksum: "abc123",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if added.ID == 0 {
		t.Fatal("Add did not assign an ID")
	}
	if added.CreatedAt.IsZero() {
		t.Fatal("Add did not set CreatedAt")
	}

	list, total, err := s.List(0, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("total=%d len=%d, want 1/1", total, len(list))
	}
	got := list[0]
	if got.CatName != "Oreo" || got.Caption != "Spotted near the library" {
		t.Fatalf("unexpected sighting: %+v", got)
	}
	if got.Lat == nil || *got.Lat != 43.0731 {
		t.Fatalf("lat = %v", got.Lat)
	}
	if got.ImageChecksum != "abc123" {
		t.Fatalf("imageChecksum = %q", got.ImageChecksum)
	}
}

func TestListNewestFirstAndPaginated(t *testing.T) {
	s := newStore(t)

	for _, caption := range []string{"first", "second", "third"} {
		if _, err := s.Add(Sighting{Caption: caption}); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := s.List(2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(page) != 2 || page[0].Caption != "third" || page[1].Caption != "second" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, _, err = s.List(2, 2)
	if err != nil {
		t.Fatalf("List offset failed: %v", err)
	}
	if len(page) != 1 || page[0].Caption != "first" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestListLimitClamped(t *testing.T) {
	s := newStore(t)
	if _, err := s.Add(Sighting{Caption: "only"}); err != nil {
		t.Fatal(err)
	}

	// Out-of-range limits fall back to the default instead of erroring.
	for _, limit := range []int{-5, 0, 500} {
		if _, _, err := s.List(limit, 0); err != nil {
			t.Fatalf("List(%d) failed: %v", limit, err)
		}
	}
}

func TestSeedLocationsIdempotent(t *testing.T) {
	s := newStore(t)

	seed := []Location{
		{Name: "Oreo", Lat: 1.0, Lng: 2.0, Description: "Student union"},
		{Name: "Twix", Lat: 3.0, Lng: 4.0, Description: "Engineering quad"},
	}
	if err := s.SeedLocations(seed); err != nil {
		t.Fatalf("SeedLocations failed: %v", err)
	}

	// A second seed with different coordinates must keep existing rows.
	if err := s.SeedLocations([]Location{{Name: "Oreo", Lat: 9.0, Lng: 9.0}}); err != nil {
		t.Fatalf("second SeedLocations failed: %v", err)
	}

	locs, err := s.Locations()
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("got %d locations, want 2", len(locs))
	}
	if locs[0].Name != "Oreo" || locs[0].Lat != 1.0 {
		t.Fatalf("seed was overwritten: %+v", locs[0])
	}
}

func TestLocationsRefreshFromLatestSighting(t *testing.T) {
	s := newStore(t)

	if err := s.SeedLocations([]Location{{Name: "Oreo", Lat: 1.0, Lng: 2.0}}); err != nil {
		t.Fatal(err)
	}

	// Sightings without coordinates must not move the pin.
	if _, err := s.Add(Sighting{CatName: "Oreo", Caption: "indoors"}); err != nil {
		t.Fatal(err)
	}
	locs, err := s.Locations()
	if err != nil {
		t.Fatal(err)
	}
	if locs[0].Lat != 1.0 || locs[0].LastSeen != nil {
		t.Fatalf("pin moved without coordinates: %+v", locs[0])
	}

	if _, err := s.Add(Sighting{CatName: "Oreo", Caption: "by the fountain", Lat: ptr(43.07), Lng: ptr(-89.40)}); err != nil {
		t.Fatal(err)
	}
	locs, err = s.Locations()
	if err != nil {
		t.Fatal(err)
	}
	if locs[0].Lat != 43.07 || locs[0].Lng != -89.40 {
		t.Fatalf("pin did not follow the latest sighting: %+v", locs[0])
	}
	if locs[0].LastSeen == nil {
		t.Fatal("LastSeen not set after a coordinate-bearing sighting")
	}
}
