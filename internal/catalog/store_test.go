package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ispfinder/ispfinder/internal/models"
)

func TestSeedCatalogLoads(t *testing.T) {
	store, err := Seed()
	if err != nil {
		t.Fatalf("Seed() returned error: %v", err)
	}

	if len(store.Cities()) == 0 || len(store.ISPs()) == 0 {
		t.Fatalf("seed catalog is empty: %d cities, %d isps", len(store.Cities()), len(store.ISPs()))
	}

	for _, isp := range store.ISPs() {
		for _, c := range isp.Coverage {
			if _, err := store.City(c.CityID); err != nil {
				t.Errorf("isp %s covers unknown city %s", isp.ID, c.CityID)
			}
		}
		for _, p := range isp.Plans {
			if p.ISPID != isp.ID {
				t.Errorf("plan %s owned by %q, want %q", p.ID, p.ISPID, isp.ID)
			}
		}
	}
}

func TestLookups(t *testing.T) {
	store := mustStore(t, validData())

	city, err := store.City("ktm")
	if err != nil || city.Name != "Kathmandu" {
		t.Fatalf("City(ktm) = %+v, %v", city, err)
	}

	if _, err := store.City("nowhere"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	isp, err := store.ISP("a")
	if err != nil {
		t.Fatalf("ISP(a) returned error: %v", err)
	}
	if isp != &store.ISPs()[0] {
		t.Fatal("ISP should return a pointer into the catalog")
	}

	if _, err := store.ISP("zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Data)
		want   string
	}{
		{"duplicate city", func(d *Data) { d.Cities = append(d.Cities, d.Cities[0]) }, "duplicate city"},
		{"bad coordinates", func(d *Data) { d.Cities[0].Coordinates.Lat = 91 }, "invalid coordinates"},
		{"duplicate isp", func(d *Data) { d.ISPs = append(d.ISPs, d.ISPs[0]) }, "duplicate isp"},
		{"duplicate coverage", func(d *Data) { d.ISPs[0].Coverage = append(d.ISPs[0].Coverage, d.ISPs[0].Coverage[0]) }, "duplicate coverage"},
		{"zero speed", func(d *Data) { d.ISPs[0].Plans[0].Speed = 0 }, "non-positive speed"},
		{"negative price", func(d *Data) { d.ISPs[0].Plans[0].Price = -1 }, "negative price"},
		{"unknown connection", func(d *Data) { d.ISPs[0].Plans[0].ConnectionType = "Carrier pigeon" }, "unknown connection type"},
		{"rating out of range", func(d *Data) { d.ISPs[0].Rating = 5.5 }, "rating"},
		{"coverage out of range", func(d *Data) { d.ISPs[0].Coverage[0].Percentage = 101 }, "coverage for city"},
		{"coverage of unknown city", func(d *Data) {
			d.ISPs[0].Coverage = append(d.ISPs[0].Coverage, models.Coverage{CityID: "atlantis", Percentage: 50})
		}, "unknown city"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			tt.mutate(&data)
			_, err := New(data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"cities": [], "isps": [], "reviews": []}`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	content := `{"cities":[{"id":"ktm","name":"Kathmandu","state":"Bagmati","coordinates":{"lat":27.7,"lng":85.3},"population":1}],"isps":[]}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	store, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if len(store.Cities()) != 1 {
		t.Fatalf("expected 1 city, got %d", len(store.Cities()))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSuggestCities(t *testing.T) {
	store := mustStore(t, Data{Cities: []models.City{
		{ID: "ktm", Name: "Kathmandu", State: "Bagmati"},
		{ID: "ltp", Name: "Lalitpur", State: "Bagmati"},
		{ID: "pkr", Name: "Pokhara", State: "Gandaki"},
		{ID: "bkt", Name: "Bhaktapur", State: "Bagmati"},
	}})

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"substring on name", "pur", 5, []string{"ltp", "bkt"}},
		{"substring on state", "bagmati", 5, []string{"ktm", "ltp", "bkt"}},
		{"limit applies", "bagmati", 2, []string{"ktm", "ltp"}},
		{"case insensitive", "POKH", 5, []string{"pkr"}},
		{"typo falls back to edit distance", "pokara", 5, []string{"pkr"}},
		{"two typos still match", "kathmandoo", 5, []string{"ktm"}},
		{"three typos do not", "ktmandoo", 5, nil},
		{"empty query", "  ", 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.SuggestCities(tt.query, tt.limit)
			var ids []string
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("SuggestCities(%q) = %v, want %v", tt.query, ids, tt.want)
			}
		})
	}
}

func mustStore(t *testing.T, data Data) *Store {
	t.Helper()
	store, err := New(data)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return store
}

func validData() Data {
	return Data{
		Cities: []models.City{
			{ID: "ktm", Name: "Kathmandu", State: "Bagmati", Coordinates: models.Coordinates{Lat: 27.7172, Lng: 85.3240}},
			{ID: "pkr", Name: "Pokhara", State: "Gandaki", Coordinates: models.Coordinates{Lat: 28.2096, Lng: 83.9856}},
		},
		ISPs: []models.ISP{
			{
				ID:     "a",
				Name:   "Alpha",
				Rating: 4,
				Plans: []models.Plan{
					{ID: "a1", Type: models.PlanTypeResidential, ConnectionType: models.ConnectionFiber, Speed: 100, UploadSpeed: 50, Price: 1000},
				},
				Coverage: []models.Coverage{{CityID: "ktm", Percentage: 80}},
			},
		},
	}
}
