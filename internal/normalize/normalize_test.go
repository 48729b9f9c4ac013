package normalize

import (
	"testing"

	"github.com/carhound/carhound/internal/types"
)

func autoscoutSearchItem() types.RawItem {
	return types.RawItem{
		"id":  "abc123",
		"url": "/angebote/toyota-corolla",
		"price": map[string]any{
			"priceFormatted": "€ 19.990,-",
		},
		"images": []any{
			"https://img.example/1.jpg",
			"https://img.example/2.jpg",
		},
		"vehicle": map[string]any{
			"make":              "Toyota",
			"model":             "Corolla",
			"modelVersionInput": "1.8 Hybrid",
			"articleType":       "c",
		},
		"location": map[string]any{
			"zip":  "10115",
			"city": "Berlin",
		},
		"seller": map[string]any{
			"contactName": "Autohaus Mitte",
		},
		"tracking": map[string]any{
			"price":        "19990",
			"order_bucket": float64(2),
		},
		"trackingParameters": []any{
			map[string]any{"key": "tier", "value": "premium"},
		},
		"vehicleDetails": []any{
			map[string]any{"ariaLabel": "Kilometerstand", "data": "45.000 km"},
			map[string]any{"ariaLabel": "Getriebe", "data": "Automatik"},
		},
	}
}

func TestAutoScoutSearchResult(t *testing.T) {
	n := NewAutoScoutNormalizer("https://www.autoscout24.de")

	rec, err := n.SearchResult(autoscoutSearchItem())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.VehicleID != "abc123" {
		t.Errorf("unexpected vehicle id: %s", rec.VehicleID)
	}
	if rec.Source != "autoscout24" {
		t.Errorf("unexpected source: %s", rec.Source)
	}
	if rec.ListingURL != "https://www.autoscout24.de/angebote/toyota-corolla" {
		t.Errorf("unexpected listing url: %s", rec.ListingURL)
	}
	if len(rec.Images) != 2 {
		t.Errorf("expected 2 images, got %d", len(rec.Images))
	}
	if got := rec.GetString("vehicle_make"); got != "Toyota" {
		t.Errorf("expected vehicle_make=Toyota, got %q", got)
	}
	if got := rec.GetString("vehicle_detail_mileage"); got != "45.000 km" {
		t.Errorf("unexpected mileage detail: %q", got)
	}
	if got := rec.GetString("tracking_tier"); got != "premium" {
		t.Errorf("unexpected tracking field: %q", got)
	}
	// The tracking object flattens alongside the parameter pairs.
	if got := rec.GetString("tracking_price"); got != "19990" {
		t.Errorf("expected tracking object flattened, got %q", got)
	}
	if got := rec.GetString("tracking_order_bucket"); got != "2" {
		t.Errorf("expected tracking object flattened, got %q", got)
	}
}

func TestAutoScoutSearchResultMissingID(t *testing.T) {
	n := NewAutoScoutNormalizer("https://www.autoscout24.de")

	item := autoscoutSearchItem()
	delete(item, "id")
	if _, err := n.SearchResult(item); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestAutoScoutFinalize(t *testing.T) {
	n := NewAutoScoutNormalizer("https://www.autoscout24.de")

	rec, err := n.SearchResult(autoscoutSearchItem())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n.Finalize(rec)

	if got := rec.GetString("title"); got != "Toyota Corolla 1.8 Hybrid" {
		t.Errorf("unexpected title: %q", got)
	}
	if got := rec.GetString("make"); got != "Toyota" {
		t.Errorf("expected make=Toyota, got %q", got)
	}
	if got := rec.GetString("postal_code"); got != "10115" {
		t.Errorf("expected postal_code=10115, got %q", got)
	}
	if got := rec.GetString("mileage_display"); got != "45.000 km" {
		t.Errorf("expected mileage_display, got %q", got)
	}
	if rec.Has("vehicle_make") {
		t.Error("expected vehicle_make to be renamed away")
	}
	if rec.Has("vehicle_articleType") {
		t.Error("expected vehicle_articleType to be dropped")
	}
	// Tracking fields survive the vocabulary by prefix.
	if !rec.Has("tracking_tier") {
		t.Error("expected tracking_tier to survive")
	}
}

func TestAutoScoutFeatureVocabularyGrows(t *testing.T) {
	n := NewAutoScoutNormalizer("https://www.autoscout24.de")

	detailWith := func(names ...string) types.RawItem {
		var entries []any
		for _, name := range names {
			entries = append(entries, map[string]any{
				"id": map[string]any{"formatted": name},
			})
		}
		return types.RawItem{
			"vehicle": map[string]any{
				"rawData": map[string]any{
					"equipment": map[string]any{"as24": entries},
				},
			},
		}
	}

	rec1, err := n.SearchResult(autoscoutSearchItem())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n.EnrichDetail(rec1, detailWith("Klimaanlage", "Navigationssystem"))

	if len(rec1.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(rec1.Features))
	}
	if !rec1.Features["Klimaanlage"] || !rec1.Features["Navigationssystem"] {
		t.Errorf("expected both features true: %v", rec1.Features)
	}

	rec2, err := n.SearchResult(autoscoutSearchItem())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n.EnrichDetail(rec2, detailWith("Anhängerkupplung"))

	// The vocabulary grew; the later record carries all known names.
	if len(rec2.Features) != 3 {
		t.Fatalf("expected 3 features, got %d: %v", len(rec2.Features), rec2.Features)
	}
	if rec2.Features["Klimaanlage"] {
		t.Error("expected Klimaanlage=false on the second record")
	}
	if !rec2.Features["Anhängerkupplung"] {
		t.Error("expected Anhängerkupplung=true on the second record")
	}
}

func TestAutoScoutCostModel(t *testing.T) {
	n := NewAutoScoutNormalizer("https://www.autoscout24.de")

	rec, err := n.SearchResult(autoscoutSearchItem())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	detail := types.RawItem{
		"vehicle": map[string]any{
			"costModel": map[string]any{
				"energyConsumption": "5,2 l/100km",
				"fuelPrice":         "1,85 €/l",
				"vehicleTax":        "155 €/Jahr",
			},
		},
	}
	n.EnrichDetail(rec, detail)
	n.Finalize(rec)

	if got := rec.GetString("energy_consumption"); got != "5,2 l/100km" {
		t.Errorf("expected energy_consumption, got %q", got)
	}
	if got := rec.GetString("fuel_price"); got != "1,85 €/l" {
		t.Errorf("expected fuel_price, got %q", got)
	}
	if got := rec.GetString("vehicle_tax"); got != "155 €/Jahr" {
		t.Errorf("expected vehicle_tax, got %q", got)
	}
	if rec.Has("costModel") {
		t.Error("expected no costModel container field")
	}
}

func TestMobileSearchResultAndFinalize(t *testing.T) {
	n := NewMobileNormalizer("https://suchen.mobile.de")

	raw := types.RawItem{
		"id":          float64(4242),
		"relativeUrl": "/fahrzeuge/details.html?id=4242",
		"title":       "BMW 320d Touring",
		"vc":          "Car",
		"category":    "EstateCar",
		"price": map[string]any{
			"gross": "15.900 €",
		},
		"contactInfo": map[string]any{
			"name": "Autohaus Nord",
		},
		"attr": map[string]any{
			"fr":   "06/2019",
			"ml":   "88.000 km",
			"ft":   "Diesel",
			"ecol": "Schwarz",
		},
	}

	rec, err := n.SearchResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.VehicleID != "4242" {
		t.Errorf("expected numeric id rendered as string, got %q", rec.VehicleID)
	}
	if rec.ListingURL != "https://suchen.mobile.de/fahrzeuge/details.html?id=4242" {
		t.Errorf("unexpected listing url: %s", rec.ListingURL)
	}

	n.Finalize(rec)

	if got := rec.GetString("first_registration"); got != "06/2019" {
		t.Errorf("expected attr_fr renamed, got %q", got)
	}
	if got := rec.GetString("mileage_display"); got != "88.000 km" {
		t.Errorf("expected attr_ml renamed, got %q", got)
	}
	if got := rec.GetString("color"); got != "Schwarz" {
		t.Errorf("expected attr_ecol renamed, got %q", got)
	}
	if got := rec.GetString("title"); got != "BMW 320d Touring" {
		t.Errorf("expected search title kept, got %q", got)
	}
	if got := rec.GetString("seller_name"); got != "Autohaus Nord" {
		t.Errorf("unexpected seller name: %q", got)
	}
}

func TestMobileEnrichDetail(t *testing.T) {
	n := NewMobileNormalizer("https://suchen.mobile.de")

	rec, err := n.SearchResult(types.RawItem{
		"id":          "77",
		"relativeUrl": "/fahrzeuge/details.html?id=77",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	detail := types.RawItem{
		"make":     "Volkswagen",
		"model":    "Golf",
		"subTitle": "2.0 TDI Life",
		"attributes": []any{
			map[string]any{"tag": "mileage", "value": "12.000 km"},
			map[string]any{"tag": "airbag", "value": "Front-Airbags"},
		},
		"htmlDescription": "<p>Scheckheftgepflegt.</p><p>Garagenwagen.</p>",
		"galleryImages": []any{
			map[string]any{
				"srcSet": "https://img.example/s.jpg 320w, https://img.example/l.jpg 1024w",
			},
		},
		"features": []any{"Klimaautomatik", "Sitzheizung"},
	}
	n.EnrichDetail(rec, detail)
	n.Finalize(rec)

	// The mileage tag duplicates the search result shorthand and is skipped.
	if rec.Has("mileage") {
		t.Error("expected mileage tag to be skipped")
	}
	if got := rec.GetString("title"); got != "Volkswagen Golf 2.0 TDI Life" {
		t.Errorf("unexpected derived title: %q", got)
	}
	if got := rec.GetString("description"); got != "Scheckheftgepflegt.\nGaragenwagen." {
		t.Errorf("unexpected description: %q", got)
	}
	if len(rec.Images) != 1 || rec.Images[0] != "https://img.example/l.jpg" {
		t.Errorf("expected largest rendition, got %v", rec.Images)
	}
	if !rec.Features["Klimaautomatik"] || !rec.Features["Sitzheizung"] {
		t.Errorf("expected features present: %v", rec.Features)
	}
}

func TestFieldMappingApply(t *testing.T) {
	rec := types.NewRecord("test")
	rec.VehicleID = "1"
	rec.Set("old_name", "value")
	rec.Set("gone", "x")
	rec.Set("taken", "original")
	rec.Set("other", "second")

	m := FieldMapping{
		"old_name": "new_name",
		"gone":     "",
		"other":    "taken",
	}
	m.Apply(rec)

	if got := rec.GetString("new_name"); got != "value" {
		t.Errorf("expected rename, got %q", got)
	}
	if rec.Has("old_name") || rec.Has("gone") || rec.Has("other") {
		t.Errorf("expected source fields removed: %v", rec.Fields)
	}
	// A rename never clobbers an existing target.
	if got := rec.GetString("taken"); got != "original" {
		t.Errorf("expected taken to keep its value, got %q", got)
	}
}

func TestFlattenHTML(t *testing.T) {
	in := "<div><p>First &amp; foremost.</p><ul><li>One</li><li>Two</li></ul><script>ignored()</script></div>"
	want := "First & foremost.\nOne\nTwo"
	if got := FlattenHTML(in); got != want {
		t.Errorf("FlattenHTML = %q, want %q", got, want)
	}

	if got := FlattenHTML(""); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
	if got := FlattenHTML("plain text"); got != "plain text" {
		t.Errorf("expected plain text unchanged, got %q", got)
	}
}

func TestFeatureSetSnapshotSorted(t *testing.T) {
	fs := NewFeatureSet("b")
	fs.Add([]string{"c", "a", ""})

	got := fs.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 names, got %v", got)
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("expected sorted names, got %v", got)
	}
	if fs.Len() != 3 {
		t.Errorf("expected Len=3, got %d", fs.Len())
	}
}

func TestLargestSrc(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://a/s.jpg 320w, https://a/l.jpg 1024w", "https://a/l.jpg"},
		{"https://a/only.jpg", "https://a/only.jpg"},
		{"", ""},
	}
	for _, c := range cases {
		if got := largestSrc(c.in); got != c.want {
			t.Errorf("largestSrc(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
