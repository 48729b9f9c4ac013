package types

import (
	"errors"
	"testing"
)

func TestUniqueID(t *testing.T) {
	if got := UniqueID("12345", "autoscout24"); got != "12345_autoscout24" {
		t.Errorf("unexpected unique id: %s", got)
	}

	rec := NewRecord("mobile")
	rec.VehicleID = "987"
	if got := rec.UniqueID(); got != "987_mobile" {
		t.Errorf("unexpected unique id: %s", got)
	}
}

func TestSetDropsEmptyValues(t *testing.T) {
	rec := NewRecord("autoscout24")

	rec.Set("make", "Toyota")
	rec.Set("note", "")
	rec.Set("color", "N/A")
	rec.Set("fuel_type", "unknown")
	rec.Set("owners", nil)
	rec.Set("tags", []any{})
	rec.Set("meta", map[string]any{})

	if len(rec.Fields) != 1 {
		t.Fatalf("expected 1 field, got %d: %v", len(rec.Fields), rec.Fields)
	}
	if got := rec.GetString("make"); got != "Toyota" {
		t.Errorf("expected make=Toyota, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	rec := NewRecord("autoscout24")
	if err := rec.Validate(); !errors.Is(err, ErrMissingRequired) {
		t.Errorf("expected ErrMissingRequired for empty vehicle id, got %v", err)
	}

	rec.VehicleID = "1"
	if err := rec.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	rec.Source = ""
	if err := rec.Validate(); !errors.Is(err, ErrMissingRequired) {
		t.Errorf("expected ErrMissingRequired for empty source, got %v", err)
	}
}

func TestEncodedImages(t *testing.T) {
	rec := NewRecord("mobile")
	if got := rec.EncodedImages(); got != "[]" {
		t.Errorf("expected empty array, got %s", got)
	}

	rec.Images = []string{"https://img.example/1.jpg", "https://img.example/2.jpg"}
	want := `["https://img.example/1.jpg","https://img.example/2.jpg"]`
	if got := rec.EncodedImages(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{true, "true"},
		{float64(12345), "12345"},
		{float64(1.5), "1.5"},
		{42, "42"},
		{int64(7), "7"},
	}
	for _, c := range cases {
		if got := Stringify(c.in); got != c.want {
			t.Errorf("Stringify(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRawItemAccessors(t *testing.T) {
	raw := RawItem{
		"id":    float64(123456),
		"price": map[string]any{"gross": "19.990 €"},
		"tags":  []any{"a", "b", float64(3)},
		"nested": map[string]any{
			"inner": map[string]any{"leaf": map[string]any{"x": "y"}},
		},
	}

	if got := raw.String("id"); got != "123456" {
		t.Errorf("expected numeric id rendered as string, got %q", got)
	}
	if got := raw.Map("price").String("gross"); got != "19.990 €" {
		t.Errorf("unexpected nested value: %q", got)
	}
	if got := raw.StringList("tags"); len(got) != 3 || got[2] != "3" {
		t.Errorf("unexpected string list: %v", got)
	}
	if got := raw.Path("nested", "inner", "leaf"); got.String("x") != "y" {
		t.Errorf("unexpected path result: %v", got)
	}
	if got := raw.Path("nested", "missing", "leaf"); got != nil {
		t.Errorf("expected nil for broken path, got %v", got)
	}
}
