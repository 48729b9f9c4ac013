package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Record is the canonical, fixed-schema representation of one ingested
// listing. Scalar attributes live in Fields, boolean equipment flags in
// Features, and gallery URLs in Images. VehicleID and Source are required;
// their concatenation forms the immutable primary key under which the
// record is persisted.
type Record struct {
	// VehicleID is the source-assigned listing id.
	VehicleID string

	// Source names the originating marketplace (e.g. "autoscout24").
	Source string

	// ListingURL is the absolute URL of the listing's detail page.
	ListingURL string

	// Fields holds scalar text/number attributes keyed by canonical name.
	Fields map[string]any

	// Features holds boolean equipment flags. Every known feature name of
	// the source appears here explicitly, true or false.
	Features map[string]bool

	// Images is the ordered list of gallery image URLs.
	Images []string

	// FetchedAt is when this record was assembled.
	FetchedAt time.Time
}

// NewRecord creates an empty Record for the given source.
func NewRecord(source string) *Record {
	return &Record{
		Source:    source,
		Fields:    make(map[string]any),
		Features:  make(map[string]bool),
		FetchedAt: time.Now(),
	}
}

// UniqueID derives the primary key for a (vehicle id, source) pair.
func UniqueID(vehicleID, source string) string {
	return vehicleID + "_" + source
}

// UniqueID returns the record's primary key.
func (r *Record) UniqueID() string {
	return UniqueID(r.VehicleID, r.Source)
}

// Set stores a scalar attribute. Empty values are dropped silently: absence
// is the canonical encoding of "unknown".
func (r *Record) Set(key string, value any) {
	if IsEmptyValue(value) {
		return
	}
	r.Fields[key] = value
}

// Get retrieves a scalar attribute.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// GetString retrieves a scalar attribute rendered as a string.
func (r *Record) GetString(key string) string {
	v, ok := r.Fields[key]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Has reports whether the attribute is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// Delete removes a scalar attribute.
func (r *Record) Delete(key string) {
	delete(r.Fields, key)
}

// Keys returns all scalar attribute names in sorted order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks the invariants every persisted record must satisfy.
func (r *Record) Validate() error {
	if r.VehicleID == "" {
		return fmt.Errorf("%w: vehicle_id", ErrMissingRequired)
	}
	if r.Source == "" {
		return fmt.Errorf("%w: data_source", ErrMissingRequired)
	}
	return nil
}

// EncodedImages serializes the image list as a compact JSON array, the form
// in which it is persisted. An empty list encodes as "[]".
func (r *Record) EncodedImages() string {
	if len(r.Images) == 0 {
		return "[]"
	}
	b, err := json.Marshal(r.Images)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Stringify renders a scalar JSON value as a string. Floats that carry an
// integral value (the usual fate of numeric ids after JSON decoding) are
// rendered without a fractional part.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// IsEmptyValue reports whether a decoded value counts as "unknown" and must
// never enter a canonical record: nil, empty string, empty list or mapping,
// and the sentinel strings "N/A" and "unknown".
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == "" || val == "N/A" || val == "unknown"
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case RawItem:
		return len(val) == 0
	default:
		return false
	}
}
