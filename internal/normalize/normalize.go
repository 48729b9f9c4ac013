package normalize

import (
	"strings"

	"github.com/carhound/carhound/internal/types"
)

// Normalizer converts a marketplace's native payloads into canonical
// records. SearchResult builds the base record from a list-page item;
// EnrichDetail merges the detail payload into it; Finalize applies the
// field mapping and vocabulary. EnrichDetail and Finalize are separate
// steps so a record stays persistable when its detail fetch fails.
type Normalizer interface {
	Source() string
	SearchResult(raw types.RawItem) (*types.Record, error)
	EnrichDetail(rec *types.Record, detail types.RawItem)
	Finalize(rec *types.Record)
}

// AutoScoutNormalizer normalizes autoscout24 payloads.
type AutoScoutNormalizer struct {
	siteURL  string
	features *FeatureSet
}

// NewAutoScoutNormalizer creates the autoscout24 normalizer. siteURL is the
// base against which relative listing URLs resolve.
func NewAutoScoutNormalizer(siteURL string) *AutoScoutNormalizer {
	return &AutoScoutNormalizer{
		siteURL:  strings.TrimSuffix(siteURL, "/"),
		features: NewFeatureSet(),
	}
}

// Source names the marketplace.
func (n *AutoScoutNormalizer) Source() string { return "autoscout24" }

// detailLabels translates the German aria labels of per-listing detail rows
// to canonical names. Unlisted labels keep a slug of the original text.
var detailLabels = map[string]string{
	"kilometerstand":      "mileage",
	"getriebe":            "transmission",
	"erstzulassung":       "first_registration",
	"kraftstoff":          "fuel",
	"leistung":            "power",
	"kraftstoffverbrauch": "fuel_consumption",
	"co₂-emissionen":      "co2_emission",
}

// SearchResult builds the base record from one listing of the feed.
func (n *AutoScoutNormalizer) SearchResult(raw types.RawItem) (*types.Record, error) {
	rec := types.NewRecord(n.Source())
	rec.VehicleID = raw.String("id")

	if u := raw.String("url"); u != "" {
		rec.ListingURL = absoluteURL(n.siteURL, u)
		rec.Set("listing_url", rec.ListingURL)
	}

	if price := raw.Map("price"); price != nil {
		rec.Set("price", price.String("priceFormatted"))
	}

	rec.Images = append(rec.Images, raw.StringList("images")...)

	if vehicle := raw.Map("vehicle"); vehicle != nil {
		for key, value := range vehicle {
			rec.Set("vehicle_"+key, scalarOnly(value))
		}
	}
	if location := raw.Map("location"); location != nil {
		for key, value := range location {
			rec.Set("location_"+key, scalarOnly(value))
		}
	}
	if seller := raw.Map("seller"); seller != nil {
		rec.Set("seller_name", seller.String("contactName"))
	}

	// Tracking metadata arrives twice: a tracking object and a list of
	// {key, value} parameter pairs. Both flatten to tracking_* keys.
	if tracking := raw.Map("tracking"); tracking != nil {
		for key, value := range tracking {
			rec.Set("tracking_"+key, scalarOnly(value))
		}
	}
	for _, entry := range raw.List("trackingParameters") {
		pair, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		p := types.RawItem(pair)
		if key := p.String("key"); key != "" {
			rec.Set("tracking_"+key, p.String("value"))
		}
	}

	// Detail rows arrive as {ariaLabel, data} pairs with German labels.
	for _, entry := range raw.List("vehicleDetails") {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		r := types.RawItem(row)
		label := strings.ToLower(strings.TrimSpace(r.String("ariaLabel")))
		if label == "" {
			continue
		}
		name, ok := detailLabels[label]
		if !ok {
			name = strings.ReplaceAll(label, " ", "_")
		}
		rec.Set("vehicle_detail_"+name, r.String("data"))
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// EnrichDetail merges a listing's __NEXT_DATA__ detail payload.
func (n *AutoScoutNormalizer) EnrichDetail(rec *types.Record, detail types.RawItem) {
	if detail == nil {
		return
	}

	if vehicle := detail.Map("vehicle"); vehicle != nil {
		for key, value := range vehicle {
			switch key {
			case "rawData", "wltp", "costModel":
				continue
			}
			switch v := value.(type) {
			case map[string]any:
				// Formatted dicts carry their display text under "formatted".
				rec.Set(key, types.RawItem(v).String("formatted"))
			default:
				rec.Set(key, scalarOnly(value))
			}
		}
		if wltp := vehicle.Map("wltp"); wltp != nil {
			for key, value := range wltp {
				rec.Set("wltp_"+key, scalarOnly(value))
			}
		}
		// Running-cost figures (energy consumption, fuel price, vehicle
		// tax) are plain scalars under costModel.
		if cost := vehicle.Map("costModel"); cost != nil {
			for key, value := range cost {
				rec.Set(key, scalarOnly(value))
			}
		}

		// Equipment lives under rawData.equipment.as24 as {id: {formatted}}
		// entries. The set of known names grows monotonically across the
		// run; each record emits the full vocabulary, true or false.
		var present []string
		if equipment := vehicle.Path("rawData", "equipment"); equipment != nil {
			for _, entry := range equipment.List("as24") {
				m, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				if name := types.RawItem(m).Path("id").String("formatted"); name != "" {
					present = append(present, name)
				}
			}
		}
		n.features.Add(present)
		has := make(map[string]struct{}, len(present))
		for _, name := range present {
			has[name] = struct{}{}
		}
		for _, name := range n.features.Snapshot() {
			_, ok := has[name]
			rec.Features[name] = ok
		}
	}

	if desc := detail.Map("description"); desc != nil {
		rec.Set("description", FlattenHTML(desc.String("formatted")))
	} else if s := detail.String("description"); s != "" {
		rec.Set("description", FlattenHTML(s))
	}

	if prices := detail.Map("prices"); prices != nil {
		if e := prices.Map("error"); e != nil {
			rec.Set("price_text", e.String("text"))
		}
		if p := prices.Map("public"); p != nil {
			rec.Set("price", p.String("priceFormatted"))
		}
	}

	if ident := detail.Map("identifier"); ident != nil {
		rec.Set("identifier", ident.String("offerReference"))
	}

	if loc := detail.Map("location"); loc != nil {
		rec.Set("postal_code", loc.String("zip"))
		rec.Set("city", loc.String("city"))
		rec.Set("street", loc.String("street"))
		rec.Set("country_code", loc.String("countryCode"))
	}
}

// Finalize derives the title, then applies the field mapping and the
// canonical vocabulary.
func (n *AutoScoutNormalizer) Finalize(rec *types.Record) {
	setTitle(rec, "vehicle_make", "vehicle_model", "vehicle_modelVersionInput")
	autoscoutMapping.Apply(rec)
	applyVocabulary(rec)
}

// MobileNormalizer normalizes mobile.de payloads.
type MobileNormalizer struct {
	siteURL  string
	features *FeatureSet
}

// NewMobileNormalizer creates the mobile.de normalizer.
func NewMobileNormalizer(siteURL string) *MobileNormalizer {
	return &MobileNormalizer{
		siteURL:  strings.TrimSuffix(siteURL, "/"),
		features: NewFeatureSet(),
	}
}

// Source names the marketplace.
func (n *MobileNormalizer) Source() string { return "mobile" }

// skipTags names detail attributes whose values already arrive through the
// search result's attr_* shorthand.
var skipTags = map[string]struct{}{
	"firstRegistration":      {},
	"power":                  {},
	"fuel":                   {},
	"mileage":                {},
	"cubicCapacity":          {},
	"transmission":           {},
	"hu":                     {},
	"doorCount":              {},
	"numSeats":               {},
	"emissionClass":          {},
	"numberOfPreviousOwners": {},
}

// SearchResult builds the base record from one ad of a result page.
func (n *MobileNormalizer) SearchResult(raw types.RawItem) (*types.Record, error) {
	rec := types.NewRecord(n.Source())
	rec.VehicleID = raw.String("id")

	if u := raw.String("relativeUrl"); u != "" {
		rec.ListingURL = absoluteURL(n.siteURL, u)
		rec.Set("listing_url", rec.ListingURL)
	}

	rec.Set("title", raw.String("title"))
	rec.Set("vc", raw.String("vc"))
	rec.Set("category", raw.String("category"))

	if price := raw.Map("price"); price != nil {
		rec.Set("price", price.String("gross"))
	}
	if contact := raw.Map("contactInfo"); contact != nil {
		rec.Set("seller_name", contact.String("name"))
	}
	if attr := raw.Map("attr"); attr != nil {
		for key, value := range attr {
			rec.Set("attr_"+key, scalarOnly(value))
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// EnrichDetail merges an ad's detail payload.
func (n *MobileNormalizer) EnrichDetail(rec *types.Record, detail types.RawItem) {
	if detail == nil {
		return
	}

	rec.Set("vehicle_make", detail.String("make"))
	rec.Set("vehicle_model", detail.String("model"))
	rec.Set("vehicle_modelVersionInput", detail.String("subTitle"))

	// Detail attributes arrive as {tag, value} pairs; tags duplicated by
	// the search result's shorthand are skipped.
	for _, entry := range detail.List("attributes") {
		pair, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		p := types.RawItem(pair)
		tag := p.String("tag")
		if tag == "" {
			continue
		}
		if _, skip := skipTags[tag]; skip {
			continue
		}
		rec.Set(tag, p.String("value"))
	}

	rec.Set("description", FlattenHTML(detail.String("htmlDescription")))

	// Gallery images carry responsive srcSet strings; the last entry of
	// the set is the largest rendition.
	for _, entry := range detail.List("galleryImages") {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if u := largestSrc(types.RawItem(m).String("srcSet")); u != "" {
			rec.Images = append(rec.Images, u)
		}
	}

	present := detail.StringList("features")
	n.features.Add(present)
	has := make(map[string]struct{}, len(present))
	for _, name := range present {
		has[name] = struct{}{}
	}
	for _, name := range n.features.Snapshot() {
		_, ok := has[name]
		rec.Features[name] = ok
	}
}

// Finalize derives the title when the detail payload supplied the make and
// model, then applies the field mapping and the canonical vocabulary.
func (n *MobileNormalizer) Finalize(rec *types.Record) {
	if !rec.Has("title") {
		setTitle(rec, "vehicle_make", "vehicle_model", "vehicle_modelVersionInput")
	}
	mobileMapping.Apply(rec)
	applyVocabulary(rec)
}

// setTitle joins the named fields' values into a title attribute.
func setTitle(rec *types.Record, keys ...string) {
	var parts []string
	for _, key := range keys {
		if v := rec.GetString(key); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		rec.Set("title", strings.Join(parts, " "))
	}
}

// absoluteURL resolves a possibly relative listing URL against the site base.
func absoluteURL(base, u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return base + u
}

// largestSrc picks the URL of the last (largest) rendition out of a
// responsive srcSet string.
func largestSrc(srcSet string) string {
	srcSet = strings.TrimSpace(srcSet)
	if srcSet == "" {
		return ""
	}
	if idx := strings.LastIndex(srcSet, ","); idx >= 0 {
		srcSet = srcSet[idx+1:]
	}
	srcSet = strings.TrimSpace(srcSet)
	if idx := strings.IndexByte(srcSet, ' '); idx >= 0 {
		srcSet = srcSet[:idx]
	}
	return srcSet
}

// scalarOnly passes scalar values through and drops objects and lists, which
// are handled by dedicated extraction paths.
func scalarOnly(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		return nil
	default:
		return v
	}
}
