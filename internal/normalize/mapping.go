package normalize

import (
	"strings"

	"github.com/carhound/carhound/internal/types"
)

// FieldMapping is a static rename/drop table applied to a record's scalar
// attributes. A non-empty target renames the field to its canonical name;
// an empty target drops the field entirely. Rename and drop are mutually
// exclusive per field.
type FieldMapping map[string]string

// Apply rewrites the record's fields through the table. A rename never
// overwrites an attribute that is already set under the target name.
func (m FieldMapping) Apply(rec *types.Record) {
	for old, target := range m {
		v, ok := rec.Get(old)
		if !ok {
			continue
		}
		rec.Delete(old)
		if target == "" {
			continue
		}
		if !rec.Has(target) {
			rec.Set(target, v)
		}
	}
}

// autoscoutMapping maps autoscout24's payload keys (flattened search-result
// keys and camelCase detail keys) onto the canonical vocabulary.
var autoscoutMapping = FieldMapping{
	// Search-result flatten
	"vehicle_make":              "make",
	"vehicle_model":             "model",
	"vehicle_modelVersionInput": "model_version",
	"vehicle_articleType":       "",
	"location_zip":              "postal_code",
	"location_city":             "city",
	"location_street":           "street",
	"location_countryCode":      "country_code",

	// Per-listing detail rows (labels pre-translated from German)
	"vehicle_detail_mileage":            "mileage_display",
	"vehicle_detail_transmission":       "transmission",
	"vehicle_detail_first_registration": "first_registration",
	"vehicle_detail_fuel":               "fuel_type",
	"vehicle_detail_power":              "power_display",
	"vehicle_detail_fuel_consumption":   "fuel_consumption_combined",
	"vehicle_detail_co2_emission":       "co2_emission",

	// Detail payload (vehicle object)
	"modelVersionInput":        "model_version",
	"modelOrLineId":            "model_or_line_id",
	"bodyType":                 "body_type",
	"firstRegistrationDate":    "first_registration_date",
	"firstRegistrationDateRaw": "first_registration_raw",
	"productionYear":           "production_year",
	"mileageInKmRaw":           "mileage_km",
	"mileageInKm":              "mileage_in_km",
	"fuelCategory":             "fuel_category",
	"primaryFuel":              "primary_fuel",
	"transmissionType":         "transmission_type",
	"driveTrain":               "drive_train",
	"powerInKw":                "power_kw",
	"powerInHp":                "power_hp",
	"rawPowerInKw":             "power_kw_display",
	"rawPowerInHp":             "power_hp_display",
	"rawDisplacementInCCM":     "displacement_ccm",
	"displacementInCCM":        "displacement_display",
	"numberOfSeats":            "seats",
	"numberOfDoors":            "doors",
	"bodyColor":                "color",
	"bodyColorOriginal":        "color_original",
	"paintType":                "paint_type",
	"upholsteryColor":          "upholstery_color",
	"interiorColor":            "interior_color",
	"hadAccident":              "had_accident",
	"numberOfPreviousOwners":   "previous_owners",
	"hasFullServiceHistory":    "full_service_history",
	"newHuAu":                  "new_inspection",
	"offerType":                "offer_type",
	"countryVersion":           "country_version",
	"co2emissionInGramPerKm":   "co2_emission_combined",
	"combinedConsumption":      "consumption_combined",
	"energyConsumption":        "energy_consumption",
	"fuelPrice":                "fuel_price",
	"vehicleTax":               "vehicle_tax",
	"engineType":               "engine_type",
	"otherEnergySource":        "other_energy_source",
	"envkv":                    "",
	"hsnTsn":                   "hsn_tsn",
	"licencePlate":             "license_plate",
	"noVat":                    "",
	"taxDeductible":            "",
	"availability":             "",
	"availabilityType":         "",
}

// mobileMapping maps mobile.de's attr_* shorthand and envkv keys onto the
// canonical vocabulary; entries mapped to "" carry no information beyond
// fields already present and are dropped.
var mobileMapping = FieldMapping{
	"attr_cn":       "country_code",
	"attr_z":        "postal_code",
	"attr_loc":      "city",
	"attr_fr":       "first_registration",
	"attr_pw":       "power_hp",
	"attr_ft":       "fuel_type",
	"attr_ml":       "mileage_display",
	"attr_cc":       "displacement_display",
	"attr_tr":       "transmission_type",
	"attr_gi":       "last_inspection",
	"attr_ecol":     "color",
	"attr_door":     "doors",
	"attr_sc":       "seats",
	"attr_co2class": "co2_class",
	"attr_eu":       "country_version",

	"hu":                            "last_inspection",
	"envkv.energyConsumption":       "fuel_consumption_combined",
	"envkv.co2Emissions":            "co2_emission",
	"envkv.consumptionDetails.fuel": "",
	"envkv.emission":                "",
	"attr_csmpt":                    "",
	"attr_emiss":                    "",
	"availability":                  "",
	"countryVersion":                "",
	"envkv.co2Class":                "",
	"envkv.consumption":             "",

	"vehicle_make":              "make",
	"vehicle_model":             "model",
	"vehicle_modelVersionInput": "model_version",

	"sellerType":      "",
	"segment":         "",
	"vehicleCategory": "vehicle_type",
}

// canonicalFields is the fixed scalar vocabulary of the persisted schema.
// Fields not listed here and not covered by an allowed prefix are dropped
// after mapping: an open-ended dynamic payload never leaks into the
// canonical record.
var canonicalFields = map[string]struct{}{}

// canonicalPrefixes admit whole flattened families that are part of the
// schema (tracking metadata keeps its source-assigned suffixes).
var canonicalPrefixes = []string{
	"tracking_",
	"consumption_",
	"co2_",
	"battery_",
	"electric_",
	"wltp_",
}

func init() {
	for _, name := range []string{
		"vehicle_id", "data_source", "listing_url", "title", "subtitle",
		"price", "price_text", "price_info", "price_label", "make", "model",
		"model_version", "model_range", "model_or_line_id", "trim_line",
		"vehicle_type", "category", "body_type", "type", "sku", "hsn_tsn",
		"identifier", "condition", "offer_type", "damage_condition",
		"had_accident", "previous_owners", "full_service_history",
		"new_inspection", "last_inspection", "next_inspection",
		"first_registration", "first_registration_raw",
		"first_registration_date", "production_year", "construction_year",
		"mileage_km", "mileage_display", "mileage_detail", "mileage_in_km",
		"power_kw", "power_hp", "power_display", "power_kw_display",
		"power_hp_display", "displacement_ccm", "displacement_display",
		"cylinders", "gears", "weight", "net_weight", "fuel_type",
		"fuel_category", "primary_fuel", "transmission", "transmission_type",
		"drive_train", "fuel_consumption_combined", "fuel_consumption_urban",
		"fuel_consumption_extra_urban", "co2_emission", "co2_emission_combined",
		"co2_class", "emission_sticker", "emission_standard", "energy_consumption",
		"fuel_price", "vehicle_tax", "engine_type", "other_energy_source",
		"seats", "doors", "color", "color_original", "manufacturer_color",
		"paint_type", "upholstery", "upholstery_color", "interior",
		"interior_color", "interior_type", "country_version", "country_code",
		"postal_code", "city", "street", "seller_name", "license_plate",
		"description", "vc", "wltp",
	} {
		canonicalFields[name] = struct{}{}
	}
}

// applyVocabulary drops every scalar field outside the canonical schema.
func applyVocabulary(rec *types.Record) {
	for _, key := range rec.Keys() {
		if _, ok := canonicalFields[key]; ok {
			continue
		}
		if hasCanonicalPrefix(key) {
			continue
		}
		rec.Delete(key)
	}
}

func hasCanonicalPrefix(key string) bool {
	for _, p := range canonicalPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
