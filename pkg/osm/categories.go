package osm

import (
	"sort"
	"strings"
)

// Category is a named group of OSM tag filters that POIs are tallied under.
// A key with no values matches any element carrying that key.
type Category struct {
	Name string              `json:"name"`
	Tags map[string][]string `json:"tags"`
}

// CategoryMap maps common category names to OSM tags
var CategoryMap = map[string]map[string][]string{
	"restaurant": {
		"amenity": {"restaurant"},
	},
	"fast_food": {
		"amenity": {"fast_food"},
	},
	"cafe": {
		"amenity": {"cafe"},
	},
	"bar": {
		"amenity": {"bar", "pub"},
	},
	"hotel": {
		"tourism": {"hotel", "motel", "hostel", "guest_house"},
	},
	"park": {
		"leisure": {"park", "garden"},
	},
	"shop": {
		"shop": {},
	},
	"supermarket": {
		"shop": {"supermarket"},
	},
	"hospital": {
		"amenity": {"hospital", "clinic", "doctors"},
	},
	"pharmacy": {
		"amenity": {"pharmacy"},
	},
	"bank": {
		"amenity": {"bank", "atm"},
	},
	"school": {
		"amenity": {"school", "university", "college"},
	},
	"kindergarten": {
		"amenity": {"kindergarten"},
	},
	"library": {
		"amenity": {"library"},
	},
	"museum": {
		"tourism": {"museum", "gallery"},
	},
	"cinema": {
		"amenity": {"cinema", "theatre"},
	},
	"gym": {
		"leisure": {"fitness_centre", "sports_centre"},
	},
	"parking": {
		"amenity": {"parking", "bicycle_parking"},
	},
	"fuel": {
		"amenity": {"fuel"},
	},
	"bus_stop": {
		"highway": {"bus_stop"},
	},
	"train_station": {
		"railway": {"station", "halt", "tram_stop"},
	},
	"charging_station": {
		"amenity": {"charging_station"},
	},
}

// categoryAliases maps user-facing spellings onto CategoryMap keys
var categoryAliases = map[string]string{
	"restaurants":    "restaurant",
	"cafes":          "cafe",
	"bars":           "bar",
	"pub":            "bar",
	"pubs":           "bar",
	"hotels":         "hotel",
	"parks":          "park",
	"shops":          "shop",
	"stores":         "shop",
	"store":          "shop",
	"supermarkets":   "supermarket",
	"hospitals":      "hospital",
	"pharmacies":     "pharmacy",
	"banks":          "bank",
	"atm":            "bank",
	"atms":           "bank",
	"schools":        "school",
	"libraries":      "library",
	"museums":        "museum",
	"gas":            "fuel",
	"gas_station":    "fuel",
	"bus_stops":      "bus_stop",
	"bus_station":    "bus_stop",
	"tram_stop":      "train_station",
	"ev":             "charging_station",
	"ev_charging":    "charging_station",
	"train_stations": "train_station",
}

// DefaultCategoryNames returns every built-in category name in sorted order.
func DefaultCategoryNames() []string {
	names := make([]string, 0, len(CategoryMap))
	for name := range CategoryMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupCategory maps a generic category name to its OSM tag filters.
// Unknown names fall back to an amenity tag with the raw value.
func LookupCategory(name string) Category {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := categoryAliases[key]; ok {
		key = alias
	}
	if tags, ok := CategoryMap[key]; ok {
		return Category{Name: key, Tags: tags}
	}
	return Category{Name: key, Tags: map[string][]string{"amenity": {key}}}
}

// ResolveCategories looks up each name, dropping blanks and duplicates
// while keeping the caller's order. An empty input yields the defaults.
func ResolveCategories(names []string) []Category {
	if len(names) == 0 {
		names = DefaultCategoryNames()
	}
	seen := make(map[string]bool, len(names))
	out := make([]Category, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		c := LookupCategory(n)
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out
}

// CategoryNames returns the names of the given categories in order.
func CategoryNames(cats []Category) []string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}
