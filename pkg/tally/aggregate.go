package tally

import (
	"sort"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/osm"
)

// DistrictStats are the counts of one district. Counts per category are
// the size of the union of element keys over the district's shapes, so
// an element inside two overlapping shapes counts once.
type DistrictStats struct {
	District string         `json:"district"`
	Shapes   int            `json:"shapes"`
	Counted  int            `json:"counted"`
	AreaKm2  float64        `json:"area_km2"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Density  float64        `json:"density_per_km2"`
}

// Aggregate groups results by the district each shape is assigned to now.
// Shapes without a result add to Shapes and AreaKm2 only.
func Aggregate(shapes []annotation.Shape, results map[string]ShapeResult, categories []string) []DistrictStats {
	names := osm.CategoryNames(osm.ResolveCategories(categories))

	type acc struct {
		stats DistrictStats
		keys  map[string]map[string]struct{}
	}
	byDistrict := make(map[string]*acc)
	for _, sh := range shapes {
		district := annotation.NormalizeDistrict(sh.District)
		a, ok := byDistrict[district]
		if !ok {
			a = &acc{
				stats: DistrictStats{District: district, Counts: make(map[string]int, len(names))},
				keys:  make(map[string]map[string]struct{}, len(names)),
			}
			for _, n := range names {
				a.keys[n] = make(map[string]struct{})
			}
			byDistrict[district] = a
		}
		a.stats.Shapes++
		a.stats.AreaKm2 += sh.AreaKm2()

		r, ok := results[sh.ID]
		if !ok {
			continue
		}
		a.stats.Counted++
		for _, n := range names {
			for _, k := range r.Elements[n] {
				a.keys[n][k] = struct{}{}
			}
		}
	}

	out := make([]DistrictStats, 0, len(byDistrict))
	for _, a := range byDistrict {
		for _, n := range names {
			a.stats.Counts[n] = len(a.keys[n])
			a.stats.Total += len(a.keys[n])
		}
		if a.stats.AreaKm2 > 0 {
			a.stats.Density = float64(a.stats.Total) / a.stats.AreaKm2
		}
		out = append(out, a.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].District < out[j].District })
	return out
}

// CategoriesOf returns the sorted category names present in results, or
// the default categories when there are none.
func CategoriesOf(results map[string]ShapeResult) []string {
	seen := make(map[string]struct{})
	for _, r := range results {
		for n := range r.Counts {
			seen[n] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return osm.DefaultCategoryNames()
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
