package world

import (
	"cmp"
	"math"
	"slices"

	"github.com/talgya/epiworld/internal/agents"
)

// KmPerDegree converts degree deltas to kilometres in the planar model.
const KmPerDegree = 110.25

// PlanarDistance approximates the distance between two cities in km using a
// flat projection with the longitude delta scaled by cos(latitude of a).
// Good enough within a small country; not a geodesic.
func PlanarDistance(a, b *City) float64 {
	x := b.Lat - a.Lat
	y := (b.Lon - a.Lon) * math.Cos(a.Lat*math.Pi/180)
	return KmPerDegree * math.Sqrt(x*x+y*y)
}

// RefreshDistances fills the scratch table with the distance from source to
// every city and sorts it ascending. The source's own entry is +Inf so it is
// never picked while a finite entry matches.
func (c *Country) RefreshDistances(source agents.CityID) error {
	src, err := c.City(source)
	if err != nil {
		return err
	}
	if len(c.Distances) != len(c.Cities) {
		c.Distances = make([]CityDistance, len(c.Cities))
	}
	for i, city := range c.Cities {
		d := math.Inf(1)
		if agents.CityID(i) != source {
			d = PlanarDistance(src, city)
		}
		c.Distances[i] = CityDistance{City: agents.CityID(i), Distance: d}
	}
	slices.SortFunc(c.Distances, func(a, b CityDistance) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return nil
}

// InterpolationSearch returns the slot of the sorted table whose distance best
// approximates target: 0 below the minimum, the last slot above the maximum,
// otherwise the first slot at or beyond target found by interpolation
// guesses. Results are non-decreasing in target and always inside the
// table. It returns -1 for an empty table.
//
// Interpolation runs over the finite prefix only; an infinite tail (the source's
// own slot) is picked only for targets beyond every finite distance.
func InterpolationSearch(target float64, table []CityDistance) int {
	if len(table) == 0 {
		return -1
	}
	last := len(table) - 1
	if math.IsNaN(target) || !(table[0].Distance <= target) {
		return 0
	}

	hi := last
	for hi > 0 && math.IsInf(table[hi].Distance, 1) {
		hi--
	}
	if table[hi].Distance < target {
		return min(hi+1, last)
	}

	left, right := 0, hi
	for left <= right && table[left].Distance < target && table[right].Distance >= target {
		span := table[right].Distance - table[left].Distance
		mid := left + (right-left)/2
		if !math.IsInf(span, 0) && !math.IsNaN(span) && span > 0 {
			mid = left + int((target-table[left].Distance)*float64(right-left)/span)
		}
		switch d := table[mid].Distance; {
		case d > target:
			right = mid - 1
		case d < target:
			left = mid + 1
		default:
			return mid
		}
	}
	if table[left].Distance >= target {
		return left
	}
	// An overshooting guess pulled right below target; every slot past it
	// is beyond target.
	return min(right+1, last)
}
