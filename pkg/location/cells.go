package location

import (
	"sort"

	"github.com/golang/geo/s2"
)

const (
	MinCellLevel = 2
	MaxCellLevel = 15
)

// CellToken returns the S2 cell token containing lat/lng at level.
func CellToken(lat, lng float64, level int) string {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(level).ToToken()
}

// Cluster is one S2 cell with the number of points that fell in it.
type Cluster struct {
	Token     string  `json:"celda"`
	Latitude  float64 `json:"latitud"`
	Longitude float64 `json:"longitud"`
	Count     int64   `json:"cantidad"`
}

type aggrUnit struct {
	cnt      int64
	lat, lng float64
}

// CellAggregator groups points into S2 cells of one level.
type CellAggregator struct {
	level int
	aggrs map[s2.CellID]*aggrUnit
}

func NewCellAggregator(level int) *CellAggregator {
	if level < MinCellLevel {
		level = MinCellLevel
	}
	if level > MaxCellLevel {
		level = MaxCellLevel
	}
	return &CellAggregator{level: level, aggrs: make(map[s2.CellID]*aggrUnit)}
}

// AddToken adds a point by its stored cell token, falling back to lat/lng when the
// token is missing or coarser than the aggregation level.
func (a *CellAggregator) AddToken(token string, lat, lng float64) {
	id := s2.CellIDFromToken(token)
	if !id.IsValid() || id.Level() < a.level {
		id = s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng))
	}
	parent := id.Parent(a.level)
	u, ok := a.aggrs[parent]
	if !ok {
		u = &aggrUnit{}
		a.aggrs[parent] = u
	}
	u.cnt++
	u.lat, u.lng = lat, lng
}

// Clusters returns cells ordered by count, largest first. A cell holding one point
// is placed on that point instead of the cell centre.
func (a *CellAggregator) Clusters() []Cluster {
	out := make([]Cluster, 0, len(a.aggrs))
	for c, u := range a.aggrs {
		ll := c.LatLng()
		cl := Cluster{Token: c.ToToken(), Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees(), Count: u.cnt}
		if u.cnt == 1 {
			cl.Latitude, cl.Longitude = u.lat, u.lng
		}
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Token < out[j].Token
	})
	return out
}
