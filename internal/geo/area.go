package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/leadmap/internal/model"
)

// DegreesPerKM is an approximate conversion factor for latitude degrees to kilometers.
// At mid-latitudes, 1 degree of latitude is approximately 111 km.
const DegreesPerKM = 1.0 / 111.0

// minCosLat keeps longitude spans finite near the poles.
const minCosLat = 0.01

// Area is a validated search rectangle. Areas crossing the antimeridian are
// not supported.
type Area struct {
	bounds *geom.Bounds
}

// NewArea validates b and returns the corresponding Area.
func NewArea(b model.Bounds) (*Area, error) {
	switch {
	case b.South < -90 || b.North > 90:
		return nil, eris.Errorf("geo: latitude out of range (south %.6f, north %.6f)", b.South, b.North)
	case b.West < -180 || b.East > 180:
		return nil, eris.Errorf("geo: longitude out of range (west %.6f, east %.6f)", b.West, b.East)
	case b.North <= b.South:
		return nil, eris.New("geo: north must be greater than south")
	case b.East <= b.West:
		return nil, eris.New("geo: east must be greater than west")
	}

	return &Area{
		bounds: geom.NewBounds(geom.XY).Set(b.West, b.South, b.East, b.North),
	}, nil
}

// Bounds returns the rectangle as map bounds.
func (a *Area) Bounds() model.Bounds {
	return model.Bounds{
		West:  a.bounds.Min(0),
		South: a.bounds.Min(1),
		East:  a.bounds.Max(0),
		North: a.bounds.Max(1),
	}
}

// Contains reports whether p lies inside the area, edges included.
func (a *Area) Contains(p model.LatLng) bool {
	return a.bounds.OverlapsPoint(geom.XY, geom.Coord{p.Lng, p.Lat})
}

// HeightKM is the north-south extent in kilometers.
func (a *Area) HeightKM() float64 {
	return (a.bounds.Max(1) - a.bounds.Min(1)) / DegreesPerKM
}

// WidthKM is the east-west extent in kilometers measured at the middle latitude.
func (a *Area) WidthKM() float64 {
	return (a.bounds.Max(0) - a.bounds.Min(0)) / DegreesPerKM * a.cosMidLat()
}

func (a *Area) cosMidLat() float64 {
	mid := (a.bounds.Min(1) + a.bounds.Max(1)) / 2
	return math.Max(math.Cos(mid*math.Pi/180), minCosLat)
}

// Tiles splits the area into a grid of equal sub-rectangles no taller or
// wider than maxSpanKM. The grid is coarsened until it has at most maxTiles
// cells; maxSpanKM <= 0 or maxTiles <= 1 yields the whole area as one tile.
// Tiles are ordered row by row from the south-west corner.
func (a *Area) Tiles(maxSpanKM float64, maxTiles int) []model.Bounds {
	if maxSpanKM <= 0 || maxTiles <= 1 {
		return []model.Bounds{a.Bounds()}
	}

	rows := int(math.Ceil(a.HeightKM() / maxSpanKM))
	cols := int(math.Ceil(a.WidthKM() / maxSpanKM))
	rows, cols = max(rows, 1), max(cols, 1)
	for rows*cols > maxTiles {
		if rows >= cols {
			rows--
		} else {
			cols--
		}
	}

	b := a.Bounds()
	latStep := (b.North - b.South) / float64(rows)
	lngStep := (b.East - b.West) / float64(cols)

	tiles := make([]model.Bounds, 0, rows*cols)
	for r := 0; r < rows; r++ {
		south := b.South + float64(r)*latStep
		north := south + latStep
		if r == rows-1 {
			north = b.North
		}
		for c := 0; c < cols; c++ {
			west := b.West + float64(c)*lngStep
			east := west + lngStep
			if c == cols-1 {
				east = b.East
			}
			tiles = append(tiles, model.Bounds{North: north, South: south, East: east, West: west})
		}
	}
	return tiles
}
