// Package zones loads the polygon zone configuration and answers
// point-containment queries against it in live frame coordinates.
package zones

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"

	"gocv.io/x/gocv"
)

// ErrConfigMissing is returned when the zone file does not exist. This is
// fatal at engine start: zones must be defined before detection can run.
var ErrConfigMissing = errors.New("zone config missing")

// fileSchema is the on-disk format, vertex coordinates relative to the
// reference resolution the zones were drawn at.
type fileSchema struct {
	ReferenceWidth  int                `json:"reference_width"`
	ReferenceHeight int                `json:"reference_height"`
	Zones           map[string][][]int `json:"zones"`
}

// Zone is a named polygon. Vertices are integer pixel coordinates in the
// coordinate space of the Map that owns the zone.
type Zone struct {
	Name   string
	Points []image.Point

	area float64
	pv   gocv.PointVector
}

// Area returns the polygon area in the zone's coordinate space.
func (z Zone) Area() float64 { return z.area }

// Map is an immutable set of zones in a single coordinate space. Zones are
// ordered by ascending area so that overlap lookups deterministically
// prefer the smallest containing zone.
type Map struct {
	zones     []Zone
	refWidth  int
	refHeight int
}

// Load reads the zone file. The returned map is in reference coordinates;
// call ScaleTo once the live resolution is known.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("read zone config %s: %w", path, err)
	}

	var f fileSchema
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse zone config %s: %w", path, err)
	}
	if f.ReferenceWidth <= 0 || f.ReferenceHeight <= 0 {
		return nil, fmt.Errorf("zone config %s: invalid reference resolution %dx%d",
			path, f.ReferenceWidth, f.ReferenceHeight)
	}
	if len(f.Zones) == 0 {
		return nil, fmt.Errorf("zone config %s: no zones defined", path)
	}

	zs := make([]Zone, 0, len(f.Zones))
	for name, poly := range f.Zones {
		if len(poly) < 3 {
			return nil, fmt.Errorf("zone %q: polygon needs at least 3 points, got %d", name, len(poly))
		}
		pts := make([]image.Point, len(poly))
		for i, v := range poly {
			if len(v) != 2 {
				return nil, fmt.Errorf("zone %q: vertex %d is not an [x,y] pair", name, i)
			}
			pts[i] = image.Pt(v[0], v[1])
		}
		zs = append(zs, newZone(name, pts))
	}
	sortZones(zs)

	return &Map{zones: zs, refWidth: f.ReferenceWidth, refHeight: f.ReferenceHeight}, nil
}

// NewMap builds a map directly from polygons in the given reference
// resolution. Mostly for tests and the zone editor round-trip.
func NewMap(refWidth, refHeight int, polys map[string][]image.Point) (*Map, error) {
	if refWidth <= 0 || refHeight <= 0 {
		return nil, fmt.Errorf("invalid reference resolution %dx%d", refWidth, refHeight)
	}
	zs := make([]Zone, 0, len(polys))
	for name, pts := range polys {
		if len(pts) < 3 {
			return nil, fmt.Errorf("zone %q: polygon needs at least 3 points, got %d", name, len(pts))
		}
		zs = append(zs, newZone(name, append([]image.Point(nil), pts...)))
	}
	sortZones(zs)
	return &Map{zones: zs, refWidth: refWidth, refHeight: refHeight}, nil
}

func newZone(name string, pts []image.Point) Zone {
	return Zone{
		Name:   name,
		Points: pts,
		area:   shoelace(pts),
		pv:     gocv.NewPointVectorFromPoints(pts),
	}
}

func sortZones(zs []Zone) {
	sort.Slice(zs, func(i, j int) bool {
		if zs[i].area != zs[j].area {
			return zs[i].area < zs[j].area
		}
		return zs[i].Name < zs[j].Name
	})
}

// shoelace computes the unsigned polygon area.
func shoelace(pts []image.Point) float64 {
	var sum float64
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += float64(pts[i].X*pts[j].Y - pts[j].X*pts[i].Y)
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

// ScaleTo maps every vertex from the reference resolution to the live
// resolution by independent x/y ratios, once per session. The receiver is
// left untouched; the result owns its own gocv point vectors.
func (m *Map) ScaleTo(liveWidth, liveHeight int) (*Map, error) {
	if liveWidth <= 0 || liveHeight <= 0 {
		return nil, fmt.Errorf("invalid live resolution %dx%d", liveWidth, liveHeight)
	}
	sx := float64(liveWidth) / float64(m.refWidth)
	sy := float64(liveHeight) / float64(m.refHeight)

	zs := make([]Zone, 0, len(m.zones))
	for _, z := range m.zones {
		pts := make([]image.Point, len(z.Points))
		for i, p := range z.Points {
			pts[i] = image.Pt(int(float64(p.X)*sx), int(float64(p.Y)*sy))
		}
		zs = append(zs, newZone(z.Name, pts))
	}
	sortZones(zs)
	return &Map{zones: zs, refWidth: liveWidth, refHeight: liveHeight}, nil
}

// Contain reports the zone holding the point, if any. Boundary points count
// as inside. When zones overlap the smallest-area containing zone wins.
func (m *Map) Contain(pt image.Point) (string, bool) {
	for _, z := range m.zones {
		if gocv.PointPolygonTest(z.pv, pt, false) >= 0 {
			return z.Name, true
		}
	}
	return "", false
}

// Zones returns the zones in lookup order (ascending area).
func (m *Map) Zones() []Zone { return m.zones }

// Zone returns the named zone.
func (m *Map) Zone(name string) (Zone, bool) {
	for _, z := range m.zones {
		if z.Name == name {
			return z, true
		}
	}
	return Zone{}, false
}

// Reference returns the resolution the map's coordinates are expressed in.
func (m *Map) Reference() (int, int) { return m.refWidth, m.refHeight }

// Close releases the native point vectors.
func (m *Map) Close() {
	for i := range m.zones {
		m.zones[i].pv.Close()
	}
	m.zones = nil
}
