package shipwright

import (
	"fmt"
	"sort"
	"strings"

	voxel "nickandperla.net/voxel"
)

const (
	ErosionBin  = "bin"
	ErosionGrey = "grey"
)

// HullConfig tunes the armor hull pass. An empty Erosion skips erosion
// entirely; Smoothing selects sloped armor for exposed cells.
type HullConfig struct {
	Enabled          bool     `toml:"enabled"`
	Erosion          string   `toml:"erosion"`
	Iterations       int      `toml:"iterations"`
	Smoothing        bool     `toml:"smoothing"`
	BaseBlock        string   `toml:"base_block"`
	SlopeBlock       string   `toml:"slope_block"`
	CornerBlock      string   `toml:"corner_block"`
	ObstructionTypes []string `toml:"obstruction_types"`
}

func (c *HullConfig) withDefaults() *HullConfig {
	out := *c
	if out.Iterations <= 0 {
		out.Iterations = 2
	}
	if out.BaseBlock == "" {
		out.BaseBlock = "LargeBlockArmorBlock"
	}
	if out.SlopeBlock == "" {
		out.SlopeBlock = "LargeBlockArmorSlope"
	}
	if out.CornerBlock == "" {
		out.CornerBlock = "LargeBlockArmorCorner"
	}
	if len(out.ObstructionTypes) == 0 {
		out.ObstructionTypes = []string{"thrust", "window"}
	}
	return &out
}

// HullBuilder wraps a built structure in an armor hull: fill the envelope
// around the ship, erode it back toward the ship's silhouette, clear the
// cells that would obstruct thrusters or windows, drop anything left
// disconnected, then pick armor shapes by exposure.
type HullBuilder struct {
	conf *HullConfig
}

func NewHullBuilder(conf *HullConfig) (*HullBuilder, error) {
	if conf == nil {
		return nil, fmt.Errorf("cannot create a HullBuilder with nil config")
	}
	switch conf.Erosion {
	case "", ErosionBin, ErosionGrey:
	default:
		return nil, fmt.Errorf("unrecognized erosion type [%s]; available are [%s %s]",
			conf.Erosion, ErosionBin, ErosionGrey)
	}
	return &HullBuilder{conf: conf.withDefaults()}, nil
}

var hullDirections = []voxel.Vec{
	voxel.V(1, 0, 0), voxel.V(-1, 0, 0),
	voxel.V(0, 1, 0), voxel.V(0, -1, 0),
	voxel.V(0, 0, 1), voxel.V(0, 0, -1),
}

// AddExternalHull adds the hull blocks directly into the structure, so it
// can run only once per ship. Returns the number of armor blocks added.
func (h *HullBuilder) AddExternalHull(st *voxel.Structure) (int, error) {
	min, max, ok := st.BoundingBox()
	if !ok {
		return 0, fmt.Errorf("cannot hull an empty structure")
	}
	ship := make(map[voxel.Vec]bool, st.OccupiedVolume())
	for _, c := range st.OccupiedCells() {
		ship[c] = true
	}

	hull := h.envelope(ship, min, max)
	log.Debugf("hull envelope holds %d cells", len(hull))
	h.erode(ship, hull, min, max)
	log.Debugf("hull holds %d cells after erosion", len(hull))
	h.clearObstructed(st, hull, min, max)
	h.dropDisconnected(st, ship, hull)
	log.Debugf("hull holds %d cells after obstruction and connectivity passes", len(hull))

	filled := make(map[voxel.Vec]bool, len(ship)+len(hull))
	for c := range ship {
		filled[c] = true
	}
	for c := range hull {
		filled[c] = true
	}

	added := 0
	for _, c := range sortedCells(hull) {
		n := 0
		for _, d := range hullDirections {
			if filled[c.Add(d)] {
				n++
			}
		}
		blockType := h.conf.BaseBlock
		if h.conf.Smoothing {
			blockType = h.armorType(n)
		}
		b := &voxel.Block{
			Type:        blockType,
			Origin:      c,
			Orientation: hullOrientation(c, filled),
			Cells:       []voxel.Vec{c},
		}
		if err := st.AddBlock(b); err != nil {
			return added, err
		}
		added++
	}
	st.Sanify()
	return added, nil
}

// envelope fills the volume enclosed by the ship: a cell is inside when it
// sits between occupied cells along at least two axes. An orthogonal
// stand-in for the convex hull; concave pockets get filled, diagonal
// overhangs do not.
func (h *HullBuilder) envelope(ship map[voxel.Vec]bool, min, max voxel.Vec) map[voxel.Vec]bool {
	type span struct {
		lo, hi int
		ok     bool
	}
	grow := func(s span, v int) span {
		if !s.ok {
			return span{lo: v, hi: v, ok: true}
		}
		if v < s.lo {
			s.lo = v
		}
		if v > s.hi {
			s.hi = v
		}
		return s
	}
	xSpans := make(map[[2]int]span)
	ySpans := make(map[[2]int]span)
	zSpans := make(map[[2]int]span)
	for c := range ship {
		xSpans[[2]int{c.Y, c.Z}] = grow(xSpans[[2]int{c.Y, c.Z}], c.X)
		ySpans[[2]int{c.X, c.Z}] = grow(ySpans[[2]int{c.X, c.Z}], c.Y)
		zSpans[[2]int{c.X, c.Y}] = grow(zSpans[[2]int{c.X, c.Y}], c.Z)
	}

	within := func(s span, v int) bool {
		return s.ok && s.lo <= v && v <= s.hi
	}
	hull := make(map[voxel.Vec]bool)
	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				c := voxel.V(x, y, z)
				if ship[c] {
					continue
				}
				n := 0
				if within(xSpans[[2]int{y, z}], x) {
					n++
				}
				if within(ySpans[[2]int{x, z}], y) {
					n++
				}
				if within(zSpans[[2]int{x, y}], z) {
					n++
				}
				if n >= 2 {
					hull[c] = true
				}
			}
		}
	}
	return hull
}

func (h *HullBuilder) erode(ship, hull map[voxel.Vec]bool, min, max voxel.Vec) {
	switch h.conf.Erosion {
	case ErosionGrey:
		h.erodeGrey(ship, hull, min, max)
	case ErosionBin:
		for i := 0; i < h.conf.Iterations; i++ {
			h.erodeBin(ship, hull, min, max)
		}
	}
}

// erodeGrey peels hull cells facing interior air. Cells outside the
// bounding box count as filled, so the outer surface survives.
func (h *HullBuilder) erodeGrey(ship, hull map[voxel.Vec]bool, min, max voxel.Vec) {
	var remove []voxel.Vec
	for c := range hull {
		for _, d := range hullDirections {
			nb := c.Add(d)
			if inBounds(nb, min, max) && !ship[nb] && !hull[nb] {
				remove = append(remove, c)
				break
			}
		}
	}
	for _, c := range remove {
		delete(hull, c)
	}
}

// erodeBin peels hull cells exposed to air, with cells outside the bounding
// box counting as air. Cells touching the ship are masked off so the hull
// never detaches from it.
func (h *HullBuilder) erodeBin(ship, hull map[voxel.Vec]bool, min, max voxel.Vec) {
	var remove []voxel.Vec
	for c := range hull {
		masked := false
		for _, d := range hullDirections {
			if ship[c.Add(d)] {
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		for _, d := range hullDirections {
			nb := c.Add(d)
			if !inBounds(nb, min, max) || (!ship[nb] && !hull[nb]) {
				remove = append(remove, c)
				break
			}
		}
	}
	for _, c := range remove {
		delete(hull, c)
	}
}

// clearObstructed removes hull cells sitting against a thruster or window
// face, then clears the line extending away from that face so exhaust and
// sight lines stay open.
func (h *HullBuilder) clearObstructed(st *voxel.Structure, hull map[voxel.Vec]bool, min, max voxel.Vec) {
	for _, c := range sortedCells(hull) {
		if !hull[c] {
			continue
		}
		for _, d := range hullDirections {
			b := st.At(c.Add(d))
			if b == nil || !h.obstructs(b.Type) {
				continue
			}
			away := d.Scale(-1)
			for w := c; inBounds(w, min, max); w = w.Add(away) {
				delete(hull, w)
			}
			break
		}
	}
}

func (h *HullBuilder) obstructs(blockType string) bool {
	lower := strings.ToLower(blockType)
	for _, target := range h.conf.ObstructionTypes {
		if strings.Contains(lower, strings.ToLower(target)) {
			return true
		}
	}
	return false
}

// dropDisconnected removes hull cells no longer reachable from the ship,
// which the obstruction pass can leave behind. The flood starts from the
// cockpit when one exists.
func (h *HullBuilder) dropDisconnected(st *voxel.Structure, ship, hull map[voxel.Vec]bool) {
	var pivot voxel.Vec
	found := false
	for _, b := range st.Blocks() {
		if strings.Contains(strings.ToLower(b.Type), "cockpit") {
			pivot, found = b.Origin, true
			break
		}
	}
	if !found {
		cells := st.OccupiedCells()
		if len(cells) == 0 {
			return
		}
		pivot = cells[0]
	}

	connected := map[voxel.Vec]bool{pivot: true}
	queue := []voxel.Vec{pivot}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, d := range hullDirections {
			nb := c.Add(d)
			if connected[nb] || (!ship[nb] && !hull[nb]) {
				continue
			}
			connected[nb] = true
			queue = append(queue, nb)
		}
	}
	for _, c := range sortedCells(hull) {
		if !connected[c] {
			delete(hull, c)
		}
	}
}

// armorType maps exposure to armor shape: buried cells stay cubes, cells
// with one open face get slopes, heavily exposed cells get corners.
func (h *HullBuilder) armorType(filledNeighbors int) string {
	switch {
	case filledNeighbors >= 4:
		return h.conf.BaseBlock
	case filledNeighbors == 3:
		return h.conf.SlopeBlock
	default:
		return h.conf.CornerBlock
	}
}

// hullOrientation faces the armor block out of its most exposed side, with
// up leaning against a filled neighbor when one exists.
func hullOrientation(cell voxel.Vec, filled map[voxel.Vec]bool) voxel.Orientation {
	forward := voxel.V(1, 0, 0)
	for _, d := range hullDirections {
		if !filled[cell.Add(d)] {
			forward = d
			break
		}
	}
	up := voxel.Vec{}
	for _, d := range hullDirections {
		if d == forward || d == forward.Scale(-1) {
			continue
		}
		if filled[cell.Add(d)] {
			up = d
			break
		}
	}
	if up == (voxel.Vec{}) {
		for _, d := range hullDirections {
			if d != forward && d != forward.Scale(-1) {
				up = d
				break
			}
		}
	}
	return voxel.Orientation{Forward: forward, Up: up}
}

func inBounds(c, min, max voxel.Vec) bool {
	return min.X <= c.X && c.X <= max.X &&
		min.Y <= c.Y && c.Y <= max.Y &&
		min.Z <= c.Z && c.Z <= max.Z
}

func sortedCells(cells map[voxel.Vec]bool) []voxel.Vec {
	out := make([]voxel.Vec, 0, len(cells))
	for c := range cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}
