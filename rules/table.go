package rules

import (
	"fmt"
	"sync"

	"github.com/notargets/ugrefine/element"
)

// TetRules selects the tetrahedron rule set
type TetRules uint8

const (
	// Complete generates a rule for every edge pattern and diagonal choice
	Complete TetRules = iota
	// RegularOnly keeps the red and single edge rules; all other patterns
	// are left to the green refiner or forced red by the closure
	RegularOnly
)

func (t TetRules) String() string {
	if t == RegularOnly {
		return "regular-only"
	}
	return "complete"
}

// Table holds the rule sets of all shapes. Rules are read only once built;
// the green tessellation cache is safe for concurrent use.
type Table struct {
	Tet TetRules

	rules map[element.ElementGeometry][]*Rule
	byKey map[element.ElementGeometry]map[Key]*Rule

	mu    sync.Mutex
	green map[element.ElementGeometry]map[Key]*Rule
}

// NewTable builds and verifies the rule sets
func NewTable(tet TetRules) (*Table, error) {
	t := &Table{
		Tet:   tet,
		rules: make(map[element.ElementGeometry][]*Rule),
		byKey: make(map[element.ElementGeometry]map[Key]*Rule),
		green: make(map[element.ElementGeometry]map[Key]*Rule),
	}
	for _, g := range element.Geometries {
		t.byKey[g] = make(map[Key]*Rule)
		t.green[g] = make(map[Key]*Rule)
	}
	builders := []func() error{t.buildTri, t.buildQuad, t.buildTet, t.buildPyramid, t.buildPrism, t.buildHex}
	for _, build := range builders {
		if err := build(); err != nil {
			return nil, err
		}
	}
	if err := t.Verify(); err != nil {
		return nil, err
	}
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the shared table with the complete tetrahedron rules
func Default() *Table {
	defaultOnce.Do(func() {
		var err error
		if defaultTable, err = NewTable(Complete); err != nil {
			panic(err)
		}
	})
	return defaultTable
}

// add appends a rule to the shape's list, deriving its neighbor tables
func (t *Table) add(g element.ElementGeometry, name string, pattern, diag uint32,
	isRed bool, sons ...Son) (*Rule, error) {
	top := element.Of(g)
	r := &Rule{
		ID:          len(t.rules[g]),
		Geometry:    g,
		Name:        name,
		Pattern:     pattern,
		SidePattern: SidePattern(top, pattern),
		Diag:        diag,
		Sons:        sons,
		IsRed:       isRed,
		ForcesRed:   isRed,
	}
	if err := deriveNeighbors(top, r); err != nil {
		return nil, err
	}
	t.rules[g] = append(t.rules[g], r)
	if _, taken := t.byKey[g][r.Key()]; !taken && r.ID != Copy {
		t.byKey[g][r.Key()] = r
	}
	return r, nil
}

func (t *Table) addCone(g element.ElementGeometry, k Key, name string) error {
	r, err := coneRule(element.Of(g), k, name)
	if err != nil {
		return err
	}
	r.ID = len(t.rules[g])
	t.rules[g] = append(t.rules[g], r)
	t.byKey[g][r.Key()] = r
	return nil
}

// addBasic registers the no refinement and copy rules
func (t *Table) addBasic(g element.ElementGeometry) error {
	top := element.Of(g)
	if _, err := t.add(g, "none", 0, 0, false); err != nil {
		return err
	}
	all := make([]int, top.Corners)
	for i := range all {
		all[i] = i
	}
	_, err := t.add(g, "copy", 0, 0, false, newSon(g, all...))
	return err
}

func fullPattern(top *element.Topology) uint32 { return 1<<top.NumEdges() - 1 }

func (t *Table) buildTri() error {
	g := element.Tri
	top := element.Of(g)
	if err := t.addBasic(g); err != nil {
		return err
	}
	m01, m12, m20 := top.Mid(0, 1), top.Mid(1, 2), top.Mid(2, 0)
	if _, err := t.add(g, "red", fullPattern(top), 0, true,
		newSon(g, 0, m01, m20), newSon(g, m01, 1, m12), newSon(g, m20, m12, 2), newSon(g, m01, m12, m20)); err != nil {
		return err
	}
	for e, ed := range top.Edges {
		a, b, c := ed[0], ed[1], 3-ed[0]-ed[1]
		m := top.MidSlot(e)
		if _, err := t.add(g, fmt.Sprintf("bisect edge %d", e), 1<<e, 0, false,
			newSon(g, a, m, c), newSon(g, m, b, c)); err != nil {
			return err
		}
	}
	for e, ed := range top.Edges {
		// edge e stays whole; the other two are bisected
		a, b, c := ed[0], ed[1], 3-ed[0]-ed[1]
		mbc, mca := top.Mid(b, c), top.Mid(c, a)
		if _, err := t.add(g, fmt.Sprintf("keep edge %d", e), fullPattern(top)&^(1<<e), 0, false,
			newSon(g, mbc, c, mca), newSon(g, a, b, mbc), newSon(g, a, mbc, mca)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) buildQuad() error {
	g := element.Quad
	top := element.Of(g)
	if err := t.addBasic(g); err != nil {
		return err
	}
	m0, m1, m2, m3 := top.MidSlot(0), top.MidSlot(1), top.MidSlot(2), top.MidSlot(3)
	C := top.CenterSlot()
	if _, err := t.add(g, "red", fullPattern(top), 0, true,
		newSon(g, 0, m0, C, m3), newSon(g, m0, 1, m1, C),
		newSon(g, C, m1, 2, m2), newSon(g, m3, C, m2, 3)); err != nil {
		return err
	}
	if _, err := t.add(g, "blue 0-2", 1<<0|1<<2, 0, false,
		newSon(g, 0, m0, m2, 3), newSon(g, m0, 1, 2, m2)); err != nil {
		return err
	}
	if _, err := t.add(g, "blue 1-3", 1<<1|1<<3, 0, false,
		newSon(g, 0, 1, m1, m3), newSon(g, m3, m1, 2, 3)); err != nil {
		return err
	}
	for p := uint32(1); p < fullPattern(top); p++ {
		if p == 1<<0|1<<2 || p == 1<<1|1<<3 {
			continue
		}
		if err := t.addCone(g, Key{Pattern: p}, fmt.Sprintf("fan %04b", p)); err != nil {
			return err
		}
	}
	return nil
}

// tetOctahedron lists the three ways to split the inner octahedron of a red
// tetrahedron, as the pair of opposite edges whose mids form the diagonal.
var tetOctahedron = [3][2][2]int{
	{{0, 1}, {2, 3}},
	{{1, 2}, {0, 3}},
	{{0, 2}, {1, 3}},
}

func (t *Table) buildTet() error {
	g := element.Tet
	top := element.Of(g)
	if err := t.addBasic(g); err != nil {
		return err
	}
	m := top.Mid
	corners := []Son{
		newSon(g, 0, m(0, 1), m(0, 2), m(0, 3)),
		newSon(g, m(0, 1), 1, m(1, 2), m(1, 3)),
		newSon(g, m(0, 2), m(1, 2), 2, m(2, 3)),
		newSon(g, m(0, 3), m(1, 3), m(2, 3), 3),
	}
	mids := []int{m(0, 1), m(1, 2), m(0, 2), m(0, 3), m(1, 3), m(2, 3)}
	for v, d := range tetOctahedron {
		p, q := m(d[0][0], d[0][1]), m(d[1][0], d[1][1])
		// the remaining four mids form a ring around the diagonal
		var ring []int
		for _, x := range mids {
			if x != p && x != q {
				ring = append(ring, x)
			}
		}
		ring = orderRing(top, ring)
		sons := append([]Son(nil), corners...)
		for i := range ring {
			sons = append(sons, newSon(g, p, q, ring[i], ring[(i+1)%4]))
		}
		name := fmt.Sprintf("red diagonal %d-%d/%d-%d", d[0][0], d[0][1], d[1][0], d[1][1])
		r, err := t.add(g, name, fullPattern(top), 0, true, sons...)
		if err != nil {
			return err
		}
		if r.ID != Red+v {
			return fmt.Errorf("tet red variant %d got id %d", v, r.ID)
		}
	}
	for e, ed := range top.Edges {
		a, b := ed[0], ed[1]
		var cd []int
		for c := 0; c < 4; c++ {
			if c != a && c != b {
				cd = append(cd, c)
			}
		}
		mid := top.MidSlot(e)
		if _, err := t.add(g, fmt.Sprintf("bisect edge %d", e), 1<<e, 0, false,
			newSon(g, a, mid, cd[0], cd[1]), newSon(g, mid, b, cd[0], cd[1])); err != nil {
			return err
		}
	}
	if t.Tet == RegularOnly {
		return nil
	}
	for p := uint32(1); p < fullPattern(top); p++ {
		if p&(p-1) == 0 {
			continue // single edges have their own rules
		}
		var twoEdged []int
		for s := range top.Sides {
			if TriSectionEdge(ReducedPattern(top, s, p)) >= 0 {
				twoEdged = append(twoEdged, s)
			}
		}
		for combo := 0; combo < 1<<len(twoEdged); combo++ {
			var diag uint32
			for i, s := range twoEdged {
				if combo&(1<<i) != 0 {
					diag |= 1 << s
				}
			}
			if err := t.addCone(g, Key{Pattern: p, Diag: diag},
				fmt.Sprintf("cone %06b/%04b", p, diag)); err != nil {
				return err
			}
		}
	}
	return nil
}

// orderRing sorts the four equator mids of a split octahedron so that
// consecutive entries share a face of the father (no two opposite mids are
// adjacent in the ring).
func orderRing(top *element.Topology, ring []int) []int {
	opposite := func(a, b int) bool {
		ea, eb := top.Edges[a-top.Corners], top.Edges[b-top.Corners]
		return ea[0] != eb[0] && ea[0] != eb[1] && ea[1] != eb[0] && ea[1] != eb[1]
	}
	out := []int{ring[0]}
	used := map[int]bool{ring[0]: true}
	for len(out) < len(ring) {
		last := out[len(out)-1]
		for _, x := range ring {
			if !used[x] && !opposite(last, x) {
				out = append(out, x)
				used[x] = true
				break
			}
		}
	}
	return out
}

func (t *Table) buildPyramid() error {
	g := element.Pyramid
	top := element.Of(g)
	if err := t.addBasic(g); err != nil {
		return err
	}
	m := top.Mid
	B := top.Side(0, 1, 2, 3)
	_, err := t.add(g, "red", fullPattern(top), 0, true,
		newSon(g, 0, m(0, 1), B, m(3, 0), m(0, 4)),
		newSon(g, m(0, 1), 1, m(1, 2), B, m(1, 4)),
		newSon(g, B, m(1, 2), 2, m(2, 3), m(2, 4)),
		newSon(g, m(3, 0), B, m(2, 3), 3, m(3, 4)),
		newSon(g, m(0, 4), m(1, 4), m(2, 4), m(3, 4), 4),
		newSon(g, m(0, 4), m(3, 4), m(2, 4), m(1, 4), B),
		newSon(element.Tet, m(0, 1), B, m(0, 4), m(1, 4)),
		newSon(element.Tet, m(1, 2), B, m(1, 4), m(2, 4)),
		newSon(element.Tet, m(2, 3), B, m(2, 4), m(3, 4)),
		newSon(element.Tet, m(3, 0), B, m(3, 4), m(0, 4)),
	)
	return err
}

func (t *Table) buildPrism() error {
	g := element.Prism
	top := element.Of(g)
	if err := t.addBasic(g); err != nil {
		return err
	}
	m := top.Mid
	S1, S2, S3 := top.Side(0, 1, 4, 3), top.Side(1, 2, 5, 4), top.Side(2, 0, 3, 5)
	_, err := t.add(g, "red", fullPattern(top), 0, true,
		newSon(g, 0, m(0, 1), m(2, 0), m(0, 3), S1, S3),
		newSon(g, m(0, 1), 1, m(1, 2), S1, m(1, 4), S2),
		newSon(g, m(2, 0), m(1, 2), 2, S3, S2, m(2, 5)),
		newSon(g, m(0, 1), m(1, 2), m(2, 0), S1, S2, S3),
		newSon(g, m(0, 3), S1, S3, 3, m(3, 4), m(5, 3)),
		newSon(g, S1, m(1, 4), S2, m(3, 4), 4, m(4, 5)),
		newSon(g, S3, S2, m(2, 5), m(5, 3), m(4, 5), 5),
		newSon(g, S1, S2, S3, m(3, 4), m(4, 5), m(5, 3)),
	)
	return err
}

func (t *Table) buildHex() error {
	g := element.Hex
	top := element.Of(g)
	if err := t.addBasic(g); err != nil {
		return err
	}
	// sons on the 3x3x3 lattice of corner, mid, side and center slots
	var sons []Son
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				corners := make([]int, top.Corners)
				for c, ref := range top.RefCoords {
					p := [3]float64{(float64(i) + ref[0]) / 2, (float64(j) + ref[1]) / 2, (float64(k) + ref[2]) / 2}
					corners[c] = top.SlotAt(p)
					if corners[c] < 0 {
						return fmt.Errorf("hex red son %d%d%d: no slot at %v", i, j, k, p)
					}
				}
				sons = append(sons, newSon(g, corners...))
			}
		}
	}
	_, err := t.add(g, "red", fullPattern(top), 0, true, sons...)
	return err
}

// Rule returns rule id of shape g
func (t *Table) Rule(g element.ElementGeometry, id int) (*Rule, bool) {
	list := t.rules[g]
	if id < 0 || id >= len(list) {
		return nil, false
	}
	return list[id], true
}

// Rules returns every registered rule of shape g, indexed by id
func (t *Table) Rules(g element.ElementGeometry) []*Rule { return t.rules[g] }

// Lookup returns the registered rule matching key, or nil. The copy rule is
// never returned; a zero pattern resolves to no refinement.
func (t *Table) Lookup(g element.ElementGeometry, k Key) *Rule {
	return t.byKey[g][normalizeDiag(element.Of(g), k)]
}

// RedVariants returns the full subdivision rules of shape g
func (t *Table) RedVariants(g element.ElementGeometry) []*Rule {
	var out []*Rule
	for _, r := range t.rules[g] {
		if r.IsRed {
			out = append(out, r)
		}
	}
	return out
}

// Complete reports whether every edge pattern of g resolves to a rule
func (t *Table) Complete(g element.ElementGeometry) bool {
	switch g {
	case element.Tri, element.Quad:
		return true
	case element.Tet:
		return t.Tet == Complete
	}
	return false
}

// Green returns the tessellation joining the subdivided sides of a shape to
// its center, used for elements whose pattern has no registered rule.
// A registered rule for the same key is returned as is.
func (t *Table) Green(g element.ElementGeometry, k Key) (*Rule, error) {
	if r := t.Lookup(g, k); r != nil {
		return r, nil
	}
	k = normalizeDiag(element.Of(g), k)
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.green[g][k]; ok {
		return r, nil
	}
	r, err := coneRule(element.Of(g), k, fmt.Sprintf("green %b/%b", k.Pattern, k.Diag))
	if err != nil {
		return nil, err
	}
	t.green[g][k] = r
	return r, nil
}

// Verify checks the structural consistency of every rule
func (t *Table) Verify() error {
	for _, g := range element.Geometries {
		top := element.Of(g)
		list := t.rules[g]
		if len(list) <= Red {
			return fmt.Errorf("%s: missing reserved rules", g)
		}
		if len(list[NoRefinement].Sons) != 0 {
			return fmt.Errorf("%s: rule %d must have no sons", g, NoRefinement)
		}
		if s := list[Copy].Sons; len(s) != 1 || s[0].Geometry != g {
			return fmt.Errorf("%s: copy rule must have one %s son", g, g)
		}
		if !list[Red].IsRed || list[Red].Pattern != fullPattern(top) {
			return fmt.Errorf("%s: rule %d is not the full red rule", g, Red)
		}
		for id, r := range list {
			if r.ID != id {
				return fmt.Errorf("%s: rule at %d carries id %d", g, id, r.ID)
			}
			if len(r.Sons) > top.MaxSons {
				return fmt.Errorf("%s: %d sons exceed %d", r, len(r.Sons), top.MaxSons)
			}
			for _, slot := range r.Slots() {
				switch top.Kind(slot) {
				case element.MidSlotKind:
					if r.Pattern&(1<<(slot-top.Corners)) == 0 {
						return fmt.Errorf("%s: uses mid slot %d outside its pattern", r, slot)
					}
				case element.SideSlotKind:
					s := slot - top.Corners - top.NumEdges()
					if r.SidePattern&(1<<s) == 0 {
						return fmt.Errorf("%s: uses side slot %d outside its side pattern", r, slot)
					}
				}
			}
			if id != Copy && t.Lookup(g, r.Key()) == nil {
				return fmt.Errorf("%s: key does not resolve", r)
			}
		}
	}
	return nil
}
