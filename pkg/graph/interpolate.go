package graph

// Interpolation is a blended view between two frames for timeline
// playback.
type Interpolation struct {
	IntervalID    int64   `json:"interval_id"`
	TimeframeDays int     `json:"timeframe_days"`
	Progress      float64 `json:"progress"`
	Nodes         []Node  `json:"nodes"`
	Edges         []Edge  `json:"edges"`
	Communities   []int   `json:"communities"`
	Stats         Stats   `json:"stats"`
}

// Interpolate blends node positions between two frames at the given
// progress, where 0 is entirely the from-frame and 1 entirely the
// to-frame. Nodes present in both frames move linearly; nodes that
// disappear freeze at their old spot; nodes that appear sit at their
// target. Edges and the reported interval come from whichever frame is
// nearer, node metadata prefers the to-frame, and isNew marks ids absent
// from the from-frame. Both frames must share a timeframe for the result
// to be meaningful; the to-frame's is reported.
func Interpolate(from, to *Frame, progress float64) *Interpolation {
	progress = clamp01(progress)

	fromPos := positionsByID(from)
	toPos := positionsByID(to)

	nodes := make([]Node, 0, len(toPos)+len(fromPos))
	emit := func(n Node) {
		fp, inFrom := fromPos[n.ID]
		tp, inTo := toPos[n.ID]

		switch {
		case inFrom && inTo:
			n.X = fp.X + (tp.X-fp.X)*progress
			n.Y = fp.Y + (tp.Y-fp.Y)*progress
			n.Z = fp.Z + (tp.Z-fp.Z)*progress
		case inFrom:
			n.X, n.Y, n.Z = fp.X, fp.Y, fp.Z
		default:
			n.X, n.Y, n.Z = tp.X, tp.Y, tp.Z
		}

		n.X = roundTo(n.X, 2)
		n.Y = roundTo(n.Y, 2)
		n.Z = roundTo(n.Z, 2)
		n.IsNew = !inFrom

		nodes = append(nodes, n)
	}

	for _, n := range to.Nodes {
		emit(n)
	}

	for _, n := range from.Nodes {
		if _, ok := toPos[n.ID]; !ok {
			emit(n)
		}
	}

	source := from
	if progress > 0.5 {
		source = to
	}

	edges := make([]Edge, len(source.Edges))
	copy(edges, source.Edges)

	newCount := 0

	for _, n := range nodes {
		if n.IsNew {
			newCount++
		}
	}

	communities := communityList(nodes)

	return &Interpolation{
		IntervalID:    source.IntervalID,
		TimeframeDays: to.TimeframeDays,
		Progress:      progress,
		Nodes:         nodes,
		Edges:         edges,
		Communities:   communities,
		Stats: Stats{
			NodeCount:      len(nodes),
			EdgeCount:      len(edges),
			CommunityCount: len(communities),
			NewFollowers:   newCount,
		},
	}
}

func positionsByID(f *Frame) map[string]Point {
	pos := make(map[string]Point, len(f.Nodes))

	for _, n := range f.Nodes {
		pos[n.ID] = Point{X: n.X, Y: n.Y, Z: n.Z}
	}

	return pos
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
