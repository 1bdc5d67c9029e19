package graph

import (
	"hash/fnv"
	"math"
	"math/rand"
	"slices"
)

// Layout tuning. Repulsion acts between every node pair, attraction along
// every edge, and per-step movement is clamped by a cooling temperature.
const (
	layoutIterations  = 50
	repulsionConstant = 1000.0
	attractionFactor  = 0.01
	startTemperature  = 10.0
	coolingFactor     = 0.95
)

// Layout seeds node positions and relaxes them with a bounded
// force-directed pass, writing the result back onto the nodes. Previously
// placed nodes keep their position as the seed, new nodes start near their
// strongest placed neighbor, and the rest go onto a per-community ring.
// The ego is pinned to the origin throughout. All randomness comes from
// rng, so a caller seeding it identically gets identical coordinates.
func Layout(nodes []Node, edges []Edge, egoID string, previous map[string]Point, rng *rand.Rand) {
	if len(nodes) == 0 {
		return
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	positions := seedPositions(nodes, edges, index, egoID, previous, rng)

	type link struct {
		src, dst int
		weight   float64
	}

	links := make([]link, 0, len(edges))

	for _, e := range edges {
		si, ok := index[e.Source]
		if !ok {
			continue
		}

		di, ok := index[e.Target]
		if !ok {
			continue
		}

		links = append(links, link{si, di, e.Weight})
	}

	egoIdx := -1
	if i, ok := index[egoID]; ok && egoID != "" {
		egoIdx = i
	}

	temperature := startTemperature
	forces := make([]Point, len(nodes))

	for iter := 0; iter < layoutIterations; iter++ {
		for i := range forces {
			forces[i] = Point{}
		}

		for i := 0; i < len(nodes); i++ {
			for j := i + 1; j < len(nodes); j++ {
				dx := positions[i].X - positions[j].X
				dy := positions[i].Y - positions[j].Y
				dz := positions[i].Z - positions[j].Z

				dist := math.Sqrt(dx*dx+dy*dy+dz*dz) + 0.01
				force := repulsionConstant / (dist * dist)

				fx := force * dx / dist
				fy := force * dy / dist
				fz := force * dz / dist

				forces[i].X += fx
				forces[i].Y += fy
				forces[i].Z += fz
				forces[j].X -= fx
				forces[j].Y -= fy
				forces[j].Z -= fz
			}
		}

		for _, l := range links {
			dx := positions[l.dst].X - positions[l.src].X
			dy := positions[l.dst].Y - positions[l.src].Y
			dz := positions[l.dst].Z - positions[l.src].Z

			dist := math.Sqrt(dx*dx+dy*dy+dz*dz) + 0.01
			force := attractionFactor * dist * l.weight

			fx := force * dx / dist
			fy := force * dy / dist
			fz := force * dz / dist

			forces[l.src].X += fx
			forces[l.src].Y += fy
			forces[l.src].Z += fz
			forces[l.dst].X -= fx
			forces[l.dst].Y -= fy
			forces[l.dst].Z -= fz
		}

		for i := range nodes {
			if i == egoIdx {
				positions[i] = Point{}

				continue
			}

			f := forces[i]
			magnitude := math.Sqrt(f.X*f.X+f.Y*f.Y+f.Z*f.Z) + 0.01
			movement := math.Min(magnitude, temperature)

			positions[i].X += f.X / magnitude * movement
			positions[i].Y += f.Y / magnitude * movement
			positions[i].Z += f.Z / magnitude * movement
		}

		temperature *= coolingFactor
	}

	if egoIdx >= 0 {
		positions[egoIdx] = Point{}
	}

	for i := range nodes {
		nodes[i].X = positions[i].X
		nodes[i].Y = positions[i].Y
		nodes[i].Z = positions[i].Z
	}
}

// seedPositions produces the initial coordinates for every node.
func seedPositions(nodes []Node, edges []Edge, index map[string]int, egoID string, previous map[string]Point, rng *rand.Rand) []Point {
	type neighbor struct {
		idx    int
		weight float64
	}

	adjacency := make([][]neighbor, len(nodes))

	for _, e := range edges {
		si, ok := index[e.Source]
		if !ok {
			continue
		}

		di, ok := index[e.Target]
		if !ok {
			continue
		}

		adjacency[si] = append(adjacency[si], neighbor{di, e.Weight})
		adjacency[di] = append(adjacency[di], neighbor{si, e.Weight})
	}

	positions := make([]Point, len(nodes))
	placed := make([]bool, len(nodes))

	for i, n := range nodes {
		if p, ok := previous[n.ID]; ok {
			positions[i] = p
			placed[i] = true
		}
	}

	communityCount := len(communityList(nodes))
	if communityCount < 1 {
		communityCount = 1
	}

	for i := range nodes {
		if placed[i] {
			continue
		}

		slices.SortStableFunc(adjacency[i], func(a, b neighbor) int {
			if a.weight > b.weight {
				return -1
			}

			if a.weight < b.weight {
				return 1
			}

			return 0
		})

		for _, nb := range adjacency[i] {
			if placed[nb.idx] {
				positions[i] = Point{
					X: positions[nb.idx].X + uniform(rng, -2, 2),
					Y: positions[nb.idx].Y + uniform(rng, -2, 2),
					Z: positions[nb.idx].Z + uniform(rng, -2, 2),
				}
				placed[i] = true

				break
			}
		}

		if placed[i] {
			continue
		}

		angle := float64(nodes[i].Community) * 2 * math.Pi / float64(communityCount)
		radius := float64(50 + ringHash(nodes[i].ID)%30)

		positions[i] = Point{
			X: radius*math.Cos(angle) + uniform(rng, -5, 5),
			Y: radius*math.Sin(angle) + uniform(rng, -5, 5),
			Z: uniform(rng, -10, 10),
		}
		placed[i] = true
	}

	if egoIdx, ok := index[egoID]; ok && egoID != "" {
		positions[egoIdx] = Point{}
	}

	return positions
}

// uniform draws from [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// ringHash spreads ring radii deterministically across ids.
func ringHash(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	return h.Sum32()
}
