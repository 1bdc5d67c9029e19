// Package render turns a stored frame into a standalone HTML graph
// preview. The echarts graph reuses the frame's force-layout positions
// instead of re-simulating in the browser, so the preview matches what
// the 3-D client shows, flattened onto the X/Y plane.
package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fieldline/orbit/pkg/graph"
)

// Chart dimensions.
const (
	chartWidth  = "1200px"
	chartHeight = "800px"
)

// Symbol sizing. Importance is in [0,1]; the ego is drawn larger than
// any scored node.
const (
	minSymbolSize   = 6.0
	symbolSizeRange = 24.0
	egoSymbolSize   = 40.0
)

// backgroundColor matches the dark theme of the 3-D client.
const backgroundColor = "#0b1020"

// edgeOpacity keeps dense frames readable.
const edgeOpacity = 0.35

// WriteHTML renders the frame as a self-contained HTML document.
func WriteHTML(w io.Writer, frame *graph.Frame) error {
	chart := charts.NewGraph()
	chart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:           chartWidth,
			Height:          chartHeight,
			BackgroundColor: backgroundColor,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("orbit frame — interval %d", frame.IntervalID),
			Subtitle:   subtitle(frame),
			Left:       "center",
			TitleStyle: &opts.TextStyle{Color: "#e8eaf0"},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{
			Show:      opts.Bool(true),
			Type:      "scroll",
			Bottom:    "2%",
			TextStyle: &opts.TextStyle{Color: "#9aa3b5"},
		}),
	)

	chart.AddSeries("network", chartNodes(frame), chartLinks(frame),
		charts.WithGraphChartOpts(opts.GraphChart{
			Layout:     "none",
			Roam:       opts.Bool(true),
			Categories: categories(frame),
			EdgeSymbol: []string{"none", "none"},
		}),
		charts.WithLineStyleOpts(opts.LineStyle{
			Curveness: 0.1,
			Opacity:   opts.Float(edgeOpacity),
		}),
		charts.WithLabelOpts(opts.Label{
			Show:     opts.Bool(false),
			Position: "right",
			Color:    "#9aa3b5",
		}),
	)

	err := chart.Render(w)
	if err != nil {
		return fmt.Errorf("render frame: %w", err)
	}

	return nil
}

func subtitle(frame *graph.Frame) string {
	return fmt.Sprintf("%d nodes, %d edges, %d communities — timeframe %dd",
		frame.Stats.NodeCount, frame.Stats.EdgeCount, frame.Stats.CommunityCount, frame.TimeframeDays)
}

func chartNodes(frame *graph.Frame) []opts.GraphNode {
	nodes := make([]opts.GraphNode, 0, len(frame.Nodes))

	for _, n := range frame.Nodes {
		nodes = append(nodes, opts.GraphNode{
			Name:       nodeName(n),
			X:          float32(n.X),
			Y:          float32(n.Y),
			Value:      float32(n.Followers),
			Category:   n.Community,
			SymbolSize: symbolSize(n),
		})
	}

	return nodes
}

func chartLinks(frame *graph.Frame) []opts.GraphLink {
	byID := make(map[string]string, len(frame.Nodes))
	for _, n := range frame.Nodes {
		byID[n.ID] = nodeName(n)
	}

	links := make([]opts.GraphLink, 0, len(frame.Edges))

	for _, e := range frame.Edges {
		src, okSrc := byID[e.Source]
		dst, okDst := byID[e.Target]

		if !okSrc || !okDst {
			continue
		}

		links = append(links, opts.GraphLink{
			Source: src,
			Target: dst,
			Value:  float32(e.Weight),
		})
	}

	return links
}

func categories(frame *graph.Frame) []*opts.GraphCategory {
	cats := make([]*opts.GraphCategory, 0, len(frame.Communities))

	for _, c := range frame.Communities {
		cats = append(cats, &opts.GraphCategory{
			Name: "community " + strconv.Itoa(c),
		})
	}

	return cats
}

// nodeName prefers the handle; nodes the upstream never resolved fall
// back to their id.
func nodeName(n graph.Node) string {
	if n.Handle != "" {
		return "@" + n.Handle
	}

	return n.ID
}

func symbolSize(n graph.Node) float64 {
	if n.IsEgo {
		return egoSymbolSize
	}

	return minSymbolSize + symbolSizeRange*n.Importance
}
