package fusecut

// Diagnostics over the ingested cloud. These are cheap to compute and
// help judge whether the visibility input is healthy before spending
// time on voting and the cut.

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PtsCamsHist returns a histogram of how many cameras observe each
// real vertex. Index i counts vertices seen by exactly i cameras.
func (gc *GraphCut) PtsCamsHist() []int {
	var hist []int
	for vi := range gc.vertAttrs {
		if !gc.isRealVertex(vi) {
			continue
		}
		n := len(gc.vertAttrs[vi].Cams)
		for len(hist) <= n {
			hist = append(hist, 0)
		}
		hist[n]++
	}
	return hist
}

// PtsNrcHist returns a histogram of per-vertex accumulated vote
// counts, bucketed by powers of two. Bucket i counts real vertices
// with NVotes in [2^i, 2^(i+1)).
func (gc *GraphCut) PtsNrcHist() []int {
	var hist []int
	for vi := range gc.vertAttrs {
		if !gc.isRealVertex(vi) {
			continue
		}
		n := gc.vertAttrs[vi].NVotes
		b := 0
		for n > 1 {
			n >>= 1
			b++
		}
		for len(hist) <= b {
			hist = append(hist, 0)
		}
		hist[b]++
	}
	return hist
}

// IsUsedPerCamera reports, per camera index, whether any real vertex
// with at least minVis observations lists that camera.
func (gc *GraphCut) IsUsedPerCamera(minVis int) []bool {
	used := make([]bool, len(gc.cams))
	for vi := range gc.vertAttrs {
		if !gc.isRealVertex(vi) {
			continue
		}
		attr := &gc.vertAttrs[vi]
		if len(attr.Cams) < minVis {
			continue
		}
		for _, c := range attr.Cams {
			if int(c) < len(used) {
				used[int(c)] = true
			}
		}
	}
	return used
}

// SortedUsedCams returns the indices of cameras used by at least one
// sufficiently observed vertex, in ascending order.
func (gc *GraphCut) SortedUsedCams(minVis int) []int {
	used := gc.IsUsedPerCamera(minVis)
	var cams []int
	for i, u := range used {
		if u {
			cams = append(cams, i)
		}
	}
	sort.Ints(cams)
	return cams
}

// WriteStats writes a short plain-text summary of the ingested cloud.
func (gc *GraphCut) WriteStats(w io.Writer) error {
	var nReal, nHelper int
	var camCounts, pixSizes []float64
	for vi := range gc.vertAttrs {
		attr := &gc.vertAttrs[vi]
		if attr.Helper || attr.OnInfiniteSphere {
			nHelper++
			continue
		}
		nReal++
		camCounts = append(camCounts, float64(len(attr.Cams)))
		if ps := attr.PixSize(); ps > 0 {
			pixSizes = append(pixSizes, ps)
		}
	}
	_, err := fmt.Fprintf(w, "vertices: %d real, %d auxiliary\ncells: %d\ncameras: %d (%d used)\n",
		nReal, nHelper, gc.NumCells(), len(gc.cams), len(gc.SortedUsedCams(1)))
	if err != nil {
		return err
	}
	if len(camCounts) > 0 {
		mean, std := stat.MeanStdDev(camCounts, nil)
		if _, err = fmt.Fprintf(w, "cams per vertex: mean %.2f, stddev %.2f\n", mean, std); err != nil {
			return err
		}
	}
	if len(pixSizes) > 0 {
		sort.Float64s(pixSizes)
		med := stat.Quantile(0.5, stat.Empirical, pixSizes, nil)
		if _, err = fmt.Fprintf(w, "pixel size: median %.4g\n", med); err != nil {
			return err
		}
	}
	if ab := gc.AbandonedRays(); ab > 0 {
		if _, err = fmt.Fprintf(w, "abandoned rays: %d\n", ab); err != nil {
			return err
		}
	}
	return nil
}

// WriteNrcHistogramPNG renders the vote-count histogram to a PNG file.
func (gc *GraphCut) WriteNrcHistogramPNG(filename string) error {
	var votes plotter.Values
	for vi := range gc.vertAttrs {
		if !gc.isRealVertex(vi) {
			continue
		}
		votes = append(votes, float64(gc.vertAttrs[vi].NVotes))
	}
	if len(votes) == 0 {
		return fmt.Errorf("fusecut: no real vertices to plot")
	}
	p := plot.New()
	p.Title.Text = "votes per vertex"
	p.X.Label.Text = "votes"
	p.Y.Label.Text = "vertices"
	h, err := plotter.NewHist(votes, 32)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}
