package nanoaodframe

import (
	"fmt"
	"image/color"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

// Colors used for successive histograms drawn on the same plot.
var LineColors = []color.Color{
	color.RGBA{A: 255},
	color.RGBA{G: 255, A: 255},
	color.RGBA{B: 255, A: 255},
	color.RGBA{R: 255, B: 127, G: 127, A: 255},
}

// PlotOptions controls SaveH1D.
type PlotOptions struct {
	Title  string
	XLabel string
	LogY   bool
	// Stats draws the entries/mean/rms box.
	Stats bool
}

// NewPlot returns an empty plot with the axis markers used by every
// command.
func NewPlot(opts PlotOptions) *plot.Plot {
	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.X.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}
	if opts.LogY {
		p.Y.Tick.Marker = LogTicks{}
		p.Y.Scale = LogScale{}
	} else {
		p.Y.Tick.Marker = PreciseTicks{NSuggestedTicks: 5}
	}
	return p
}

// SaveH1D draws the histograms on one plot and saves it to path. The image
// format follows the extension of path.
func SaveH1D(path string, opts PlotOptions, hists ...*hbook.H1D) error {
	if opts.Title == "" && len(hists) == 1 {
		opts.Title = HistTitle(hists[0])
	}
	p := NewPlot(opts)
	for i, hist := range hists {
		h := hplot.NewH1D(hist)
		h.FillColor = nil
		h.LineStyle.Color = LineColors[i%len(LineColors)]
		h.Infos.Style = hplot.HInfoNone
		if opts.Stats && len(hists) == 1 {
			h.Infos.Style = hplot.HInfoSummary
		}
		p.Add(h)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// HistTitle returns the title annotation of h, or its name when untitled.
func HistTitle(h *hbook.H1D) string {
	if t, ok := h.Annotation()["title"].(string); ok && t != "" {
		return t
	}
	return h.Name()
}
