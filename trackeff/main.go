package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"go-hep.org/x/hep/fmom"
	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/decibelcooper/nanoaodframe"
	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
	"github.com/decibelcooper/nanoaodframe/source"
)

var (
	pTMin    = flag.Float64("minpt", 0.5, "minimum transverse momentum")
	fracCut  = flag.Float64("frac", 0.01, "maximum fractional magnitude of the difference in momentum between track and true")
	etaLimit = flag.Float64("etalimit", 4, "maximum absolute value of eta")
	nBins    = flag.Int("nbins", 80, "number of bins")
	title    = flag.String("title", "", "plot title")
	prefix   = flag.String("prefix", "out", "output file prefix")
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: `+os.Args[0]+` [options] <proio-input-files>...

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	log.SetPrefix("trackeff: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		log.Fatal("Invalid arguments")
	}

	p := nanoaodframe.NewPlot(nanoaodframe.PlotOptions{Title: *title, XLabel: "eta"})

	for i, filename := range flag.Args() {
		trackEta, trueEta, err := etaHists(filename)
		if err != nil {
			log.Fatal(err)
		}

		points := make(plotter.XYs, *nBins)
		xErrors := make(plotter.XErrors, *nBins)
		yErrors := make(plotter.YErrors, *nBins)
		binHalfWidth := *etaLimit / float64(*nBins)
		binSigma := binHalfWidth / math.Sqrt(3.)
		for i := range points {
			trueX, trueY := trueEta.XY(i)

			points[i].X = trueX + binHalfWidth
			xErrors[i].Low = binSigma
			xErrors[i].High = binSigma

			_, trackY := trackEta.XY(i)
			if trueY > 0 {
				points[i].Y = trackY / trueY
				yErrors[i].Low = math.Sqrt((1 - trackY/trueY) * trackY / math.Pow(trueY, 2))
				yErrors[i].High = yErrors[i].Low
			}
		}
		errPoints := plotutil.ErrorPoints{XYs: points, XErrors: xErrors, YErrors: yErrors}
		xerr, err := plotter.NewXErrorBars(errPoints)
		if err != nil {
			log.Fatal(err)
		}
		yerr, err := plotter.NewYErrorBars(errPoints)
		if err != nil {
			log.Fatal(err)
		}

		pointColor := nanoaodframe.LineColors[i%len(nanoaodframe.LineColors)]
		xerr.LineStyle.Color = pointColor
		yerr.LineStyle.Color = pointColor

		p.Add(xerr)
		p.Add(yerr)
	}

	for _, ext := range []string{".pdf", ".png"} {
		if err := p.Save(6*vg.Inch, 4*vg.Inch, *prefix+ext); err != nil {
			log.Fatal(err)
		}
	}
}

// massless returns the four-momenta of massless objects.
func massless(px, py, pz []float64) []fmom.PxPyPzE {
	out := make([]fmom.PxPyPzE, len(px))
	for i := range out {
		out[i] = fmom.NewPxPyPzE(px[i], py[i], pz[i], math.Sqrt(px[i]*px[i]+py[i]*py[i]+pz[i]*pz[i]))
	}
	return out
}

// etaHists fills the true eta of the well-reconstructed tracks and of the
// generated stable particles above the pt threshold.
func etaHists(filename string) (track, gen *hbook.H1D, err error) {
	f := frame.New(source.OpenProio(filename))

	reg := seltree.NewRegistry()
	vars := []struct {
		name string
		e    frame.Expr
	}{
		{"trackcuts", frame.Func(frame.Bools, func(a frame.Args) (any, error) {
			matched := a.Bools(0)
			truth := massless(a.Floats(4), a.Floats(5), a.Floats(6))
			out := make([]bool, len(matched))
			for i, p := range truth {
				if !matched[i] || p.Pt() < *pTMin {
					continue
				}
				q := math.Abs(a.Floats(7)[i])
				mag := math.Sqrt(p.Px()*p.Px() + p.Py()*p.Py() + p.Pz()*p.Pz())
				poq := mag / q
				diff := math.Sqrt(math.Pow(a.Floats(1)[i]-p.Px()/q, 2) +
					math.Pow(a.Floats(2)[i]-p.Py()/q, 2) +
					math.Pow(a.Floats(3)[i]-p.Pz()/q, 2))
				out[i] = diff/poq <= *fracCut
			}
			return out, nil
		}, "Track_matched", "Track_px", "Track_py", "Track_pz",
			"Track_truepx", "Track_truepy", "Track_truepz", "Track_truecharge")},
		{"Track_trueeta", frame.Func(frame.Floats, func(a frame.Args) (any, error) {
			return etas(massless(a.Floats(0), a.Floats(1), a.Floats(2))), nil
		}, "Track_truepx", "Track_truepy", "Track_truepz")},
		{"Track_seleta", frame.Mask("Track_trueeta", "trackcuts")},
		{"gencuts", frame.Func(frame.Bools, func(a frame.Args) (any, error) {
			parts := massless(a.Floats(0), a.Floats(1), a.Floats(2))
			out := make([]bool, len(parts))
			for i, p := range parts {
				out[i] = p.Pt() >= *pTMin
			}
			return out, nil
		}, "Gen_px", "Gen_py", "Gen_pz")},
		{"Gen_eta", frame.Func(frame.Floats, func(a frame.Args) (any, error) {
			return etas(massless(a.Floats(0), a.Floats(1), a.Floats(2))), nil
		}, "Gen_px", "Gen_py", "Gen_pz")},
		{"Gen_seleta", frame.Mask("Gen_eta", "gencuts")},
	}
	for _, v := range vars {
		if err := reg.AddVariable(v.name, v.e, seltree.Root); err != nil {
			return nil, nil, err
		}
	}
	for _, h := range []struct{ name, value string }{
		{"htrack_eta", "Track_seleta"},
		{"hgen_eta", "Gen_seleta"},
	} {
		m := frame.HistModel{Name: h.name, Title: h.name, Bins: *nBins, Lo: -*etaLimit, Hi: *etaLimit}
		if err := reg.Add1DHistogram(m, h.value, "", seltree.Root); err != nil {
			return nil, nil, err
		}
	}

	tree := seltree.New(f.Root())
	if err := tree.Book(reg); err != nil {
		return nil, nil, err
	}
	hists := tree.Root().Histograms()
	ctx := context.Background()
	if track, err = hists[0].Result(ctx); err != nil {
		return nil, nil, err
	}
	gen, err = hists[1].Result(ctx)
	return track, gen, err
}

func etas(ps []fmom.PxPyPzE) []float64 {
	out := make([]float64, len(ps))
	for i := range ps {
		out[i] = ps[i].Eta()
	}
	return out
}
