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

	"github.com/decibelcooper/nanoaodframe"
	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
	"github.com/decibelcooper/nanoaodframe/source"
)

const (
	massLo = 2.9
	massHi = 3.3
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: `+os.Args[0]+` [options] <proio-input-files>...

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	var (
		title  = flag.String("title", "", "plot title")
		output = flag.String("output", "out.png", "output file")
	)
	log.SetPrefix("e_pair_inv_mass: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		log.Fatal("Invalid arguments")
	}

	var hists []*hbook.H1D
	for _, filename := range flag.Args() {
		h, err := invMassHist(filename)
		if err != nil {
			log.Fatal(err)
		}
		hists = append(hists, h)
	}

	opts := nanoaodframe.PlotOptions{Title: *title, XLabel: "Mass (GeV)", Stats: true}
	if err := nanoaodframe.SaveH1D(*output, opts, hists...); err != nil {
		log.Fatal(err)
	}
}

// pairMasses returns the invariant mass of every opposite-sign pair of
// tracks, taken as massless.
func pairMasses(a frame.Args) (any, error) {
	px, py, pz, sign := a.Floats(0), a.Floats(1), a.Floats(2), a.Ints(3)
	tracks := make([]fmom.PxPyPzE, len(px))
	for i := range tracks {
		tracks[i] = fmom.NewPxPyPzE(px[i], py[i], pz[i], math.Sqrt(px[i]*px[i]+py[i]*py[i]+pz[i]*pz[i]))
	}

	var out []float64
	for i := range tracks {
		for j := i + 1; j < len(tracks); j++ {
			if sign[i]*sign[j] > 0 {
				continue
			}
			m := fmom.Add(&tracks[i], &tracks[j]).M()
			if m > massLo && m < massHi {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func invMassHist(filename string) (*hbook.H1D, error) {
	reg := seltree.NewRegistry()
	err := reg.AddVariable("pair_mass",
		frame.Func(frame.Floats, pairMasses, "Track_px", "Track_py", "Track_pz", "Track_chargesign"),
		seltree.Root)
	if err != nil {
		return nil, err
	}
	m := frame.HistModel{Name: "hpair_mass", Title: filename, Bins: 50, Lo: massLo, Hi: massHi}
	if err := reg.Add1DHistogram(m, "pair_mass", "", seltree.Root); err != nil {
		return nil, err
	}

	tree := seltree.New(frame.New(source.OpenProio(filename)).Root())
	if err := tree.Book(reg); err != nil {
		return nil, err
	}
	return tree.Root().Histograms()[0].Result(context.Background())
}
