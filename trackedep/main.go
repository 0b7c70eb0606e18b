package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/decibelcooper/nanoaodframe"
	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
	"github.com/decibelcooper/nanoaodframe/source"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: `+os.Args[0]+` [options] <proio-input-file>

options:
`,
	)
	flag.PrintDefaults()
}

var (
	output = flag.String("output", "out.png", "output file")
)

func main() {
	log.SetPrefix("trackedep: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() != 1 {
		printUsage()
		log.Fatal("Invalid arguments")
	}

	reg := seltree.NewRegistry()
	err := reg.AddVariable("Tracker_logedep", frame.Func(frame.Floats, func(a frame.Args) (any, error) {
		edep := a.Floats(0)
		out := make([]float64, len(edep))
		for i, e := range edep {
			out[i] = math.Log10(e * 1000)
		}
		return out, nil
	}, "Tracker_edep"), seltree.Root)
	if err != nil {
		log.Fatal(err)
	}
	m := frame.HistModel{Name: "hedep", Title: "tracker energy deposits", Bins: 100, Lo: -9, Hi: 2}
	if err := reg.Add1DHistogram(m, "Tracker_logedep", "", seltree.Root); err != nil {
		log.Fatal(err)
	}

	tree := seltree.New(frame.New(source.OpenProio(flag.Arg(0))).Root())
	if err := tree.Book(reg); err != nil {
		log.Fatal(err)
	}
	hist, err := tree.Root().Histograms()[0].Result(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	opts := nanoaodframe.PlotOptions{XLabel: "log_10{E dep. (MeV)}", LogY: true}
	if err := nanoaodframe.SaveH1D(*output, opts, hist); err != nil {
		log.Fatal(err)
	}
}
