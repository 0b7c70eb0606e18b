package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/pkg/profile"
	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe"
	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
	"github.com/decibelcooper/nanoaodframe/source"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: `+os.Args[0]+` [options] <proio-input-files>...

options:
`,
	)
	flag.PrintDefaults()
}

// beam energies (GeV)
const (
	electronBeam = 5.
	protonBeam   = 100.
)

var xLabels = map[string]string{
	"t":  "-t (GeV^2)",
	"pt": "Transverse Momentum Transfer (GeV)",
}

func main() {
	defer profile.Start().Stop()

	var (
		title     = flag.String("title", "", "plot title")
		output    = flag.String("output", "out.png", "output file")
		variable  = flag.String("var", "t", "plotted variable: t or pt")
		printTree = flag.Bool("tree", false, "print the selection tree")
	)
	log.SetPrefix("jpsi_dvmp_t: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		log.Fatal("Invalid arguments")
	}
	xLabel, ok := xLabels[*variable]
	if !ok {
		log.Fatalf("unknown variable %q", *variable)
	}

	var hists []*hbook.H1D
	for _, filename := range flag.Args() {
		hs, err := makeHists(filename, *variable, *printTree)
		if err != nil {
			log.Fatal(err)
		}
		hists = append(hists, hs...)
	}

	opts := nanoaodframe.PlotOptions{Title: *title, XLabel: xLabel, LogY: true}
	if err := nanoaodframe.SaveH1D(*output, opts, hists...); err != nil {
		log.Fatal(err)
	}
}

// Branches of the selection tree.
const (
	recoBranch     = "0" // three reconstructed tracks
	protonBranch   = "1" // one generated proton
	electronBranch = "2" // three generated electrons or positrons
)

func pdgMask(match func(pdg int64) bool) frame.Expr {
	return frame.Func(frame.Bools, func(a frame.Args) (any, error) {
		pdg := a.Ints(0)
		out := make([]bool, len(pdg))
		for i, id := range pdg {
			out[i] = match(id)
		}
		return out, nil
	}, "Gen_pdg")
}

// momentumTransfer returns -t and the transverse momentum transfer of the
// electron side: the sum of the massless objects minus the electron beam.
func momentumTransfer(px, py, pz []float64) (t, pt float64) {
	p := [4]float64{0, 0, electronBeam, -electronBeam}
	for i := range px {
		p[0] += px[i]
		p[1] += py[i]
		p[2] += pz[i]
		p[3] += math.Sqrt(px[i]*px[i] + py[i]*py[i] + pz[i]*pz[i])
	}
	t = p[0]*p[0] + p[1]*p[1] + p[2]*p[2] - p[3]*p[3]
	return t, math.Hypot(p[0], p[1])
}

func transfer(pick func(t, pt float64) float64, cols ...string) frame.Expr {
	return frame.Func(frame.Float, func(a frame.Args) (any, error) {
		return pick(momentumTransfer(a.Floats(0), a.Floats(1), a.Floats(2))), nil
	}, cols...)
}

func pickT(t, _ float64) float64 { return t }

func pickPT(_, pt float64) float64 { return pt }

// protonTransfer returns -t and the transverse momentum of the single
// generated proton against the proton beam.
func protonTransfer(a frame.Args) (t, pt float64) {
	mask := a.Bools(5)
	for i, isProton := range mask {
		if !isProton {
			continue
		}
		px, py, pz, m := a.Floats(0)[i], a.Floats(1)[i], a.Floats(2)[i], a.Floats(3)[i]
		e := math.Sqrt(px*px + py*py + pz*pz + m*m)
		t = px*px + py*py + (pz-protonBeam)*(pz-protonBeam) - (e-protonBeam)*(e-protonBeam)
		return t, math.Hypot(px, py)
	}
	return math.NaN(), math.NaN()
}

func makeHists(filename, variable string, printTree bool) ([]*hbook.H1D, error) {
	reg := seltree.NewRegistry()
	protonCols := []string{"Gen_px", "Gen_py", "Gen_pz", "Gen_mass", "Gen_pdg", "isproton"}
	vars := []struct {
		name, pos string
		e         frame.Expr
	}{
		{"isproton", seltree.Root, pdgMask(func(id int64) bool { return id == 2212 })},
		{"iselectron", seltree.Root, pdgMask(func(id int64) bool { return id == 11 || id == -11 })},
		{"nproton", seltree.Root, frame.CountTrue("isproton")},
		{"nelectron", seltree.Root, frame.CountTrue("iselectron")},
		{"Electron_px", seltree.Root, frame.Mask("Gen_px", "iselectron")},
		{"Electron_py", seltree.Root, frame.Mask("Gen_py", "iselectron")},
		{"Electron_pz", seltree.Root, frame.Mask("Gen_pz", "iselectron")},

		{"t", recoBranch, transfer(pickT, "Track_px", "Track_py", "Track_pz")},
		{"pt", recoBranch, transfer(pickPT, "Track_px", "Track_py", "Track_pz")},
		{"t", protonBranch, frame.Func(frame.Float, func(a frame.Args) (any, error) {
			t, _ := protonTransfer(a)
			return t, nil
		}, protonCols...)},
		{"pt", protonBranch, frame.Func(frame.Float, func(a frame.Args) (any, error) {
			_, pt := protonTransfer(a)
			return pt, nil
		}, protonCols...)},
		{"t", electronBranch, transfer(pickT, "Electron_px", "Electron_py", "Electron_pz")},
		{"pt", electronBranch, transfer(pickPT, "Electron_px", "Electron_py", "Electron_pz")},
	}
	for _, v := range vars {
		if err := reg.AddVariable(v.name, v.e, v.pos); err != nil {
			return nil, err
		}
	}
	for _, c := range []string{"len(Track_px) == 3", "nproton == 1", "nelectron == 3"} {
		if err := reg.AddCut(frame.Code(c), seltree.Root); err != nil {
			return nil, err
		}
	}
	models := map[string]frame.HistModel{
		"t":  {Name: "ht", Bins: 50, Lo: -1, Hi: 4},
		"pt": {Name: "hpt", Bins: 50, Lo: 0, Hi: 4},
	}
	for _, pos := range []string{recoBranch, protonBranch, electronBranch} {
		for name, m := range models {
			m.Title = name
			if err := reg.Add1DHistogram(m, name, "", pos); err != nil {
				return nil, err
			}
		}
	}

	tree := seltree.New(frame.New(source.OpenProio(filename)).Root())
	if err := tree.Book(reg); err != nil {
		return nil, err
	}
	if printTree {
		if err := tree.Print(os.Stdout); err != nil {
			return nil, err
		}
	}

	var out []*hbook.H1D
	for _, pos := range []string{protonBranch, electronBranch, recoBranch} {
		n, err := tree.Node(pos)
		if err != nil {
			return nil, err
		}
		for _, h := range n.Histograms() {
			if !strings.HasPrefix(h.Model().Name, models[variable].Name+"_") {
				continue
			}
			hh, err := h.Result(context.Background())
			if err != nil {
				return nil, err
			}
			out = append(out, hh)
		}
	}
	return out, nil
}
