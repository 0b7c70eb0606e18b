package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/profile"
	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe"
	"github.com/decibelcooper/nanoaodframe/analysis"
	"github.com/decibelcooper/nanoaodframe/calib"
	"github.com/decibelcooper/nanoaodframe/config"
	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/lumimask"
	"github.com/decibelcooper/nanoaodframe/metrics"
	"github.com/decibelcooper/nanoaodframe/output"
	"github.com/decibelcooper/nanoaodframe/seltree"
	"github.com/decibelcooper/nanoaodframe/source"
)

var (
	year        = flag.String("year", "", "data-taking year (2016pre, 2016post, 2017, 2018), guessed from the input name when empty")
	syst        = flag.String("syst", "", "systematic variation (up_jes<Source>, jerup, jerdown, tesup, tesdown)")
	treeName    = flag.String("tree", "Events", "name of the input tree")
	out         = flag.String("out", "out.root", "output file, one per leaf of the selection tree")
	format      = flag.String("format", "root", "output format: root or msgpack")
	calibPath   = flag.String("calib", "", "calibration set (YAML)")
	golden      = flag.String("golden", "", "certified luminosity JSON applied to data")
	configPath  = flag.String("config", "", "analysis description (YAML)")
	saveAll     = flag.Bool("saveall", false, "store every column instead of the selected ones")
	plotDir     = flag.String("plots", "", "also render every histogram into this directory")
	pushgateway = flag.String("pushgateway", "", "Prometheus Pushgateway receiving the cutflow")
	workers     = flag.Int("workers", 4, "workers of the PDF weight pre-pass")
	doProfile   = flag.Bool("profile", false, "write a CPU profile")
	verbose     = flag.Bool("v", false, "verbose logging")

	muPtCuts = nanoaodframe.FloatArrayFlags{Array: analysis.DefaultMuonPtCuts}
	branches = nanoaodframe.StringArrayFlags{}
)

func init() {
	flag.Var(&muPtCuts, "muptcut", "leading muon pt threshold opening a branch (may be repeated)")
	flag.Var(&branches, "branches", "read only the branches matching these regular expressions (may be repeated)")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: `+os.Args[0]+` [options] <nanoaod-root-file>

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	log.SetPrefix("processnano: ")
	log.SetFlags(0)

	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() != 1 {
		printUsage()
		log.Fatal("Invalid arguments")
	}
	input := flag.Arg(0)

	if *doProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	desc := &config.File{DefaultTree: true}
	if *configPath != "" {
		var err error
		if desc, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	override(desc)

	if desc.Year == "" {
		y, err := analysis.DetectYear(filepath.Base(input))
		if err != nil {
			log.Fatalf("%v, set -year", err)
		}
		desc.Year = y
	}

	var srcOpts []source.Option
	srcOpts = append(srcOpts, source.WithLogger(logger))
	if len(branches.Array) > 0 {
		srcOpts = append(srcOpts, source.WithBranches(branches.Array...))
	}
	src, err := source.OpenROOT(input, *treeName, srcOpts...)
	if err != nil {
		log.Fatal(err)
	}
	isData := analysis.IsData(src.Columns())
	logger.Info("input", "file", input, "year", desc.Year, "data", isData, "syst", desc.Syst)

	cfg := analysis.Config{Year: desc.Year, Syst: desc.Syst, IsData: isData}
	if isData {
		if desc.Golden != "" {
			if cfg.Mask, err = lumimask.Load(desc.Golden); err != nil {
				log.Fatal(err)
			}
			logger.Info("luminosity mask", "file", desc.Golden, "runs", cfg.Mask.Runs())
		}
	} else if desc.Calib != "" {
		cfg.Calib, err = calib.Load(desc.Calib, logger)
		switch {
		case errors.Is(err, calib.ErrCalibrationMissing):
			logger.Warn("calibration set missing, weights skipped", "err", err)
		case err != nil:
			log.Fatal(err)
		}
	}

	a, err := analysis.New(cfg, analysis.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	f := frame.New(src, frame.WithLogger(logger))
	sel, err := a.Select(f.Root())
	if err != nil {
		log.Fatal(err)
	}

	var extra []*hbook.H1D
	if !isData {
		pdf, err := a.PDFWeightSum(ctx, f.Root(), *workers)
		if err != nil {
			log.Fatal(err)
		}
		if pdf != nil {
			extra = append(extra, pdf)
		}
	}

	reg := seltree.NewRegistry()
	if desc.DefaultTree {
		if err := analysis.Register(reg, desc.MuonPtCuts); err != nil {
			log.Fatal(err)
		}
	}
	if err := desc.Apply(reg); err != nil {
		log.Fatal(err)
	}

	tree := seltree.New(sel, seltree.WithLogger(logger))
	if err := tree.Book(reg); err != nil {
		log.Fatal(err)
	}
	if err := tree.Print(os.Stdout); err != nil {
		log.Fatal(err)
	}

	var cf *seltree.Cutflow
	if *pushgateway != "" {
		if cf, err = tree.Cutflow(analysis.Weight); err != nil {
			log.Fatal(err)
		}
	}

	var sink output.Sink
	switch *format {
	case "root":
		sink = output.ROOTSink{}
	case "msgpack":
		sink = output.MsgpackSink{}
	default:
		log.Fatalf("unknown output format %q", *format)
	}
	if *plotDir != "" {
		sink = output.PlotSink{Sink: sink, Dir: *plotDir}
	}

	m := output.NewMaterializer(*out, sink,
		output.WithLogger(logger),
		output.SaveAll(*saveAll),
		output.WithCutflow(analysis.Weight),
		output.WithHistograms(extra...),
	)
	res, err := m.Run(ctx, tree, reg.StorePatterns())
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range res {
		fmt.Printf("%-6q %s: %d rows, %d columns, %d histograms\n", r.Position, r.Dest, r.Rows, len(r.Columns), r.Hists)
	}

	if cf != nil {
		stages, err := cf.Stages(ctx)
		if err != nil {
			log.Fatal(err)
		}
		mc := metrics.NewCutflow(filepath.Base(input))
		mc.Set(stages, f.Loops())
		if err := mc.Push(ctx, *pushgateway, "processnano"); err != nil {
			logger.Error("pushing cutflow", "err", err)
		}
	}
}

// override applies the flags set on the command line over the analysis
// description.
func override(desc *config.File) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "year":
			desc.Year = *year
		case "syst":
			desc.Syst = *syst
		case "calib":
			desc.Calib = *calibPath
		case "golden":
			desc.Golden = *golden
		case "muptcut":
			desc.MuonPtCuts = muPtCuts.Array
		}
	})
	if len(desc.MuonPtCuts) == 0 {
		desc.MuonPtCuts = muPtCuts.Array
	}
}
