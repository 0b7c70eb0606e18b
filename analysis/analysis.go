// Package analysis is the object selection stage of the lepton flavour
// violation analysis and its default selection tree.
//
// Select derives the selected muon, electron, jet and tau collections, the
// event weights and their variations on a frame node; Register describes the
// cuts, variables, histograms and stored columns booked on top of it.
package analysis

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/decibelcooper/nanoaodframe/calib"
	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/lumimask"
)

// Data-taking years.
const (
	Year2016Pre  = "2016pre"
	Year2016Post = "2016post"
	Year2017     = "2017"
	Year2018     = "2018"
)

// medium working points of the DeepJet b tagger
var bTagMediumWP = map[string]float64{
	Year2016Pre:  0.2598,
	Year2016Post: 0.2489,
	Year2017:     0.3040,
	Year2018:     0.2783,
}

// DetectYear finds the data-taking year in a file or dataset name.
func DetectYear(name string) (string, error) {
	for _, y := range []string{Year2016Pre, Year2016Post, Year2017, Year2018} {
		if strings.Contains(name, y) {
			return y, nil
		}
	}
	return "", fmt.Errorf("analysis: no data-taking year in %q", name)
}

// IsData reports whether the columns describe collision data, which carry
// no generator weight.
func IsData(cols []frame.Column) bool {
	for _, c := range cols {
		if c.Name == "genWeight" {
			return false
		}
	}
	return true
}

// Config selects the variant of the analysis.
type Config struct {
	Year   string
	Syst   string
	IsData bool
	// Calib holds the calibrations; nil or absent entries skip the
	// corresponding weights.
	Calib *calib.Set
	// Mask filters data events; nil keeps every event.
	Mask *lumimask.Mask
}

// Analysis applies the object selection.
type Analysis struct {
	cfg     Config
	log     *slog.Logger
	jesVars []string
	jesIdx  int
}

// Option configures an Analysis.
type Option func(*Analysis)

// WithLogger sets the logger reporting skipped corrections.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analysis) { a.log = l }
}

// New checks the configuration and returns the analysis.
func New(cfg Config, opts ...Option) (*Analysis, error) {
	if _, ok := bTagMediumWP[cfg.Year]; !ok {
		return nil, fmt.Errorf("analysis: unknown year %q", cfg.Year)
	}
	if cfg.Calib == nil {
		cfg.Calib = &calib.Set{}
	}
	a := &Analysis{cfg: cfg, jesVars: calib.JESVariations(cfg.Year)}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var err error
	if a.jesIdx, err = calib.JESIndex(cfg.Syst, a.jesVars); err != nil {
		return nil, err
	}
	if cfg.IsData && cfg.Syst != "" {
		a.log.Warn("systematic variation ignored on data", "syst", cfg.Syst)
	}
	return a, nil
}

func (a *Analysis) mc() bool { return !a.cfg.IsData }

// Select returns the node holding the selected objects and event weights.
// Data events outside the luminosity mask are filtered out.
func (a *Analysis) Select(n *frame.Node) (*frame.Node, error) {
	c := &chain{n: n, log: a.log}
	a.setup(c)
	a.selectMuons(c)
	a.selectElectrons(c)
	a.selectJets(c)
	a.selectTaus(c)
	a.removeOverlaps(c)
	a.eventWeight(c)
	if c.err != nil {
		return nil, fmt.Errorf("analysis: %w", c.err)
	}
	return c.n, nil
}

// chain applies node operations until the first error.
type chain struct {
	n   *frame.Node
	log *slog.Logger
	err error
}

func (c *chain) define(name string, e frame.Expr) {
	if c.err == nil {
		c.n, c.err = c.n.Define(name, e)
	}
}

func (c *chain) redefine(name string, e frame.Expr) {
	if c.err == nil {
		c.n, c.err = c.n.Redefine(name, e)
	}
}

func (c *chain) filter(label string, e frame.Expr) {
	if c.err == nil {
		c.n, c.err = c.n.Filter(label, e)
	}
}

// has reports whether every column is visible.
func (c *chain) has(names ...string) bool {
	if c.err != nil {
		return false
	}
	for _, name := range names {
		if !c.n.Has(name) {
			return false
		}
	}
	return true
}

// require records an error for the first missing column.
func (c *chain) require(step string, names ...string) bool {
	if c.err != nil {
		return false
	}
	for _, name := range names {
		if !c.n.Has(name) {
			c.err = fmt.Errorf("%s: %w %q", step, frame.ErrUnknownColumn, name)
			return false
		}
	}
	return true
}

// mask keeps the objects selected by mask in every visible column.
func (c *chain) mask(mask string, cols ...string) {
	for _, col := range cols {
		if c.has(col) {
			c.redefine(col, frame.Mask(col, mask))
		}
	}
}
