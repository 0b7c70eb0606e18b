package calib

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EfficiencySF is an efficiency scale factor binned in |eta| and pt.
type EfficiencySF struct {
	t *Table2D
}

// NewEfficiencySF wraps a table with |eta| on x and pt on y.
func NewEfficiencySF(t *Table2D) (*EfficiencySF, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &EfficiencySF{t: t}, nil
}

// Variations returns {sf, sf+err, sf-err} for an event with exactly one
// selected object and {1, 1, 1} otherwise.
func (e *EfficiencySF) Variations(pt, eta []float64) []float64 {
	if len(pt) != 1 || len(eta) != 1 {
		return []float64{1, 1, 1}
	}
	sf, err := e.t.Lookup(math.Abs(eta[0]), pt[0])
	return []float64{sf, sf + err, sf - err}
}

// Tau generator matches.
const (
	GenMatchElectron      = 1
	GenMatchMuon          = 2
	GenMatchTauElectron   = 3
	GenMatchTauMuon       = 4
	GenMatchTauHadronic   = 5
	GenMatchFakeOrUnknown = 6
)

// Formula is a compiled expression of x.
type Formula struct {
	src  string
	prog *vm.Program
}

type formulaVars struct {
	X float64 `expr:"x"`
}

func unary(f func(float64) float64) func(...any) (any, error) {
	return func(p ...any) (any, error) { return f(toFloat(p[0])), nil }
}

func toFloat(v any) float64 {
	switch v := v.(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return math.NaN()
}

var formulaOptions = []expr.Option{
	expr.Env(formulaVars{}),
	expr.AsFloat64(),
	expr.Function("log", unary(math.Log), new(func(float64) float64)),
	expr.Function("exp", unary(math.Exp), new(func(float64) float64)),
	expr.Function("sqrt", unary(math.Sqrt), new(func(float64) float64)),
	expr.Function("erf", unary(math.Erf), new(func(float64) float64)),
	expr.Function("tanh", unary(math.Tanh), new(func(float64) float64)),
	expr.Function("pow", func(p ...any) (any, error) {
		return math.Pow(toFloat(p[0]), toFloat(p[1])), nil
	}, new(func(float64, float64) float64)),
}

// CompileFormula compiles src, an arithmetic expression of x. ROOT's TMath::
// prefix is accepted on the functions.
func CompileFormula(src string) (*Formula, error) {
	code := strings.NewReplacer("TMath::", "", "Log(", "log(", "Exp(", "exp(", "Sqrt(", "sqrt(", "Power(", "pow(", "Erf(", "erf(", "TanH(", "tanh(").Replace(src)
	prog, err := expr.Compile(code, formulaOptions...)
	if err != nil {
		return nil, fmt.Errorf("calib: formula %q: %w", src, err)
	}
	return &Formula{src: src, prog: prog}, nil
}

// Eval evaluates the formula at x.
func (f *Formula) Eval(x float64) (float64, error) {
	out, err := expr.Run(f.prog, formulaVars{X: x})
	if err != nil {
		return 0, fmt.Errorf("calib: formula %q at %g: %w", f.src, x, err)
	}
	return out.(float64), nil
}

func (f *Formula) String() string { return f.src }

// TauVsJet is the tau identification scale factor against jets, a function
// of pt applied to genuine hadronic taus.
type TauVsJet struct {
	Nom, Up, Down *Formula
}

// Variations returns {nom, up, down} per tau.
func (s *TauVsJet) Variations(pt []float64, genmatch []int64) ([][]float64, error) {
	out := make([][]float64, len(pt))
	for i := range pt {
		out[i] = []float64{1, 1, 1}
		if genmatch[i] != GenMatchTauHadronic {
			continue
		}
		for j, f := range []*Formula{s.Nom, s.Up, s.Down} {
			v, err := f.Eval(pt[i])
			if err != nil {
				return nil, err
			}
			out[i][j] = v
		}
	}
	return out, nil
}

// TauVsLepton is the tau identification scale factor against electrons or
// muons, binned in |eta| and applied to the matching generator objects.
type TauVsLepton struct {
	t       *Table1D
	matches [2]int64
}

// NewTauVsElectron applies t to taus matched to prompt or tau-decay
// electrons.
func NewTauVsElectron(t *Table1D) (*TauVsLepton, error) {
	return newTauVsLepton(t, GenMatchElectron, GenMatchTauElectron)
}

// NewTauVsMuon applies t to taus matched to prompt or tau-decay muons.
func NewTauVsMuon(t *Table1D) (*TauVsLepton, error) {
	return newTauVsLepton(t, GenMatchMuon, GenMatchTauMuon)
}

func newTauVsLepton(t *Table1D, a, b int64) (*TauVsLepton, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &TauVsLepton{t: t, matches: [2]int64{a, b}}, nil
}

// Variations returns {nom, up, down} per tau.
func (s *TauVsLepton) Variations(eta []float64, genmatch []int64) [][]float64 {
	out := make([][]float64, len(eta))
	for i := range eta {
		out[i] = []float64{1, 1, 1}
		if genmatch[i] != s.matches[0] && genmatch[i] != s.matches[1] {
			continue
		}
		sf, err := s.t.Lookup(math.Abs(eta[i]))
		out[i] = []float64{sf, sf + err, sf - err}
	}
	return out
}

// Tau energy scale interpolation range: below ptLow the low-pt uncertainty
// applies, above ptHigh the high-pt one.
const (
	tesPtLow  = 34.
	tesPtHigh = 170.
)

// TauES is the energy scale of genuine hadronic taus per decay mode, with
// the uncertainty interpolated linearly in pt between the low-pt and high-pt
// measurements.
type TauES struct {
	low, high *Table1D
}

// NewTauES takes the per decay mode tables of the low-pt and high-pt
// measurements. The high-pt table only contributes its errors.
func NewTauES(low, high *Table1D) (*TauES, error) {
	if err := low.Validate(); err != nil {
		return nil, err
	}
	if err := high.Validate(); err != nil {
		return nil, err
	}
	return &TauES{low: low, high: high}, nil
}

func tesDecayMode(dm int64) bool { return dm == 0 || dm == 1 || dm == 10 }

// Nominal returns the energy scale factor per tau, 1 for taus that are not
// genuine or have another decay mode.
func (s *TauES) Nominal(dm, genmatch []int64) []float64 {
	out := make([]float64, len(dm))
	for i := range dm {
		out[i] = 1
		if genmatch[i] == GenMatchTauHadronic && tesDecayMode(dm[i]) {
			out[i] = s.low.Value(float64(dm[i]))
		}
	}
	return out
}

// Variations returns {up, down} energy scale factors per tau; taus that are
// not genuine or have another decay mode get {1, 1}.
func (s *TauES) Variations(pt []float64, dm, genmatch []int64) [][]float64 {
	out := make([][]float64, len(pt))
	for i := range pt {
		out[i] = []float64{1, 1}
		if genmatch[i] != GenMatchTauHadronic || !tesDecayMode(dm[i]) {
			continue
		}
		x := float64(dm[i])
		tes, errLow := s.low.Lookup(x)
		_, errHigh := s.high.Lookup(x)
		err := errLow
		switch {
		case pt[i] >= tesPtHigh:
			err = errHigh
		case pt[i] > tesPtLow:
			err = errLow + (errHigh-errLow)*(pt[i]-tesPtLow)/(tesPtHigh-tesPtLow)
		}
		out[i] = []float64{tes + err, tes - err}
	}
	return out
}

// TauFES is the energy scale of electrons faking taus, given as
// {down, nom, up} per decay mode 0 and 1, in the barrel and the endcaps.
type TauFES struct {
	Barrel map[int64][3]float64
	Endcap map[int64][3]float64
}

func (s *TauFES) lookup(eta float64, dm, genmatch int64) ([3]float64, bool) {
	if genmatch != GenMatchElectron && genmatch != GenMatchTauElectron {
		return [3]float64{}, false
	}
	m := s.Endcap
	if math.Abs(eta) < 1.5 {
		m = s.Barrel
	}
	v, ok := m[dm]
	return v, ok
}

// Nominal returns the energy scale factor per tau.
func (s *TauFES) Nominal(eta []float64, dm, genmatch []int64) []float64 {
	out := make([]float64, len(eta))
	for i := range eta {
		out[i] = 1
		if v, ok := s.lookup(eta[i], dm[i], genmatch[i]); ok {
			out[i] = v[1]
		}
	}
	return out
}

// Variations returns {up, down} per tau.
func (s *TauFES) Variations(eta []float64, dm, genmatch []int64) [][]float64 {
	out := make([][]float64, len(eta))
	for i := range eta {
		out[i] = []float64{1, 1}
		if v, ok := s.lookup(eta[i], dm[i], genmatch[i]); ok {
			out[i] = []float64{v[2], v[0]}
		}
	}
	return out
}
