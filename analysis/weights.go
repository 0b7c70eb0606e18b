package analysis

import (
	"context"
	"fmt"

	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/floats"

	"github.com/decibelcooper/nanoaodframe/calib"
	"github.com/decibelcooper/nanoaodframe/frame"
)

// Number of PDF weight bins summed by PDFWeightSum.
const nPDFWeights = 103

// PDFWeightSumName is the name of the histogram of summed PDF weights.
const PDFWeightSumName = "LHEPdfWeightSum"

func (a *Analysis) setup(c *chain) {
	c.define("one", frame.Const(1.0))

	if !a.mc() {
		if a.cfg.Mask == nil {
			return
		}
		if !c.require("luminosity mask", "run", "luminosityBlock") {
			return
		}
		mask := a.cfg.Mask
		c.define("goodjsonevent", frame.Func(frame.Bool, func(a frame.Args) (any, error) {
			return mask.Contains(a.Int(0), a.Int(1)), nil
		}, "run", "luminosityBlock"))
		c.filter("goodjsonevent", frame.Col("goodjsonevent"))
		return
	}

	if !c.require("generator weight", "genWeight") {
		return
	}
	c.define("unitGenWeight", frame.CodeAs(frame.Float, "genWeight != 0 ? genWeight/abs(genWeight) : 0.0"))

	pu := a.cfg.Calib.Pileup
	switch {
	case pu == nil:
		a.log.Warn("no pileup profiles, pileup weight skipped")
	case !c.has("Pileup_nTrueInt"):
		a.log.Warn("no Pileup_nTrueInt column, pileup weight skipped")
	default:
		c.define("puWeight", frame.Func(frame.Floats, func(a frame.Args) (any, error) {
			w := pu.Weights(a.Float(0))
			return w[:], nil
		}, "Pileup_nTrueInt"))
	}
}

func (a *Analysis) muonWeights(c *chain) {
	for _, w := range []struct {
		name string
		sf   *calib.EfficiencySF
	}{
		{"muonWeightId", a.cfg.Calib.MuonID},
		{"muonWeightIso", a.cfg.Calib.MuonIso},
		{"muonWeightTrg", a.cfg.Calib.MuonTrigger},
	} {
		if w.sf == nil {
			a.log.Warn("no muon scale factors, weight skipped", "weight", w.name)
			continue
		}
		sf := w.sf
		c.define(w.name, frame.Func(frame.Floats, func(a frame.Args) (any, error) {
			return sf.Variations(a.Floats(0), a.Floats(1)), nil
		}, "Muon_pt", "Muon_eta"))
	}
}

func (a *Analysis) btagWeights(c *chain) {
	cal := a.cfg.Calib
	if cal.BTag == nil {
		a.log.Warn("no b-tag calibration, weight skipped")
		return
	}
	if !c.has("Jet_hadronFlavour") {
		a.log.Warn("no Jet_hadronFlavour column, b-tag weight skipped")
		return
	}
	inputs := []string{"Jet_pt", "Jet_eta", "Jet_btagDeepFlavB", "Jet_hadronFlavour"}
	c.define("btagWeight_DeepFlavB", frame.Func(frame.Floats, func(a frame.Args) (any, error) {
		if err := sameLen(a, inputs); err != nil {
			return nil, err
		}
		return cal.BTag.ReshapeWeights(calib.BTagVariations, a.Floats(0), a.Floats(1), a.Floats(2), a.Ints(3))
	}, inputs...))

	if cal.BTagJES == nil || !c.has("Jet_pt_unc") {
		return
	}
	vars := a.jesVars
	jesInputs := append(inputs[:4:4], "Jet_pt_unc")
	c.define("btagWeight_DeepFlavB_jes", frame.Func(frame.Floats, func(a frame.Args) (any, error) {
		if err := sameLen(a, jesInputs); err != nil {
			return nil, err
		}
		jes := a.FloatsVec(4)
		for j, f := range jes {
			if len(f) < len(vars) {
				return nil, fmt.Errorf("jet %d has %d energy scale factors, want %d", j, len(f), len(vars))
			}
		}
		return cal.BTagJES.ReshapeWeightsJES(vars, a.Floats(0), a.Floats(1), a.Floats(2), a.Ints(3), jes)
	}, jesInputs...))
}

// sameLen checks that every array argument has one entry per object.
func sameLen(a frame.Args, names []string) error {
	for i := 1; i < len(a); i++ {
		if a.Len(i) != a.Len(0) {
			return fmt.Errorf("%s has %d entries, %s has %d", names[0], a.Len(0), names[i], a.Len(i))
		}
	}
	return nil
}

func (a *Analysis) tauWeights(c *chain) {
	cal := a.cfg.Calib
	if !c.has("Tau_genPartFlav") {
		a.log.Warn("no Tau_genPartFlav column, tau weights skipped")
		return
	}
	if sf := cal.TauVsJet; sf != nil {
		c.define("tauWeightIdVsJet", frame.Func(frame.FloatsVec, func(a frame.Args) (any, error) {
			if err := sameLen(a, []string{"Tau_pt", "Tau_genPartFlav"}); err != nil {
				return nil, err
			}
			return sf.Variations(a.Floats(0), a.Ints(1))
		}, "Tau_pt", "Tau_genPartFlav"))
	} else {
		a.log.Warn("no tau scale factors, weight skipped", "weight", "tauWeightIdVsJet")
	}
	for _, w := range []struct {
		name string
		sf   *calib.TauVsLepton
	}{
		{"tauWeightIdVsEl", cal.TauVsElectron},
		{"tauWeightIdVsMu", cal.TauVsMuon},
	} {
		if w.sf == nil {
			a.log.Warn("no tau scale factors, weight skipped", "weight", w.name)
			continue
		}
		sf := w.sf
		c.define(w.name, frame.Func(frame.FloatsVec, func(a frame.Args) (any, error) {
			if err := sameLen(a, []string{"Tau_eta", "Tau_genPartFlav"}); err != nil {
				return nil, err
			}
			return sf.Variations(a.Floats(0), a.Ints(1)), nil
		}, "Tau_eta", "Tau_genPartFlav"))
	}
}

// tauEnergyScale corrects genuine taus with the tau energy scale and taus
// from electrons with the fake energy scale. Tau_pt_unc holds the {up, down}
// factors per tau, evaluated at the uncorrected pt.
func (a *Analysis) tauEnergyScale(c *chain) {
	tes, fes := a.cfg.Calib.TauES, a.cfg.Calib.TauFES
	if tes == nil && fes == nil {
		a.log.Warn("no tau energy scales, correction skipped")
		return
	}
	if !c.has("Tau_decayMode", "Tau_genPartFlav") {
		a.log.Warn("no tau decay mode or generator match, energy scale skipped")
		return
	}
	inputs := []string{"Tau_pt", "Tau_eta", "Tau_decayMode", "Tau_genPartFlav"}

	c.define("Tau_pt_uncor", frame.Col("Tau_pt"))
	c.define("Tau_es", frame.Func(frame.Floats, func(a frame.Args) (any, error) {
		if err := sameLen(a, inputs); err != nil {
			return nil, err
		}
		out := make([]float64, a.Len(0))
		for i := range out {
			out[i] = 1
		}
		if tes != nil {
			floats.Mul(out, tes.Nominal(a.Ints(2), a.Ints(3)))
		}
		if fes != nil {
			floats.Mul(out, fes.Nominal(a.Floats(1), a.Ints(2), a.Ints(3)))
		}
		return out, nil
	}, inputs...))
	c.redefine("Tau_pt", scaleBy("Tau_pt", "Tau_es"))
	c.redefine("Tau_mass", scaleBy("Tau_mass", "Tau_es"))

	uncInputs := append([]string{"Tau_pt_uncor"}, inputs[1:]...)
	c.define("Tau_pt_unc", frame.Func(frame.FloatsVec, func(a frame.Args) (any, error) {
		if err := sameLen(a, uncInputs); err != nil {
			return nil, err
		}
		out := make([][]float64, a.Len(0))
		for i := range out {
			out[i] = []float64{1, 1}
		}
		// the two corrections apply to disjoint generator matches
		if tes != nil {
			for i, v := range tes.Variations(a.Floats(0), a.Ints(2), a.Ints(3)) {
				floats.Mul(out[i], v)
			}
		}
		if fes != nil {
			for i, v := range fes.Variations(a.Floats(1), a.Ints(2), a.Ints(3)) {
				floats.Mul(out[i], v)
			}
		}
		return out, nil
	}, uncInputs...))
}

// eventWeight is the product of the nominal weights available on MC and 1
// on data.
func (a *Analysis) eventWeight(c *chain) {
	if c.err != nil {
		return
	}
	if !a.mc() {
		c.define("eventWeight", frame.Const(1.0))
		return
	}

	var scalar, perTau []string
	for _, name := range []string{
		"puWeight", "muonWeightId", "muonWeightIso", "muonWeightTrg", "btagWeight_DeepFlavB",
	} {
		if c.has(name) {
			scalar = append(scalar, name)
		}
	}
	for _, name := range []string{"tauWeightIdVsJet", "tauWeightIdVsEl", "tauWeightIdVsMu"} {
		if c.has(name) {
			perTau = append(perTau, name)
		}
	}
	inputs := append(append([]string{"unitGenWeight"}, scalar...), perTau...)
	a.log.Debug("event weight", "factors", inputs)

	c.define("eventWeight", frame.Func(frame.Float, func(a frame.Args) (any, error) {
		w := make([]float64, 0, len(a))
		w = append(w, a.Float(0))
		for i := 1; i <= len(scalar); i++ {
			if v := a.Floats(i); len(v) > 0 {
				w = append(w, v[0])
			}
		}
		for i := 1 + len(scalar); i < len(a); i++ {
			for _, v := range a.FloatsVec(i) {
				if len(v) > 0 {
					w = append(w, v[0])
				}
			}
		}
		return floats.Prod(w), nil
	}, inputs...))
}

// PDFWeightSum sums the LHEPdfWeight arrays of the events reaching n, bin i
// holding the sum of the i-th weights. It returns nil when n has no
// LHEPdfWeight column.
func (a *Analysis) PDFWeightSum(ctx context.Context, n *frame.Node, workers int) (*hbook.H1D, error) {
	if !n.Has("LHEPdfWeight") {
		a.log.Info("no PDF weights in input")
		return nil, nil
	}
	sum, err := frame.Aggregate(ctx, n, workers,
		func() []float64 { return make([]float64, nPDFWeights) },
		func(acc []float64, args frame.Args) ([]float64, error) {
			w := args.Floats(0)
			if len(w) > len(acc) {
				return nil, fmt.Errorf("%d PDF weights, at most %d are summed", len(w), len(acc))
			}
			floats.Add(acc[:len(w)], w)
			return acc, nil
		},
		func(x, y []float64) []float64 {
			floats.Add(x, y)
			return x
		},
		"LHEPdfWeight",
	)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	h := hbook.NewH1D(nPDFWeights, 0, nPDFWeights)
	for i, v := range sum {
		h.Fill(float64(i)+0.5, v)
	}
	h.Annotation()["name"] = PDFWeightSumName
	h.Annotation()["title"] = PDFWeightSumName
	return h, nil
}
