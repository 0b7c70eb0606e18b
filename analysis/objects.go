package analysis

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/floats"

	"github.com/decibelcooper/nanoaodframe/calib"
	"github.com/decibelcooper/nanoaodframe/frame"
)

var (
	muonColumns = []string{
		"Muon_pt", "Muon_eta", "Muon_phi", "Muon_mass", "Muon_charge",
		"Muon_tightId", "Muon_looseId", "Muon_pfRelIso04_all",
	}
	jetColumns = []string{
		"Jet_pt", "Jet_eta", "Jet_phi", "Jet_mass", "Jet_jetId", "Jet_btagDeepFlavB",
		"Jet_hadronFlavour", "Jet_genJetIdx", "Jet_pt_unc", "Jet_jer",
	}
	tauColumns = []string{
		"Tau_pt", "Tau_eta", "Tau_phi", "Tau_mass", "Tau_charge", "Tau_jetIdx",
		"Tau_decayMode", "Tau_genPartFlav", "Tau_pt_unc",
		"tauWeightIdVsJet", "tauWeightIdVsEl", "tauWeightIdVsMu",
	}
)

// Minimal distance between a jet and a selected lepton.
const overlapDR = 0.4

// perObject builds a mask over the objects of the first input from a
// predicate on object i. Every input must have one entry per object.
func perObject(pred func(a frame.Args, i int) bool, inputs ...string) frame.Expr {
	return frame.Func(frame.Bools, func(a frame.Args) (any, error) {
		n := a.Len(0)
		for j := 1; j < len(a); j++ {
			if a.Len(j) != n {
				return nil, fmt.Errorf("%s has %d entries, %s has %d", inputs[0], n, inputs[j], a.Len(j))
			}
		}
		out := make([]bool, n)
		for i := range out {
			out[i] = pred(a, i)
		}
		return out, nil
	}, inputs...)
}

// scaleBy multiplies a float array column by a factor column.
func scaleBy(col, factor string) frame.Expr {
	return frame.Func(frame.Floats, func(a frame.Args) (any, error) {
		x, f := a.Floats(0), a.Floats(1)
		if len(x) != len(f) {
			return nil, fmt.Errorf("%s has %d entries, %s has %d", col, len(x), factor, len(f))
		}
		out := make([]float64, len(x))
		floats.MulTo(out, x, f)
		return out, nil
	}, col, factor)
}

// selectFactor picks one factor per object out of a per-object factor list.
func selectFactor(col string, idx int) frame.Expr {
	return frame.Func(frame.Floats, func(a frame.Args) (any, error) {
		return calib.Select(a.FloatsVec(0), idx), nil
	}, col)
}

// fourVecs builds the four-momenta of a collection from pt, eta, phi and
// mass in argument slots i to i+3.
func fourVecs(a frame.Args, i int) []fmom.PtEtaPhiM {
	pt, eta, phi, m := a.Floats(i), a.Floats(i+1), a.Floats(i+2), a.Floats(i+3)
	out := make([]fmom.PtEtaPhiM, len(pt))
	for j := range out {
		out[j] = fmom.NewPtEtaPhiM(pt[j], eta[j], phi[j], m[j])
	}
	return out
}

func p4Columns(prefix string) []string {
	return []string{prefix + "_pt", prefix + "_eta", prefix + "_phi", prefix + "_mass"}
}

func (a *Analysis) selectMuons(c *chain) {
	if !c.require("muon selection", "Muon_pt", "Muon_eta", "Muon_phi", "Muon_mass",
		"Muon_tightId", "Muon_looseId", "Muon_pfRelIso04_all") {
		return
	}
	c.define("muoncuts", perObject(func(a frame.Args, i int) bool {
		return a.Floats(0)[i] > 50 && math.Abs(a.Floats(1)[i]) < 2.4 && a.Bools(2)[i] && a.Floats(3)[i] < 0.15
	}, "Muon_pt", "Muon_eta", "Muon_tightId", "Muon_pfRelIso04_all"))
	c.define("vetomuoncuts", perObject(func(a frame.Args, i int) bool {
		return !a.Bools(0)[i] && a.Floats(1)[i] > 15 && math.Abs(a.Floats(2)[i]) < 2.4 && a.Bools(3)[i] && a.Floats(4)[i] < 0.25
	}, "muoncuts", "Muon_pt", "Muon_eta", "Muon_looseId", "Muon_pfRelIso04_all"))
	c.define("nvetomuons", frame.CountTrue("vetomuoncuts"))
	c.mask("muoncuts", muonColumns...)
	c.define("nmuonpass", frame.Size("Muon_pt"))

	if a.mc() {
		a.muonWeights(c)
	}
}

func (a *Analysis) selectElectrons(c *chain) {
	if !c.require("electron selection", "Electron_pt", "Electron_eta", "Electron_cutBased") {
		return
	}
	c.define("vetoelecuts", perObject(func(a frame.Args, i int) bool {
		return a.Floats(0)[i] > 15 && math.Abs(a.Floats(1)[i]) < 2.4 && a.Ints(2)[i] == 1
	}, "Electron_pt", "Electron_eta", "Electron_cutBased"))
	c.define("nvetoelepass", frame.CountTrue("vetoelecuts"))
}

func (a *Analysis) selectJets(c *chain) {
	if !c.require("jet selection", "Jet_pt", "Jet_eta", "Jet_phi", "Jet_mass", "Jet_jetId", "Jet_btagDeepFlavB") {
		return
	}

	if a.mc() && c.has("Jet_jer") {
		c.define("Jet_jer_toapply", selectFactor("Jet_jer", calib.JERIndex(a.cfg.Syst)))
		factor := "Jet_jer_toapply"
		if a.jesIdx >= 0 {
			if c.has("Jet_pt_unc") {
				c.define("Jet_pt_unc_toapply", selectFactor("Jet_pt_unc", a.jesIdx))
				c.define("Jet_corr_toapply", scaleBy("Jet_jer_toapply", "Jet_pt_unc_toapply"))
				factor = "Jet_corr_toapply"
			} else {
				a.log.Warn("no jet energy scale uncertainties, variation not applied", "syst", a.cfg.Syst)
			}
		}
		c.redefine("Jet_pt", scaleBy("Jet_pt", factor))
		c.redefine("Jet_mass", scaleBy("Jet_mass", factor))
	}

	c.define("jetcuts", perObject(func(a frame.Args, i int) bool {
		return a.Floats(0)[i] > 40 && math.Abs(a.Floats(1)[i]) < 2.4 && a.Ints(2)[i] == 6
	}, "Jet_pt", "Jet_eta", "Jet_jetId"))
	c.mask("jetcuts", jetColumns...)
	c.define("nJet", frame.Size("Jet_pt"))

	if a.mc() {
		a.btagWeights(c)
	}
}

func (a *Analysis) selectTaus(c *chain) {
	if !c.require("tau selection", "Tau_pt", "Tau_eta", "Tau_phi", "Tau_mass", "Tau_idDecayModeNewDMs",
		"Tau_idDeepTau2017v2p1VSmu", "Tau_idDeepTau2017v2p1VSe", "Tau_idDeepTau2017v2p1VSjet") {
		return
	}

	if a.mc() {
		a.tauWeights(c)
		a.tauEnergyScale(c)
		if idx := calib.TESIndex(a.cfg.Syst); idx >= 0 {
			if c.has("Tau_pt_unc") {
				c.define("Tau_pt_unc_toapply", selectFactor("Tau_pt_unc", idx))
				c.redefine("Tau_pt", scaleBy("Tau_pt", "Tau_pt_unc_toapply"))
				c.redefine("Tau_mass", scaleBy("Tau_mass", "Tau_pt_unc_toapply"))
			} else {
				a.log.Warn("no tau energy scale uncertainties, variation not applied", "syst", a.cfg.Syst)
			}
		}
	}

	// a tau is kept when at least one selected muon is away from it, so no
	// tau survives in events without a selected muon
	c.define("mutauoverlap", frame.Func(frame.Bools, func(a frame.Args) (any, error) {
		mus, taus := fourVecs(a, 0), fourVecs(a, 4)
		out := make([]bool, len(taus))
		for i := range taus {
			for j := range mus {
				if fmom.DeltaR(&mus[j], &taus[i]) >= overlapDR {
					out[i] = true
					break
				}
			}
		}
		return out, nil
	}, append(p4Columns("Muon"), p4Columns("Tau")...)...))

	c.define("taucuts", perObject(func(a frame.Args, i int) bool {
		return a.Floats(0)[i] > 40 && math.Abs(a.Floats(1)[i]) < 2.3 && a.Bools(2)[i]
	}, "Tau_pt", "Tau_eta", "Tau_idDecayModeNewDMs"))
	c.define("deeptauidcuts", perObject(func(a frame.Args, i int) bool {
		return a.Ints(0)[i]&8 != 0 && a.Ints(1)[i]&4 != 0 && a.Ints(2)[i]&64 != 0
	}, "Tau_idDeepTau2017v2p1VSmu", "Tau_idDeepTau2017v2p1VSe", "Tau_idDeepTau2017v2p1VSjet"))
	c.define("seltaucuts", perObject(func(a frame.Args, i int) bool {
		return a.Bools(0)[i] && a.Bools(1)[i] && a.Bools(2)[i]
	}, "taucuts", "deeptauidcuts", "mutauoverlap"))
	c.mask("seltaucuts", tauColumns...)
	c.define("ncleantaupass", frame.Size("Tau_pt"))
}

// jetLeptonOverlap marks the jets at least overlapDR away from every lepton.
func jetLeptonOverlap(lepton string) frame.Expr {
	return frame.Func(frame.Bools, func(a frame.Args) (any, error) {
		jets, leps := fourVecs(a, 0), fourVecs(a, 4)
		out := make([]bool, len(jets))
		for i := range jets {
			minDR := 6.
			for j := range leps {
				minDR = math.Min(minDR, fmom.DeltaR(&jets[i], &leps[j]))
			}
			out[i] = minDR >= overlapDR
		}
		return out, nil
	}, append(p4Columns("Jet"), p4Columns(lepton)...)...)
}

func (a *Analysis) removeOverlaps(c *chain) {
	if c.err != nil {
		return
	}
	c.define("muonjetoverlap", jetLeptonOverlap("Muon"))
	c.define("taujetoverlap", jetLeptonOverlap("Tau"))
	c.define("jetoverlap", perObject(func(a frame.Args, i int) bool {
		return a.Bools(0)[i] && a.Bools(1)[i]
	}, "muonjetoverlap", "taujetoverlap"))
	c.mask("jetoverlap", jetColumns...)
	c.define("ncleanjetspass", frame.Size("Jet_pt"))
	c.define("Jet_HT", frame.Sum("Jet_pt"))

	wp := bTagMediumWP[a.cfg.Year]
	c.define("btagcuts", perObject(func(a frame.Args, i int) bool {
		return a.Floats(0)[i] > wp
	}, "Jet_btagDeepFlavB"))
	for _, v := range []string{"pt", "eta", "phi", "mass", "btagDeepFlavB"} {
		c.define("bJet_"+v, frame.Mask("Jet_"+v, "btagcuts"))
	}
	c.define("ncleanbjetspass", frame.Size("bJet_pt"))
	c.define("bJet_HT", frame.Sum("bJet_pt"))
}
