package analysis

import (
	"fmt"
	"strconv"

	"go-hep.org/x/hep/fmom"

	"github.com/decibelcooper/nanoaodframe/frame"
	"github.com/decibelcooper/nanoaodframe/seltree"
)

// DefaultMuonPtCuts are the leading muon pt thresholds of the default tree.
var DefaultMuonPtCuts = []float64{50}

// Weight is the column weighting every histogram and cutflow.
const Weight = "eventWeight"

// StoredColumns are the patterns of the columns written to the leaf outputs.
var StoredColumns = []string{
	"Muon_.*", "Tau_.*", "Jet_.*", "bJet_.*",
	"n.*pass", "nvetomuons", "mutau_.*",
	"one", "unitGenWeight", "puWeight", "muonWeight.*", "tauWeight.*",
	"btagWeight_DeepFlavB.*", "eventWeight",
}

func firstPair(a frame.Args) (mu, tau fmom.PtEtaPhiM, ok bool) {
	mus, taus := fourVecs(a, 0), fourVecs(a, 4)
	if len(mus) == 0 || len(taus) == 0 {
		return mu, tau, false
	}
	return mus[0], taus[0], true
}

var mutauInputs = append(p4Columns("Muon"), p4Columns("Tau")...)

// Register describes the default μτ selection tree. Each muon pt threshold
// opens a branch under the root requiring exactly one muon above it and no
// veto lepton; below it, exactly one clean tau, then a split between events
// with at least 3 jets and a b jet and events without b jet.
func Register(r *seltree.Registry, muPtCuts []float64) error {
	if len(muPtCuts) > seltree.MaxChildren {
		return fmt.Errorf("analysis: %d muon pt cuts, at most %d", len(muPtCuts), seltree.MaxChildren)
	}

	steps := []func() error{
		func() error {
			return r.AddVariable("mu_pt0", frame.Func(frame.Float, func(a frame.Args) (any, error) {
				if pt := a.Floats(0); len(pt) > 0 {
					return pt[0], nil
				}
				return -1., nil
			}, "Muon_pt"), seltree.Root)
		},
		func() error {
			return r.Add1DHistogram(frame.HistModel{Name: "hnmuon", Title: "number of muons", Bins: 5, Lo: 0, Hi: 5},
				"nmuonpass", Weight, seltree.Root)
		},
		func() error {
			return r.Add1DHistogram(frame.HistModel{Name: "hmuon_pt", Title: "muon pt", Bins: 40, Lo: 0, Hi: 400},
				"Muon_pt", Weight, seltree.Root)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	for k, cut := range muPtCuts {
		b := strconv.FormatInt(int64(k), 36)
		if err := registerBranch(r, b, cut); err != nil {
			return err
		}
	}

	for _, p := range StoredColumns {
		if err := r.AddVarToStore(p); err != nil {
			return err
		}
	}
	return nil
}

func registerBranch(r *seltree.Registry, b string, muPtCut float64) error {
	tau, jets := b+"0", b+"00"
	cuts := []struct {
		src    string
		parent string
	}{
		{fmt.Sprintf("nmuonpass == 1 && nvetomuons == 0 && nvetoelepass == 0 && mu_pt0 > %g", muPtCut), seltree.Root},
		{"ncleantaupass == 1", b},
		{"ncleanjetspass >= 3 && ncleanbjetspass >= 1", tau},
		{"ncleanbjetspass == 0", tau},
	}
	for _, c := range cuts {
		if err := r.AddCut(frame.Code(c.src), c.parent); err != nil {
			return err
		}
	}

	err := r.AddVariable("mutau_mass", frame.Func(frame.Float, func(a frame.Args) (any, error) {
		mu, tau, ok := firstPair(a)
		if !ok {
			return 0., nil
		}
		return fmom.Add(&mu, &tau).M(), nil
	}, mutauInputs...), tau)
	if err != nil {
		return err
	}
	err = r.AddVariable("mutau_dr", frame.Func(frame.Float, func(a frame.Args) (any, error) {
		mu, tau, ok := firstPair(a)
		if !ok {
			return 0., nil
		}
		return fmom.DeltaR(&mu, &tau), nil
	}, mutauInputs...), tau)
	if err != nil {
		return err
	}

	for _, h := range []struct {
		m     frame.HistModel
		value string
	}{
		{frame.HistModel{Name: "hmutau_mass", Title: "mu tau mass", Bins: 50, Lo: 0, Hi: 500}, "mutau_mass"},
		{frame.HistModel{Name: "htau_pt", Title: "tau pt", Bins: 40, Lo: 0, Hi: 400}, "Tau_pt"},
		{frame.HistModel{Name: "hnjets", Title: "number of jets", Bins: 10, Lo: 0, Hi: 10}, "ncleanjetspass"},
		{frame.HistModel{Name: "hnbjets", Title: "number of b jets", Bins: 5, Lo: 0, Hi: 5}, "ncleanbjetspass"},
		{frame.HistModel{Name: "hjet_ht", Title: "jet HT", Bins: 50, Lo: 0, Hi: 1000}, "Jet_HT"},
	} {
		if err := r.Add1DHistogram(h.m, h.value, Weight, tau); err != nil {
			return err
		}
	}
	m := frame.HistModel{Name: "hbjet_pt", Title: "b jet pt", Bins: 40, Lo: 0, Hi: 400}
	return r.Add1DHistogram(m, "bJet_pt", Weight, jets)
}
