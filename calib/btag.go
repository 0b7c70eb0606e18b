package calib

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Jet flavours of b-tagging calibrations.
type Flavor int

const (
	FlavorB Flavor = iota
	FlavorC
	FlavorUDSG
)

// FlavorOf maps a hadron flavour (5 b, 4 c) to a calibration flavour.
func FlavorOf(hadronFlavour int64) Flavor {
	switch hadronFlavour {
	case 5:
		return FlavorB
	case 4:
		return FlavorC
	}
	return FlavorUDSG
}

// Operating points of b-tagging calibrations.
const (
	OpLoose = iota
	OpMedium
	OpTight
	OpReshaping
)

// Reshaping weights are computed for jets above this pt.
const BTagMinPt = 40.

type btagEntry struct {
	etaMin, etaMax     float64
	ptMin, ptMax       float64
	discrMin, discrMax float64
	f                  *Formula
}

type btagKey struct {
	sys string
	fl  Flavor
}

// BTag evaluates b-tagging scale factors from a calibration CSV file. For the
// reshaping operating point the formulas are functions of the discriminant,
// otherwise of pt.
type BTag struct {
	op      int
	entries map[btagKey][]btagEntry
}

// ReadBTagCSV reads the entries of operating point op and measurement type
// from a calibration CSV. Only the systematics listed, and "central", are
// kept; all are kept when systs is empty.
func ReadBTagCSV(r io.Reader, op int, measurement string, systs ...string) (*BTag, error) {
	keep := map[string]bool{"central": true}
	for _, s := range systs {
		keep[s] = true
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	b := &BTag{op: op, entries: make(map[btagKey][]btagEntry)}
	formulas := make(map[string]*Formula)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calib: b-tag csv: %w", err)
		}
		if (line == 1 && strings.Contains(rec[0], "OperatingPoint")) || len(rec) == 1 {
			continue
		}
		if len(rec) != 11 {
			return nil, fmt.Errorf("calib: b-tag csv line %d: %d fields, want 11", line, len(rec))
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}

		recOp, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("calib: b-tag csv line %d: %w", line, err)
		}
		if recOp != op || rec[1] != measurement || (len(systs) > 0 && !keep[rec[2]]) {
			continue
		}

		var nums [7]float64
		for i := range nums {
			nums[i], err = strconv.ParseFloat(rec[3+i], 64)
			if err != nil {
				return nil, fmt.Errorf("calib: b-tag csv line %d: %w", line, err)
			}
		}
		src := strings.Trim(rec[10], `"`)
		f := formulas[src]
		if f == nil {
			if f, err = CompileFormula(src); err != nil {
				return nil, fmt.Errorf("calib: b-tag csv line %d: %w", line, err)
			}
			formulas[src] = f
		}

		k := btagKey{sys: rec[2], fl: Flavor(nums[0])}
		b.entries[k] = append(b.entries[k], btagEntry{
			etaMin: nums[1], etaMax: nums[2],
			ptMin: nums[3], ptMax: nums[4],
			discrMin: nums[5], discrMax: nums[6],
			f: f,
		})
	}
	return b, nil
}

// LoadBTagCSV reads a calibration CSV file.
func LoadBTagCSV(path string, op int, measurement string, systs ...string) (*BTag, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingError{Path: path}
		}
		return nil, err
	}
	defer f.Close()
	return ReadBTagCSV(f, op, measurement, systs...)
}

func (b *BTag) usesDiscr() bool { return b.op == OpReshaping }

func (b *BTag) inBin(e *btagEntry, eta, pt, discr float64) bool {
	if eta < e.etaMin || eta >= e.etaMax || pt < e.ptMin || pt >= e.ptMax {
		return false
	}
	return !b.usesDiscr() || (discr >= e.discrMin && discr < e.discrMax)
}

// Eval returns the scale factor of the bin holding the jet, 0 when none does.
// Tables given in |eta| are looked up with |eta|.
func (b *BTag) Eval(sys string, fl Flavor, eta, pt, discr float64) (float64, error) {
	entries := b.entries[btagKey{sys, fl}]
	if len(entries) == 0 {
		return 0, fmt.Errorf("calib: no b-tag calibration for %q, flavour %d", sys, fl)
	}
	if b.absEta(entries) {
		eta = math.Abs(eta)
	}
	for i := range entries {
		e := &entries[i]
		if !b.inBin(e, eta, pt, discr) {
			continue
		}
		x := pt
		if b.usesDiscr() {
			x = discr
		}
		return e.f.Eval(x)
	}
	return 0, nil
}

func (b *BTag) absEta(entries []btagEntry) bool {
	for _, e := range entries {
		if e.etaMin < 0 {
			return false
		}
	}
	return true
}

func (b *BTag) ptBounds(entries []btagEntry, eta, discr float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := range entries {
		e := &entries[i]
		if eta < e.etaMin || eta >= e.etaMax {
			continue
		}
		if b.usesDiscr() && (discr < e.discrMin || discr >= e.discrMax) {
			continue
		}
		lo, hi = math.Min(lo, e.ptMin), math.Max(hi, e.ptMax)
	}
	return lo, hi
}

// EvalAutoBounds evaluates the scale factor with pt clamped to the
// calibrated range. Jets outside the eta range get 1. Out of pt range
// variations have their deviation from the central value doubled.
func (b *BTag) EvalAutoBounds(sys string, fl Flavor, eta, pt, discr float64) (float64, error) {
	entries := b.entries[btagKey{"central", fl}]
	if len(entries) == 0 {
		return 1, nil
	}
	etaMin, etaMax := math.Inf(1), math.Inf(-1)
	for _, e := range entries {
		etaMin, etaMax = math.Min(etaMin, e.etaMin), math.Max(etaMax, e.etaMax)
	}
	if etaMin >= 0 {
		eta = math.Abs(eta)
	}
	if eta < etaMin || eta >= etaMax {
		return 1, nil
	}

	lo, hi := b.ptBounds(entries, eta, discr)
	ptEval, outside := pt, false
	switch {
	case pt <= lo:
		ptEval, outside = lo+1e-4, true
	case pt >= hi:
		ptEval, outside = hi-1e-4, true
	}

	sf, err := b.Eval("central", fl, eta, ptEval, discr)
	if err != nil || sys == "central" {
		return sf, err
	}
	sfSys, err := b.Eval(sys, fl, eta, ptEval, discr)
	if err != nil {
		return 0, err
	}
	if outside {
		sfSys = sf + 2*(sfSys-sf)
	}
	return sfSys, nil
}

// BTagVariations are the reshaping variations, central first.
var BTagVariations = []string{
	"central",
	"up_hf", "down_hf", "up_lf", "down_lf",
	"up_hfstats1", "down_hfstats1", "up_hfstats2", "down_hfstats2",
	"up_lfstats1", "down_lfstats1", "up_lfstats2", "down_lfstats2",
	"up_cferr1", "down_cferr1", "up_cferr2", "down_cferr2",
}

// ReshapeWeights returns, for each variation, the product of the reshaping
// scale factors of the jets above BTagMinPt. Charm variations (containing
// "cferr") only weigh c jets and all other variations only weigh b and light
// jets.
func (b *BTag) ReshapeWeights(variations []string, pt, eta, discr []float64, hadronFlavour []int64) ([]float64, error) {
	out := make([]float64, len(variations))
	for v, sys := range variations {
		w := 1.
		for i := range pt {
			fl := FlavorOf(hadronFlavour[i])
			if pt[i] < BTagMinPt || strings.Contains(sys, "cferr") != (fl == FlavorC) {
				continue
			}
			sf, err := b.EvalAutoBounds(sys, fl, eta[i], pt[i], discr[i])
			if err != nil {
				return nil, err
			}
			w *= sf
		}
		out[v] = w
	}
	return out, nil
}

// ReshapeWeightsJES is ReshapeWeights for jet energy scale variations: jet j
// has its pt scaled by jes[j][v] for variation v, and all flavours weigh.
func (b *BTag) ReshapeWeightsJES(variations []string, pt, eta, discr []float64, hadronFlavour []int64, jes [][]float64) ([]float64, error) {
	out := make([]float64, len(variations))
	for v, sys := range variations {
		w := 1.
		for j := range pt {
			scaled := pt[j] * jes[j][v]
			if scaled < BTagMinPt {
				continue
			}
			sf, err := b.EvalAutoBounds(sys, FlavorOf(hadronFlavour[j]), eta[j], scaled, discr[j])
			if err != nil {
				return nil, err
			}
			w *= sf
		}
		out[v] = w
	}
	return out, nil
}
