package calib

import (
	"fmt"
	"math"
	"strings"
)

var jesSources = []string{"Absolute", "BBEC1", "EC2", "FlavorQCD", "RelativeBal"}

var jesYearSources = []string{"Absolute", "BBEC1", "EC2", "RelativeSample"}

// JESVariations returns the regrouped jet energy scale variations of a
// data-taking year, "up_<source>" then "down_<source>" per source. The
// index of a variation is the one of its factor in the Jet_pt_unc column.
func JESVariations(year string) []string {
	y := year
	if strings.HasPrefix(y, "2016") {
		y = "2016"
	}
	var out []string
	add := func(src string) {
		out = append(out, "up_jes"+src, "down_jes"+src)
	}
	for _, s := range jesSources {
		add(s)
	}
	for _, s := range jesYearSources {
		add(s + "_" + y)
	}
	return out
}

// JESIndex returns the index of syst in the JES variations, -1 when syst is
// not a JES variation. A JES-looking syst missing from vars is an error.
func JESIndex(syst string, vars []string) (int, error) {
	if !strings.Contains(syst, "jes") {
		return -1, nil
	}
	for i, v := range vars {
		if v == syst {
			return i, nil
		}
	}
	return -1, fmt.Errorf("calib: unknown jet energy scale variation %q", syst)
}

// JERIndex returns the index of the jet energy resolution factor to apply:
// 1 for "jer...up", 2 for "jer...down", 0 (nominal) otherwise.
func JERIndex(syst string) int {
	if !strings.Contains(syst, "jer") {
		return 0
	}
	switch {
	case strings.Contains(syst, "up"):
		return 1
	case strings.Contains(syst, "down"):
		return 2
	}
	return 0
}

// TESIndex returns the index of the tau energy scale factor for "tesup" and
// "tesdown", -1 for any other syst.
func TESIndex(syst string) int {
	switch syst {
	case "tesup":
		return 0
	case "tesdown":
		return 1
	}
	return -1
}

// Factor sanitizes a correction factor: NaN, infinite and negative factors
// are replaced by 1.
func Factor(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 1
	}
	return v
}

// Select returns factors[i][idx] for every object, sanitized with Factor.
// Objects without that many factors get 1.
func Select(factors [][]float64, idx int) []float64 {
	out := make([]float64, len(factors))
	for i, f := range factors {
		out[i] = 1
		if idx >= 0 && idx < len(f) {
			out[i] = Factor(f[idx])
		}
	}
	return out
}
