package nanoaodframe

import (
	"math"
	"strconv"

	"gonum.org/v1/plot"
)

// PreciseTicks places major ticks on round values with as many digits as the
// axis range needs, plus minor ticks between them.
type PreciseTicks struct {
	NSuggestedTicks int
}

func (t PreciseTicks) Ticks(min, max float64) []plot.Tick {
	if t.NSuggestedTicks == 0 {
		t.NSuggestedTicks = 4
	}
	if !(max > min) {
		// Empty histograms give a degenerate range.
		return plot.DefaultTicks{}.Ticks(min, min+1)
	}

	tens := math.Pow10(int(math.Floor(math.Log10(max - min))))
	n := (max - min) / tens
	for n < float64(t.NSuggestedTicks)-1 {
		tens /= 10
		n = (max - min) / tens
	}

	majorMult := int(n / float64(t.NSuggestedTicks-1))
	switch majorMult {
	case 7:
		majorMult = 6
	case 9:
		majorMult = 8
	}
	majorDelta := float64(majorMult) * tens

	ticks := majorTicks(min, max, majorDelta)

	minorDelta := majorDelta / 2
	switch majorMult {
	case 3, 6:
		minorDelta = majorDelta / 3
	case 5:
		minorDelta = majorDelta / 5
	}
	return append(ticks, minorTicks(min, max, minorDelta, ticks)...)
}

// majorTicks returns the labelled ticks in [min, max] on multiples of delta.
func majorTicks(min, max, delta float64) []plot.Tick {
	var values []float64
	val := math.Floor(min/delta) * delta
	for ; val <= max; val += delta {
		if val >= min {
			values = append(values, val)
		}
	}

	prec := int(math.Ceil(math.Log10(val)) - math.Floor(math.Log10(delta)))
	ticks := make([]plot.Tick, 0, len(values))
	for _, v := range values {
		v = round(v, prec)
		ticks = append(ticks, plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'g', -1, 64)})
	}
	return ticks
}

func minorTicks(min, max, delta float64, major []plot.Tick) []plot.Tick {
	taken := make(map[float64]bool, len(major))
	for _, t := range major {
		taken[t.Value] = true
	}
	var ticks []plot.Tick
	for val := math.Floor(min/delta) * delta; val <= max; val += delta {
		if val >= min && !taken[val] {
			ticks = append(ticks, plot.Tick{Value: val})
		}
	}
	return ticks
}

func round(x float64, prec int) float64 {
	if x == 0 {
		// no negative zero
		return 0
	}
	if prec >= 0 && x == math.Trunc(x) {
		return x
	}
	pow := math.Pow10(prec)
	intermed := x * pow
	if math.IsInf(intermed, 0) {
		return x
	}
	if x < 0 {
		x = math.Ceil(intermed - 0.5)
	} else {
		x = math.Floor(intermed + 0.5)
	}
	if x == 0 {
		return 0
	}
	return x / pow
}

// LogTicks labels the powers of ten of a logarithmic axis. Ranges reaching
// zero or below, as happen with empty bins, are clamped to Floor.
type LogTicks struct {
	Floor float64
}

func (t LogTicks) Ticks(min, max float64) []plot.Tick {
	floor := t.Floor
	if floor <= 0 {
		floor = 0.1
	}
	if min <= 0 {
		min = floor
	}
	if max <= min {
		max = min * 10
	}
	return plot.LogTicks{Prec: -1}.Ticks(min, max)
}

// LogScale is a logarithmic axis scale tolerating empty bins.
type LogScale struct {
	Floor float64
}

func (s LogScale) Normalize(min, max, x float64) float64 {
	floor := s.Floor
	if floor <= 0 {
		floor = 0.1
	}
	min, max, x = math.Max(min, floor), math.Max(max, floor), math.Max(x, floor)
	if max <= min {
		return 0
	}
	return (math.Log(x) - math.Log(min)) / (math.Log(max) - math.Log(min))
}
