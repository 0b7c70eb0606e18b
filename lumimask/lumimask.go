// Package lumimask filters collision data with a certified luminosity
// ("golden") JSON file, a map from run number to inclusive ranges of
// luminosity blocks.
package lumimask

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

type lumiRange struct {
	lo, hi int64
}

// Mask holds the certified luminosity blocks of each run.
type Mask struct {
	runs map[int64][]lumiRange
}

// Read parses a golden JSON document, {"run": [[lo, hi], ...], ...}.
func Read(r io.Reader) (*Mask, error) {
	var raw map[string][][2]int64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("lumimask: %w", err)
	}
	m := &Mask{runs: make(map[int64][]lumiRange, len(raw))}
	for key, ranges := range raw {
		run, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lumimask: run %q: %w", key, err)
		}
		rs := make([]lumiRange, 0, len(ranges))
		for _, r := range ranges {
			if r[0] > r[1] {
				return nil, fmt.Errorf("lumimask: run %d: inverted range [%d, %d]", run, r[0], r[1])
			}
			rs = append(rs, lumiRange{r[0], r[1]})
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i].lo < rs[j].lo })
		m.runs[run] = rs
	}
	return m, nil
}

// Load reads the golden JSON file at path.
func Load(path string) (*Mask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Contains reports whether the luminosity block of run is certified.
func (m *Mask) Contains(run, lumi int64) bool {
	for _, r := range m.runs[run] {
		if lumi < r.lo {
			return false
		}
		if lumi <= r.hi {
			return true
		}
	}
	return false
}

// Runs returns the number of certified runs.
func (m *Mask) Runs() int { return len(m.runs) }
