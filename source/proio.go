package source

import (
	"context"
	"fmt"
	"math"

	"github.com/proio-org/go-proio"
	"github.com/proio-org/go-proio-pb/model/eic"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// Columns of an EIC proio event. Tracks are the "Reconstructed" entries
// with at least one segment; their true momentum is the one of the
// particle leaving most of the track's simulated hits, NaN when no particle
// is found. Gen columns hold the "GenStable" particles and Tracker_edep the
// mean energy deposits (GeV) tagged "Tracker".
var EICColumns = []frame.Column{
	{Name: "Track_px", Kind: frame.Floats},
	{Name: "Track_py", Kind: frame.Floats},
	{Name: "Track_pz", Kind: frame.Floats},
	{Name: "Track_chargesign", Kind: frame.Ints},
	{Name: "Track_matched", Kind: frame.Bools},
	{Name: "Track_truepx", Kind: frame.Floats},
	{Name: "Track_truepy", Kind: frame.Floats},
	{Name: "Track_truepz", Kind: frame.Floats},
	{Name: "Track_truecharge", Kind: frame.Floats},
	{Name: "Gen_px", Kind: frame.Floats},
	{Name: "Gen_py", Kind: frame.Floats},
	{Name: "Gen_pz", Kind: frame.Floats},
	{Name: "Gen_mass", Kind: frame.Floats},
	{Name: "Gen_charge", Kind: frame.Floats},
	{Name: "Gen_pdg", Kind: frame.Ints},
	{Name: "Tracker_edep", Kind: frame.Floats},
}

// Proio reads EIC events from one or more proio files, in order. Its
// length is unknown until read.
type Proio struct {
	paths []string
}

// OpenProio returns a source over the given files.
func OpenProio(paths ...string) *Proio {
	return &Proio{paths: paths}
}

func (p *Proio) Columns() []frame.Column { return EICColumns }

func (p *Proio) Len() int64 { return -1 }

func (p *Proio) Scan(ctx context.Context, begin, end int64, fn func(int64, []any) error) error {
	var entry int64
	for _, path := range p.paths {
		reader, err := proio.Open(path)
		if err != nil {
			return fmt.Errorf("source: opening %s: %w", path, err)
		}

		events := reader.ScanEvents()
		for event := range events {
			if end >= 0 && entry >= end {
				break
			}
			if entry >= begin {
				if err = ctx.Err(); err == nil {
					err = fn(entry, eicRow(event))
				}
				if err != nil {
					break
				}
			}
			entry++
		}
		// let the scanning goroutine finish
		for range events {
		}
		reader.Close()

		if err != nil {
			return err
		}
		if end >= 0 && entry >= end {
			return nil
		}
	}
	return nil
}

func eicRow(event *proio.Event) []any {
	var tr struct {
		px, py, pz, tpx, tpy, tpz, tq []float64
		sign                          []int64
		matched                       []bool
	}
	for _, id := range event.TaggedEntries("Reconstructed") {
		track, ok := event.GetEntry(id).(*eic.Track)
		if !ok || len(track.Segment) == 0 {
			continue
		}
		poq := track.Segment[0].GetPoq()
		tr.px = append(tr.px, poq.GetX())
		tr.py = append(tr.py, poq.GetY())
		tr.pz = append(tr.pz, poq.GetZ())
		tr.sign = append(tr.sign, int64(track.Segment[0].GetChargesign()))

		part := truthParticle(event, track)
		if part == nil {
			nan := math.NaN()
			tr.tpx, tr.tpy, tr.tpz, tr.tq = append(tr.tpx, nan), append(tr.tpy, nan), append(tr.tpz, nan), append(tr.tq, nan)
			tr.matched = append(tr.matched, false)
			continue
		}
		tr.tpx = append(tr.tpx, float64(part.GetP().GetX()))
		tr.tpy = append(tr.tpy, float64(part.GetP().GetY()))
		tr.tpz = append(tr.tpz, float64(part.GetP().GetZ()))
		tr.tq = append(tr.tq, float64(part.GetCharge()))
		tr.matched = append(tr.matched, true)
	}

	var gen struct {
		px, py, pz, m, q []float64
		pdg              []int64
	}
	for _, id := range event.TaggedEntries("GenStable") {
		part, ok := event.GetEntry(id).(*eic.Particle)
		if !ok {
			continue
		}
		gen.px = append(gen.px, float64(part.GetP().GetX()))
		gen.py = append(gen.py, float64(part.GetP().GetY()))
		gen.pz = append(gen.pz, float64(part.GetP().GetZ()))
		gen.m = append(gen.m, float64(part.GetMass()))
		gen.q = append(gen.q, float64(part.GetCharge()))
		gen.pdg = append(gen.pdg, int64(part.GetPdg()))
	}

	var edep []float64
	for _, id := range event.TaggedEntries("Tracker") {
		if d, ok := event.GetEntry(id).(*eic.EnergyDep); ok {
			edep = append(edep, float64(d.GetMean()))
		}
	}

	return []any{
		tr.px, tr.py, tr.pz, tr.sign, tr.matched, tr.tpx, tr.tpy, tr.tpz, tr.tq,
		gen.px, gen.py, gen.pz, gen.m, gen.q, gen.pdg,
		edep,
	}
}

// truthParticle returns the particle that left most of the simulated hits
// behind the track's observations, nil if none. Ties go to the lowest id.
func truthParticle(event *proio.Event, track *eic.Track) *eic.Particle {
	counts := make(map[uint64]uint64)
	for _, obsID := range track.Observation {
		eDep, ok := event.GetEntry(obsID).(*eic.EnergyDep)
		if !ok {
			continue
		}
		for _, sourceID := range eDep.Source {
			if simHit, ok := event.GetEntry(sourceID).(*eic.SimHit); ok {
				counts[simHit.GetParticle()]++
			}
		}
	}

	var partID, hitCount uint64
	for id, n := range counts {
		if n > hitCount || (n == hitCount && id < partID) {
			partID, hitCount = id, n
		}
	}
	if hitCount == 0 {
		return nil
	}
	part, _ := event.GetEntry(partID).(*eic.Particle)
	return part
}
