package calib

import "fmt"

// Pileup reweights simulation to the pileup profile of data, with the data
// profile shifted up and down for the systematic variations.
type Pileup struct {
	mc, nom, up, down *Table1D
}

// NewPileup returns the reweighting of the mc profile to the data profiles.
// Profiles are normalized to unit area and must share the mc binning.
func NewPileup(mc, data, dataUp, dataDown *Table1D) (*Pileup, error) {
	p := &Pileup{}
	for _, s := range []struct {
		dst **Table1D
		src *Table1D
	}{{&p.mc, mc}, {&p.nom, data}, {&p.up, dataUp}, {&p.down, dataDown}} {
		if s.src == nil {
			return nil, fmt.Errorf("calib: pileup profile missing")
		}
		if err := s.src.Validate(); err != nil {
			return nil, err
		}
		if len(s.src.Values) != len(mc.Values) {
			return nil, fmt.Errorf("calib: pileup profiles have %d and %d bins", len(s.src.Values), len(mc.Values))
		}
		*s.dst = normalized(s.src)
	}
	return p, nil
}

func normalized(t *Table1D) *Table1D {
	var sum float64
	for _, v := range t.Values {
		sum += v
	}
	out := &Table1D{Edges: t.Edges, Values: make([]float64, len(t.Values))}
	for i, v := range t.Values {
		if sum > 0 {
			out.Values[i] = v / sum
		}
	}
	return out
}

// Weights returns the nominal, up and down weights for the true number of
// interactions. Bins without simulated events weigh 1.
func (p *Pileup) Weights(nTrueInt float64) [3]float64 {
	i := p.mc.Bin(nTrueInt)
	mc := p.mc.Values[i]
	if mc <= 0 {
		return [3]float64{1, 1, 1}
	}
	return [3]float64{p.nom.Values[i] / mc, p.up.Values[i] / mc, p.down.Values[i] / mc}
}
