// Package calib provides the calibration lookups of the analysis: binned
// scale-factor tables, pileup reweighting, tau and muon scale factors and
// b-tagging reshaping weights.
package calib

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hbook/rootcnv"
)

// ErrCalibrationMissing reports an absent calibration input.
var ErrCalibrationMissing = errors.New("calib: calibration missing")

// MissingError names the calibration input that could not be found.
type MissingError struct {
	Path string
	Name string
}

func (e *MissingError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("calib: %s not found in %s", e.Name, e.Path)
	}
	return fmt.Sprintf("calib: %s not found", e.Path)
}

func (e *MissingError) Is(target error) bool { return target == ErrCalibrationMissing }

// Table1D is a binned lookup. Values outside the edges take the value of the
// nearest bin.
type Table1D struct {
	Edges  []float64 `yaml:"edges"`
	Values []float64 `yaml:"values"`
	Errors []float64 `yaml:"errors,omitempty"`
}

// Validate checks the table shape.
func (t *Table1D) Validate() error {
	n := len(t.Edges) - 1
	switch {
	case n < 1:
		return fmt.Errorf("calib: table needs at least 2 edges, has %d", len(t.Edges))
	case len(t.Values) != n:
		return fmt.Errorf("calib: table has %d bins and %d values", n, len(t.Values))
	case t.Errors != nil && len(t.Errors) != n:
		return fmt.Errorf("calib: table has %d bins and %d errors", n, len(t.Errors))
	case !sort.Float64sAreSorted(t.Edges):
		return fmt.Errorf("calib: table edges are not sorted")
	}
	return nil
}

// Bin returns the index of the bin holding x, clamped to the table.
func (t *Table1D) Bin(x float64) int {
	return findBin(t.Edges, x)
}

// Lookup returns the value and error of the bin holding x.
func (t *Table1D) Lookup(x float64) (float64, float64) {
	i := t.Bin(x)
	var err float64
	if t.Errors != nil {
		err = t.Errors[i]
	}
	return t.Values[i], err
}

// Value returns the value of the bin holding x.
func (t *Table1D) Value(x float64) float64 {
	v, _ := t.Lookup(x)
	return v
}

// Table2D is a binned lookup in two variables, Values[ix][iy].
type Table2D struct {
	XEdges []float64   `yaml:"xedges"`
	YEdges []float64   `yaml:"yedges"`
	Values [][]float64 `yaml:"values"`
	Errors [][]float64 `yaml:"errors,omitempty"`
}

// Validate checks the table shape.
func (t *Table2D) Validate() error {
	nx, ny := len(t.XEdges)-1, len(t.YEdges)-1
	if nx < 1 || ny < 1 {
		return fmt.Errorf("calib: 2-D table needs at least 2 edges per axis")
	}
	if len(t.Values) != nx || (t.Errors != nil && len(t.Errors) != nx) {
		return fmt.Errorf("calib: 2-D table has %d x bins and %d rows", nx, len(t.Values))
	}
	for i := range t.Values {
		if len(t.Values[i]) != ny || (t.Errors != nil && len(t.Errors[i]) != ny) {
			return fmt.Errorf("calib: 2-D table row %d does not have %d y bins", i, ny)
		}
	}
	return nil
}

// Lookup returns the value and error of the bin holding (x, y).
func (t *Table2D) Lookup(x, y float64) (float64, float64) {
	ix, iy := findBin(t.XEdges, x), findBin(t.YEdges, y)
	var err float64
	if t.Errors != nil {
		err = t.Errors[ix][iy]
	}
	return t.Values[ix][iy], err
}

func findBin(edges []float64, x float64) int {
	n := len(edges) - 1
	if math.IsNaN(x) || x < edges[0] {
		return 0
	}
	i := sort.SearchFloat64s(edges, x)
	if i < len(edges) && edges[i] == x {
		i++
	}
	i--
	if i >= n {
		return n - 1
	}
	return i
}

// FromH1D converts a histogram into a table of bin contents, with the
// errors taken as the square root of the summed squared weights.
func FromH1D(h *hbook.H1D) *Table1D {
	bins := h.Binning.Bins
	t := &Table1D{
		Values: make([]float64, len(bins)),
		Errors: make([]float64, len(bins)),
	}
	for i, b := range bins {
		if i == 0 {
			t.Edges = append(t.Edges, b.XMin())
		}
		t.Edges = append(t.Edges, b.XMax())
		t.Values[i] = b.SumW()
		t.Errors[i] = math.Sqrt(b.SumW2())
	}
	return t
}

// FromH2D converts a 2-D histogram into a table.
func FromH2D(h *hbook.H2D) *Table2D {
	nx, ny := h.Binning.Nx, h.Binning.Ny
	bins := h.Binning.Bins
	t := &Table2D{
		Values: make([][]float64, nx),
		Errors: make([][]float64, nx),
	}
	for ix := 0; ix < nx; ix++ {
		if ix == 0 {
			t.XEdges = append(t.XEdges, bins[ix].XMin())
		}
		t.XEdges = append(t.XEdges, bins[ix].XMax())
		t.Values[ix] = make([]float64, ny)
		t.Errors[ix] = make([]float64, ny)
		for iy := 0; iy < ny; iy++ {
			b := bins[iy*nx+ix]
			t.Values[ix][iy] = b.SumW()
			t.Errors[ix][iy] = math.Sqrt(b.SumW2())
		}
	}
	for iy := 0; iy < ny; iy++ {
		if iy == 0 {
			t.YEdges = append(t.YEdges, bins[0].YMin())
		}
		t.YEdges = append(t.YEdges, bins[iy*nx].YMax())
	}
	return t
}

func getROOT(path, name string) (any, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &MissingError{Path: path}
	}
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calib: opening %s: %w", path, err)
	}
	defer f.Close()
	obj, err := riofs.Dir(f).Get(name)
	if err != nil {
		return nil, &MissingError{Path: path, Name: name}
	}
	return obj, nil
}

// ReadH1 loads the 1-D histogram name from a ROOT file as a table.
func ReadH1(path, name string) (*Table1D, error) {
	obj, err := getROOT(path, name)
	if err != nil {
		return nil, err
	}
	h, ok := obj.(rhist.H1)
	if !ok {
		return nil, fmt.Errorf("calib: %s in %s is a %T, not a 1-D histogram", name, path, obj)
	}
	return FromH1D(rootcnv.H1D(h)), nil
}

// ReadH2 loads the 2-D histogram name from a ROOT file as a table.
func ReadH2(path, name string) (*Table2D, error) {
	obj, err := getROOT(path, name)
	if err != nil {
		return nil, err
	}
	h, ok := obj.(rhist.H2)
	if !ok {
		return nil, fmt.Errorf("calib: %s in %s is a %T, not a 2-D histogram", name, path, obj)
	}
	return FromH2D(rootcnv.H2D(h)), nil
}
