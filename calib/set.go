package calib

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Set gathers the calibrations of one data-taking year. Absent calibrations
// are nil.
type Set struct {
	Pileup *Pileup

	MuonID      *EfficiencySF
	MuonIso     *EfficiencySF
	MuonTrigger *EfficiencySF

	TauVsJet      *TauVsJet
	TauVsElectron *TauVsLepton
	TauVsMuon     *TauVsLepton
	TauES         *TauES
	TauFES        *TauFES

	BTag    *BTag
	BTagJES *BTag
}

// Table1DSource is a 1-D table given inline or as a histogram in a ROOT
// file.
type Table1DSource struct {
	Table1D `yaml:",inline"`
	ROOT    string `yaml:"root"`
	Name    string `yaml:"name"`
}

// Table2DSource is a 2-D table given inline or as a histogram in a ROOT
// file.
type Table2DSource struct {
	Table2D `yaml:",inline"`
	ROOT    string `yaml:"root"`
	Name    string `yaml:"name"`
}

// SetConfig is the YAML description of a Set. File paths are relative to
// the directory of the YAML file.
type SetConfig struct {
	Pileup *struct {
		MC   *Table1DSource `yaml:"mc"`
		Data *Table1DSource `yaml:"data"`
		Up   *Table1DSource `yaml:"up"`
		Down *Table1DSource `yaml:"down"`
	} `yaml:"pileup"`
	Muon struct {
		ID      *Table2DSource `yaml:"id"`
		Iso     *Table2DSource `yaml:"iso"`
		Trigger *Table2DSource `yaml:"trigger"`
	} `yaml:"muon"`
	Tau struct {
		VsJet *struct {
			Nom  string `yaml:"nom"`
			Up   string `yaml:"up"`
			Down string `yaml:"down"`
		} `yaml:"vsjet"`
		VsElectron *Table1DSource `yaml:"vse"`
		VsMuon     *Table1DSource `yaml:"vsmu"`
		ES         *struct {
			Low  *Table1DSource `yaml:"low"`
			High *Table1DSource `yaml:"high"`
		} `yaml:"es"`
		FES *struct {
			Barrel map[int64][3]float64 `yaml:"barrel"`
			Endcap map[int64][3]float64 `yaml:"endcap"`
		} `yaml:"fes"`
	} `yaml:"tau"`
	BTag *struct {
		CSV         string `yaml:"csv"`
		JESCSV      string `yaml:"jescsv"`
		Measurement string `yaml:"measurement"`
	} `yaml:"btag"`
}

func (s *Table1DSource) table(dir string) (*Table1D, error) {
	if s.ROOT != "" {
		return ReadH1(filepath.Join(dir, s.ROOT), s.Name)
	}
	t := s.Table1D
	return &t, t.Validate()
}

func (s *Table2DSource) table(dir string) (*Table2D, error) {
	if s.ROOT != "" {
		return ReadH2(filepath.Join(dir, s.ROOT), s.Name)
	}
	t := s.Table2D
	return &t, t.Validate()
}

// Load reads a calibration set from a YAML file. Calibrations whose inputs
// are missing are logged and left nil; any other failure is an error.
func Load(path string, log *slog.Logger) (*Set, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingError{Path: path}
		}
		return nil, err
	}
	var cfg SetConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("calib: %s: %w", path, err)
	}
	return cfg.Build(filepath.Dir(path), log)
}

// Build loads the calibrations described by cfg, resolving files in dir.
func (cfg *SetConfig) Build(dir string, log *slog.Logger) (*Set, error) {
	set := &Set{}
	// skip logs a missing input and reports whether err is fatal
	skip := func(what string, err error) error {
		if errors.Is(err, ErrCalibrationMissing) {
			log.Warn("calibration missing, weight skipped", "calibration", what, "err", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("calib: %s: %w", what, err)
		}
		return nil
	}

	if p := cfg.Pileup; p != nil {
		var tables [4]*Table1D
		var err error
		for i, src := range []*Table1DSource{p.MC, p.Data, p.Up, p.Down} {
			if src == nil {
				err = fmt.Errorf("incomplete pileup profiles")
				break
			}
			if tables[i], err = src.table(dir); err != nil {
				break
			}
		}
		if err == nil {
			set.Pileup, err = NewPileup(tables[0], tables[1], tables[2], tables[3])
		}
		if err := skip("pileup", err); err != nil {
			return nil, err
		}
	}

	for _, m := range []struct {
		name string
		src  *Table2DSource
		dst  **EfficiencySF
	}{
		{"muon id", cfg.Muon.ID, &set.MuonID},
		{"muon iso", cfg.Muon.Iso, &set.MuonIso},
		{"muon trigger", cfg.Muon.Trigger, &set.MuonTrigger},
	} {
		if m.src == nil {
			continue
		}
		t, err := m.src.table(dir)
		if err == nil {
			*m.dst, err = NewEfficiencySF(t)
		}
		if err := skip(m.name, err); err != nil {
			return nil, err
		}
	}

	if v := cfg.Tau.VsJet; v != nil {
		var s TauVsJet
		for _, f := range []struct {
			src string
			dst **Formula
		}{{v.Nom, &s.Nom}, {v.Up, &s.Up}, {v.Down, &s.Down}} {
			var err error
			if *f.dst, err = CompileFormula(f.src); err != nil {
				return nil, err
			}
		}
		set.TauVsJet = &s
	}
	for _, l := range []struct {
		name string
		src  *Table1DSource
		mk   func(*Table1D) (*TauVsLepton, error)
		dst  **TauVsLepton
	}{
		{"tau vs electron", cfg.Tau.VsElectron, NewTauVsElectron, &set.TauVsElectron},
		{"tau vs muon", cfg.Tau.VsMuon, NewTauVsMuon, &set.TauVsMuon},
	} {
		if l.src == nil {
			continue
		}
		t, err := l.src.table(dir)
		if err == nil {
			*l.dst, err = l.mk(t)
		}
		if err := skip(l.name, err); err != nil {
			return nil, err
		}
	}
	if es := cfg.Tau.ES; es != nil && es.Low != nil && es.High != nil {
		low, err := es.Low.table(dir)
		var high *Table1D
		if err == nil {
			high, err = es.High.table(dir)
		}
		if err == nil {
			set.TauES, err = NewTauES(low, high)
		}
		if err := skip("tau energy scale", err); err != nil {
			return nil, err
		}
	}
	if fes := cfg.Tau.FES; fes != nil {
		set.TauFES = &TauFES{Barrel: fes.Barrel, Endcap: fes.Endcap}
	}

	if b := cfg.BTag; b != nil {
		meas := b.Measurement
		if meas == "" {
			meas = "iterativefit"
		}
		var err error
		if b.CSV != "" {
			set.BTag, err = LoadBTagCSV(filepath.Join(dir, b.CSV), OpReshaping, meas)
			if err := skip("b-tag", err); err != nil {
				return nil, err
			}
		}
		if b.JESCSV != "" {
			set.BTagJES, err = LoadBTagCSV(filepath.Join(dir, b.JESCSV), OpReshaping, meas)
			if err := skip("b-tag jes", err); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}
