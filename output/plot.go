package output

import (
	"os"
	"path/filepath"
	"strings"

	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe"
	"github.com/decibelcooper/nanoaodframe/frame"
)

// PlotSink wraps a sink and also renders every histogram written to a
// destination as an image in Dir, named "<dest stem>_<hist name>.<Format>".
type PlotSink struct {
	Sink   Sink
	Dir    string
	Format string // png when empty
}

func (s PlotSink) Create(dest string, cols []frame.Column) (Writer, error) {
	w, err := s.Sink.Create(dest, cols)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		w.Close()
		return nil, err
	}
	format := s.Format
	if format == "" {
		format = "png"
	}
	stem := strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
	return &plotWriter{Writer: w, prefix: filepath.Join(s.Dir, stem+"_"), ext: "." + format}, nil
}

type plotWriter struct {
	Writer
	prefix, ext string
}

func (w *plotWriter) WriteHist(h *hbook.H1D) error {
	if err := w.Writer.WriteHist(h); err != nil {
		return err
	}
	return nanoaodframe.SaveH1D(w.prefix+h.Name()+w.ext, nanoaodframe.PlotOptions{Stats: true}, h)
}
