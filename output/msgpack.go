package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"go-hep.org/x/hep/hbook"

	"github.com/decibelcooper/nanoaodframe/frame"
)

// Record kinds of a msgpack stream.
const (
	KindHeader = "header"
	KindRow    = "row"
	KindHist   = "hist"
)

// Record is one element of a msgpack stream: a header, then rows, then
// histograms.
type Record struct {
	Kind    string       `msgpack:"kind"`
	Columns []ColumnMeta `msgpack:"columns,omitempty"`
	Values  []any        `msgpack:"values,omitempty"`
	Hist    *HistRecord  `msgpack:"hist,omitempty"`
}

// ColumnMeta describes one column in a stream header.
type ColumnMeta struct {
	Name string `msgpack:"name"`
	Kind string `msgpack:"kind"`
}

// HistRecord is a serialized 1-D histogram.
type HistRecord struct {
	Name      string    `msgpack:"name"`
	Title     string    `msgpack:"title"`
	Edges     []float64 `msgpack:"edges"`
	SumW      []float64 `msgpack:"sumw"`
	SumW2     []float64 `msgpack:"sumw2"`
	Entries   int64     `msgpack:"entries"`
	Underflow float64   `msgpack:"underflow"`
	Overflow  float64   `msgpack:"overflow"`
}

func histRecord(h *hbook.H1D) *HistRecord {
	bins := h.Binning.Bins
	r := &HistRecord{
		Name:      h.Name(),
		Edges:     make([]float64, 0, len(bins)+1),
		SumW:      make([]float64, len(bins)),
		SumW2:     make([]float64, len(bins)),
		Entries:   h.Entries(),
		Underflow: h.Binning.Outflows[0].SumW(),
		Overflow:  h.Binning.Outflows[1].SumW(),
	}
	if t, ok := h.Annotation()["title"].(string); ok {
		r.Title = t
	}
	for i, b := range bins {
		if i == 0 {
			r.Edges = append(r.Edges, b.XMin())
		}
		r.Edges = append(r.Edges, b.XMax())
		r.SumW[i] = b.SumW()
		r.SumW2[i] = b.SumW2()
	}
	return r
}

// MsgpackSink writes each destination as a stream of Records.
type MsgpackSink struct {
	// Open creates the destination, os.Create when nil.
	Open func(dest string) (io.WriteCloser, error)
}

func (s MsgpackSink) Create(dest string, cols []frame.Column) (Writer, error) {
	open := s.Open
	if open == nil {
		open = func(dest string) (io.WriteCloser, error) { return os.Create(dest) }
	}
	f, err := open(dest)
	if err != nil {
		return nil, fmt.Errorf("output: creating %s: %w", dest, err)
	}
	bw := bufio.NewWriter(f)
	w := &msgpackWriter{f: f, bw: bw, enc: msgpack.NewEncoder(bw)}

	hdr := Record{Kind: KindHeader, Columns: make([]ColumnMeta, len(cols))}
	for i, c := range cols {
		hdr.Columns[i] = ColumnMeta{Name: c.Name, Kind: c.Kind.String()}
	}
	if err := w.enc.Encode(&hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("output: writing header to %s: %w", dest, err)
	}
	return w, nil
}

type msgpackWriter struct {
	f   io.WriteCloser
	bw  *bufio.Writer
	enc *msgpack.Encoder
}

func (w *msgpackWriter) WriteRow(row []any) error {
	return w.enc.Encode(&Record{Kind: KindRow, Values: row})
}

func (w *msgpackWriter) WriteHist(h *hbook.H1D) error {
	return w.enc.Encode(&Record{Kind: KindHist, Hist: histRecord(h)})
}

func (w *msgpackWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Stream is a decoded msgpack destination.
type Stream struct {
	Columns []ColumnMeta
	Rows    [][]any
	Hists   []*HistRecord
}

// Hist returns the histogram with the given name, nil if absent.
func (s *Stream) Hist(name string) *HistRecord {
	for _, h := range s.Hists {
		if h.Name == name {
			return h
		}
	}
	return nil
}

// ReadStream decodes a stream written by MsgpackSink.
func ReadStream(r io.Reader) (*Stream, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	dec.UseLooseInterfaceDecoding(true)
	s := &Stream{}
	for i := 0; ; i++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				if i == 0 {
					return nil, fmt.Errorf("output: empty stream")
				}
				return s, nil
			}
			return nil, fmt.Errorf("output: record %d: %w", i, err)
		}
		switch rec.Kind {
		case KindHeader:
			s.Columns = rec.Columns
		case KindRow:
			s.Rows = append(s.Rows, rec.Values)
		case KindHist:
			s.Hists = append(s.Hists, rec.Hist)
		default:
			return nil, fmt.Errorf("output: record %d: unknown kind %q", i, rec.Kind)
		}
	}
}
