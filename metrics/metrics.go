// Package metrics exports the cutflow of a selection tree as Prometheus
// gauges, one series per tree position, and pushes them to a Pushgateway
// when processing finishes.
package metrics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/decibelcooper/nanoaodframe/seltree"
)

const namespace = "nanoaod"

// Cutflow holds the gauges of one processing run.
type Cutflow struct {
	run     string
	reg     *prometheus.Registry
	entries *prometheus.GaugeVec
	sumw    *prometheus.GaugeVec
	loops   prometheus.Gauge
}

// NewCutflow returns gauges labelled with the dataset name. Runs are told
// apart on the Pushgateway by a random run identifier.
func NewCutflow(dataset string) *Cutflow {
	c := &Cutflow{
		run: uuid.NewString(),
		reg: prometheus.NewRegistry(),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "cutflow_entries",
			Help:        "Number of events reaching a selection tree node.",
			ConstLabels: prometheus.Labels{"dataset": dataset},
		}, []string{"position"}),
		sumw: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "cutflow_weight",
			Help:        "Summed event weight reaching a selection tree node.",
			ConstLabels: prometheus.Labels{"dataset": dataset},
		}, []string{"position"}),
		loops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "event_loops",
			Help:        "Number of passes over the input events.",
			ConstLabels: prometheus.Labels{"dataset": dataset},
		}),
	}
	c.reg.MustRegister(c.entries, c.sumw, c.loops)
	return c
}

// Run returns the run identifier.
func (c *Cutflow) Run() string { return c.run }

// Gatherer returns the registry holding the gauges.
func (c *Cutflow) Gatherer() prometheus.Gatherer { return c.reg }

// Set records the yields of every node and the number of event loops.
func (c *Cutflow) Set(stages []seltree.Stage, loops int) {
	for _, s := range stages {
		c.entries.WithLabelValues(label(s.Position)).Set(float64(s.Entries))
		c.sumw.WithLabelValues(label(s.Position)).Set(s.SumW)
	}
	c.loops.Set(float64(loops))
}

// the root position is empty, which Prometheus treats as an absent label
func label(pos string) string {
	if pos == seltree.Root {
		return "root"
	}
	return pos
}

// Push replaces the metrics of this run on the Pushgateway at url.
func (c *Cutflow) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(c.reg).
		Grouping("run", c.run).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
