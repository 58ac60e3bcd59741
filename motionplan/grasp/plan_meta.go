package grasp

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/atomic"
)

// InvocationCounters count how often a planner phase ran and the time spent in it.
type InvocationCounters struct {
	calls     atomic.Int64
	timeNanos atomic.Int64
}

// PlanMeta is data about how a plan was produced.
type PlanMeta struct {
	Duration time.Duration
	// Solves counts ik requests issued for the plan.
	Solves int
	// Repairs lists the repair strategies that ran, in order.
	Repairs []string

	timingMu sync.Mutex
	Timing   map[string]*InvocationCounters
}

// NewPlanMeta constructs PlanMeta.
func NewPlanMeta() *PlanMeta {
	return &PlanMeta{
		Timing: make(map[string]*InvocationCounters),
	}
}

// AddTiming increments the invocation count and time spent for a phase.
func (pm *PlanMeta) AddTiming(opName string, dur time.Duration) {
	pm.timingMu.Lock()
	defer pm.timingMu.Unlock()

	c, ok := pm.Timing[opName]
	if !ok {
		c = &InvocationCounters{}
		pm.Timing[opName] = c
	}
	c.calls.Inc()
	c.timeNanos.Add(dur.Nanoseconds())
}

// Counters returns the counters for a phase, nil when it never ran.
func (pm *PlanMeta) Counters(opName string) *InvocationCounters {
	pm.timingMu.Lock()
	defer pm.timingMu.Unlock()
	return pm.Timing[opName]
}

// OutputTiming writes a table of phase timings, slowest first.
func (pm *PlanMeta) OutputTiming(w io.Writer) {
	pm.timingMu.Lock()
	names := make([]string, 0, len(pm.Timing))
	for name := range pm.Timing {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return pm.Timing[names[i]].TotalTimeNanos() > pm.Timing[names[j]].TotalTimeNanos()
	})
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Phase", "Calls", "Total", "Average"})
	for _, name := range names {
		c := pm.Timing[name]
		t.AppendRow(table.Row{name, c.Calls(), c.TotalTime(), c.Average()})
	}
	pm.timingMu.Unlock()
	t.AppendFooter(table.Row{"plan", "", pm.Duration, fmt.Sprintf("%d solves", pm.Solves)})

	//nolint:errcheck
	fmt.Fprintln(w, t.Render())
}

// Calls returns the number of times a phase ran.
func (ic *InvocationCounters) Calls() int64 {
	if ic == nil {
		return 0
	}
	return ic.calls.Load()
}

// TotalTimeNanos returns the accumulated time of a phase in nanoseconds.
func (ic *InvocationCounters) TotalTimeNanos() int64 {
	if ic == nil {
		return 0
	}
	return ic.timeNanos.Load()
}

// TotalTime returns the accumulated time of a phase.
func (ic *InvocationCounters) TotalTime() time.Duration {
	return time.Duration(ic.TotalTimeNanos())
}

// Average returns the mean time per call, zero when the phase never ran.
func (ic *InvocationCounters) Average() time.Duration {
	calls := ic.Calls()
	if calls == 0 {
		return 0
	}
	return time.Duration(ic.TotalTimeNanos() / calls)
}

func (ic *InvocationCounters) String() string {
	return fmt.Sprintf("Calls: %3d Total time: %-13s Average time: %v",
		ic.Calls(), ic.TotalTime(), ic.Average())
}
