// Package profiling records nested wall-clock spans for a single command run
// and wires CPU and heap profiles into cobra commands.
package profiling

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Stopper ends a span.
type Stopper interface {
	Stop()
}

// Span is one timed step. Spans started while another is open become its
// children.
type Span struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	Children []*Span

	parent   *Span
	profiler *Profiler
}

// Stop records the duration and closes the span.
func (s *Span) Stop() {
	s.profiler.mu.Lock()
	defer s.profiler.mu.Unlock()
	if s.Duration != 0 {
		return
	}
	s.Duration = time.Since(s.Start)
	if s.profiler.open == s {
		s.profiler.open = s.parent
	}
}

// Profiler collects spans. The zero value is disabled.
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	root    *Span
	open    *Span
}

var defaultProfiler = &Profiler{}

// Default returns the process-wide profiler used by Start.
func Default() *Profiler {
	return defaultProfiler
}

// Enable starts recording.
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return
	}
	p.enabled = true
	p.root = &Span{Name: "total", Start: time.Now(), profiler: p}
	p.open = p.root
}

// Enabled reports whether spans are recorded.
func (p *Profiler) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Start opens a span below the innermost open one.
func (p *Profiler) Start(name string) Stopper {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return noopStopper{}
	}
	s := &Span{Name: name, Start: time.Now(), parent: p.open, profiler: p}
	p.open.Children = append(p.open.Children, s)
	p.open = s
	return s
}

// Summarize writes the span tree with each span's share of the total.
func (p *Profiler) Summarize(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	total := time.Since(p.root.Start)

	fmt.Fprintln(w, "--- timing ---")
	for _, child := range p.root.Children {
		writeSpan(w, child, 0, total)
	}
	fmt.Fprintf(w, "total %v\n", total.Round(100*time.Microsecond))
}

func writeSpan(w io.Writer, s *Span, depth int, total time.Duration) {
	d := s.Duration
	if d == 0 {
		d = time.Since(s.Start)
	}
	share := 0.0
	if total > 0 {
		share = float64(d) / float64(total) * 100
	}
	fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n", strings.Repeat("  ", depth), s.Name, d.Round(100*time.Microsecond), share)
	for _, child := range s.Children {
		writeSpan(w, child, depth+1, total)
	}
}

// Enable starts recording on the default profiler.
func Enable() {
	defaultProfiler.Enable()
}

// Start opens a span on the default profiler.
func Start(name string) Stopper {
	return defaultProfiler.Start(name)
}

// Summarize writes the default profiler's spans.
func Summarize(w io.Writer) {
	defaultProfiler.Summarize(w)
}

type noopStopper struct{}

func (noopStopper) Stop() {}
