package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/anomradar/internal/application/scan"
	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

const progressBarWidth = 20

// progressCounts tallies finished probes by outcome.
type progressCounts struct {
	ok, partial, fail, cached int
	probeTime                 time.Duration
	last                      string
}

func (c progressCounts) done() int {
	return c.ok + c.partial + c.fail
}

// progressPrinter redraws one status line while a scan runs. Observe may be
// called from several probe goroutines at once.
type progressPrinter struct {
	out   io.Writer
	total int
	name  string
	start time.Time

	mu     sync.Mutex
	counts progressCounts

	updates  chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(out io.Writer, total int, name string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		out:     out,
		total:   total,
		name:    name,
		start:   time.Now(),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	p.start = time.Now()
	go p.loop()
}

// Observe is a scan.ProgressFunc.
func (p *progressPrinter) Observe(name string, out scan.Outcome) {
	p.mu.Lock()
	switch out.Result.Status {
	case probe.StatusSuccess:
		p.counts.ok++
	case probe.StatusPartial:
		p.counts.partial++
	default:
		p.counts.fail++
	}
	if out.Cached {
		p.counts.cached++
	}
	p.counts.probeTime += out.Elapsed
	p.counts.last = name
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Stop ends the redraw loop and leaves the final line on screen.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		select {
		case <-p.exited:
		case <-time.After(time.Second):
		}
		p.print()
		fmt.Fprintln(p.out)
	})
}

func (p *progressPrinter) loop() {
	defer close(p.exited)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	c := p.counts
	p.mu.Unlock()

	fmt.Fprintf(p.out, "\r%-100s\r%s", "", p.render(c, time.Since(p.start)))
}

func (p *progressPrinter) render(c progressCounts, elapsed time.Duration) string {
	completed := c.done()
	total := p.total
	if completed > total {
		total = completed
	}
	filled := completed * progressBarWidth / total
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressBarWidth-filled)

	avg := 0.0
	if completed > 0 {
		avg = c.probeTime.Seconds() / float64(completed)
	}
	line := fmt.Sprintf("[%s] [%s] %d/%d OK:%d Partial:%d Fail:%d Cached:%d Avg:%.2fs Elapsed:%.1fs",
		p.name, bar, completed, total, c.ok, c.partial, c.fail, c.cached, avg, elapsed.Seconds())
	if c.last != "" {
		line += " last:" + c.last
	}
	return line
}
