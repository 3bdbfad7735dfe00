package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progressView shows the two progress timelines of one job.
type progressView interface {
	Upload(fraction float64)
	Status(line string)
	Done()
}

func newProgressView(w io.Writer, size int64, quiet bool) progressView {
	if quiet {
		return nopProgress{}
	}
	if isTerminal(w) {
		return newBarProgress(w, size)
	}
	return &lineProgress{w: w, lastStep: -1}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type barProgress struct {
	w        io.Writer
	bar      *progressbar.ProgressBar
	size     int64
	finished bool
}

func newBarProgress(w io.Writer, size int64) *barProgress {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return &barProgress{w: w, bar: bar, size: size}
}

func (p *barProgress) Upload(fraction float64) {
	if p.finished {
		return
	}
	_ = p.bar.Set64(int64(math.Round(fraction * float64(p.size))))
	if fraction >= 1 {
		_ = p.bar.Finish()
		p.finished = true
	}
}

func (p *barProgress) Status(line string) {
	if !p.finished {
		_ = p.bar.Finish()
		p.finished = true
	}
	fmt.Fprintln(p.w, line)
}

func (p *barProgress) Done() {
	if !p.finished {
		_ = p.bar.Exit()
		fmt.Fprintln(p.w)
		p.finished = true
	}
}

// lineProgress writes one line per 10% of upload progress.
type lineProgress struct {
	w        io.Writer
	lastStep int
}

func (p *lineProgress) Upload(fraction float64) {
	step := int(math.Floor(fraction * 10))
	if step <= p.lastStep {
		return
	}
	p.lastStep = step
	fmt.Fprintf(p.w, "uploading %3d%%\n", step*10)
}

func (p *lineProgress) Status(line string) {
	fmt.Fprintln(p.w, line)
}

func (p *lineProgress) Done() {}

type nopProgress struct{}

func (nopProgress) Upload(float64) {}
func (nopProgress) Status(string)  {}
func (nopProgress) Done()          {}
