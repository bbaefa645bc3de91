package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Progress reports pipeline steps. On a terminal it prints one arrow line per
// step; otherwise it logs them.
type Progress struct {
	w   io.Writer
	tty bool
}

// NewProgress returns a Progress writing to f.
func NewProgress(f *os.File) *Progress {
	fd := f.Fd()
	return &Progress{w: f, tty: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

// Hooks returns pipeline hooks that report to p and then call done, if set.
func (p *Progress) Hooks(done func(error)) Hooks {
	return Hooks{
		OnStart: p.start,
		OnComplete: func(err error) {
			p.complete(err)
			if done != nil {
				done(err)
			}
		},
	}
}

func (p *Progress) start(t Task) {
	if p.tty {
		fmt.Fprintf(p.w, "  --> %s\n", t.Label)
		return
	}
	slog.Info("generating", "step", t.Label)
}

func (p *Progress) complete(err error) {
	if err != nil {
		return
	}
	if p.tty {
		fmt.Fprintln(p.w, "  done")
		return
	}
	slog.Info("done")
}
