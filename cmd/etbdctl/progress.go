package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"

	"etbd/internal/experiment"
)

type progressBar struct {
	pw      progress.Writer
	tracker *progress.Tracker
	total   int
}

func newProgressBar(w io.Writer, name string) *progressBar {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetMessageLength(40)
	pw.SetNumTrackersExpected(1)
	pw.SetStyle(progress.StyleDefault)
	pw.SetTrackerLength(25)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Options.PercentFormat = "%2.0f%%"

	message := "Running"
	if name != "" {
		message = fmt.Sprintf("Running %s", name)
	}
	tracker := &progress.Tracker{Message: message, Units: progress.UnitsDefault}
	pw.AppendTracker(tracker)
	go pw.Render()
	return &progressBar{pw: pw, tracker: tracker}
}

func (b *progressBar) Update(p experiment.Progress) {
	if b.total != p.TotalTicks {
		b.total = p.TotalTicks
		b.tracker.UpdateTotal(int64(p.TotalTicks))
	}
	b.tracker.UpdateMessage(fmt.Sprintf("rep %d/%d sch %d/%d", p.Rep+1, p.Reps, p.Arrangement+1, p.Arrangements))
	b.tracker.SetValue(int64(p.Ticks))
	if p.Ticks >= p.TotalTicks {
		b.tracker.MarkAsDone()
	}
}

func (b *progressBar) Stop() {
	b.pw.Stop()
	for b.pw.IsRenderInProgress() {
		time.Sleep(100 * time.Millisecond)
	}
}
