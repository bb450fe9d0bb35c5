package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/grapheneos/appstore/pkg/install"
)

const progressInterval = 100 * time.Millisecond

func jobProgress(job *install.Job) (done, total int64) {
	for _, t := range job.Tasks() {
		d, n := t.Progress()
		done += d
		total += n
	}
	return done, total
}

func newProgressBar(w io.Writer, total int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}

// trackJob shows the download progress of job while it is staged, when
// w is non-nil, then waits for the install result. Interrupting ctx
// cancels staging.
func trackJob(ctx context.Context, w io.Writer, job *install.Job) error {
	var bar *progressbar.ProgressBar
	if w != nil {
		_, total := jobProgress(job)
		bar = newProgressBar(w, total, "    "+strings.Join(job.Packages(), ", "))
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
staging:
	for {
		select {
		case <-job.Staged():
			break staging
		case <-ticker.C:
			if bar != nil {
				done, _ := jobProgress(job)
				_ = bar.Set64(done)
			}
		case <-ctx.Done():
			job.Cancel()
			<-job.Staged()
			return ctx.Err()
		}
	}
	if err := job.WaitStaged(ctx); err != nil {
		if bar != nil {
			_, _ = fmt.Fprintln(w)
		}
		return err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return job.Wait(ctx)
}
