package runs

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapdoc/pkg/core"
)

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func toRunItem(run *core.Run, now time.Time) RunItem {
	return RunItem{
		ID:        run.ID,
		ShortID:   truncateID(run.ID),
		Kind:      string(run.Kind),
		Layout:    run.Layout.String(),
		Rows:      run.Rows,
		Status:    string(run.Status),
		StartedAt: formatTimeAgo(run.StartedAt, now),
		Duration:  formatRunDuration(run.StartedAt, run.CompletedAt, now),
		Error:     run.Error,
	}
}

// formatTimeAgo formats a time relative to now.
func formatTimeAgo(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "agora"
	case diff < time.Hour:
		return fmt.Sprintf("há %d min", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("há %d h", int(diff.Hours()))
	default:
		return t.Local().Format("02/01 15:04")
	}
}

// formatRunDuration formats how long a run took, or has been running.
func formatRunDuration(started time.Time, completed *time.Time, now time.Time) string {
	end := now
	if completed != nil {
		end = *completed
	}
	return formatDuration(end.Sub(started))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
