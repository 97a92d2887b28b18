package watch

import (
	"fmt"
	"strings"
	"time"
)

// Activity lights up on each notification and fades over ten seconds.
type Activity struct {
	dots int
	last time.Time
}

const activityDots = 5

func (a *Activity) OnItem(now time.Time) {
	a.dots = activityDots
	a.last = now
}

// Decay dims one dot per two seconds of silence.
func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	lit := activityDots - int(now.Sub(a.last)/(2*time.Second))
	if lit < 0 {
		lit = 0
	}
	if lit < a.dots {
		a.dots = lit
	}
}

func (a Activity) Lit() int { return a.dots }

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range activityDots {
		if i < a.dots {
			b.WriteString(theme.ActivityOn.Render("●"))
		} else {
			b.WriteString(theme.ActivityOff.Render("○"))
		}
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
