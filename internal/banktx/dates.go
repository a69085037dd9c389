package banktx

import (
	"time"

	"github.com/cleared-dev/gcsync/internal/model"
)

// Window is an inclusive range of days to fetch transactions for.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) String() string {
	return w.From.Format(time.DateOnly) + ".." + w.To.Format(time.DateOnly)
}

// DatesList splits [from, to] into consecutive two-day windows. The last
// window ends at to. It returns nil when to is before from.
func DatesList(from, to time.Time) []Window {
	from, to = model.TruncateDay(from), model.TruncateDay(to)
	var out []Window
	for start := from; !start.After(to); {
		end := start.AddDate(0, 0, 1)
		if end.After(to) {
			end = to
		}
		out = append(out, Window{From: start, To: end})
		start = end.AddDate(0, 0, 1)
	}
	return out
}

// ManualWindows resolves the range of a manual sync requested on today.
// A missing bound is one day away from the other; with neither, the sync
// covers today. Ranges starting today or later fetch today up to tomorrow,
// or up to a later to. Earlier ranges start no more than days back, end no
// later than today and are split with DatesList.
func ManualWindows(from, to, today time.Time, days int) []Window {
	today = model.TruncateDay(today)
	switch {
	case from.IsZero() && to.IsZero():
		from = today
	case from.IsZero():
		from = to.AddDate(0, 0, -1)
	case to.IsZero():
		to = from.AddDate(0, 0, 1)
	}
	from, to = model.TruncateDay(from), model.TruncateDay(to)

	if !from.Before(today) {
		end := today.AddDate(0, 0, 1)
		if to.After(end) {
			end = to
		}
		return []Window{{From: today, To: end}}
	}

	if oldest := today.AddDate(0, 0, -days); from.Before(oldest) {
		from = oldest
	}
	if to.After(today) {
		to = today
	}
	return DatesList(from, to)
}

// AutoWindow returns the window an automatic sync fetches: from the day of
// the last sync, or yesterday when there was none or it was today, up to
// today but at most one day past from.
func AutoWindow(lastSync, now time.Time) Window {
	today := model.TruncateDay(now)
	yesterday := today.AddDate(0, 0, -1)

	from := yesterday
	if !lastSync.IsZero() {
		if d := model.TruncateDay(lastSync); d.Before(today) {
			from = d
		}
	}
	to := today
	if to.Sub(from) > 24*time.Hour {
		to = from.AddDate(0, 0, 1)
	}
	return Window{From: from, To: to}
}
