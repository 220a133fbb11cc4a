package chat

import "time"

const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"
	longDateLayout = "Monday, January 2, 2006"
)

// DateBucket holds consecutive messages that share a local calendar day.
type DateBucket struct {
	Label    string
	Day      time.Time
	Messages []Message
}

// GroupByDate splits msgs into day buckets in loc, keeping message order.
// A nil loc means time.Local.
func GroupByDate(msgs []Message, now time.Time, loc *time.Location) []DateBucket {
	if loc == nil {
		loc = time.Local
	}
	today := dateOf(now, loc)
	yesterday := today.previous(loc)

	var out []DateBucket
	var last calendarDate
	for _, msg := range msgs {
		date := dateOf(msg.CreatedAt, loc)
		if n := len(out); n > 0 && date == last {
			out[n-1].Messages = append(out[n-1].Messages, msg)
			continue
		}
		last = date
		day := date.start(loc)
		out = append(out, DateBucket{
			Label:    dayLabel(date, day, today, yesterday),
			Day:      day,
			Messages: []Message{msg},
		})
	}
	return out
}

// Flatten concatenates bucket messages back into one list.
func Flatten(buckets []DateBucket) []Message {
	var out []Message
	for _, b := range buckets {
		out = append(out, b.Messages...)
	}
	return out
}

// calendarDate is a day on the viewer's calendar. Days are compared by date,
// never by instant, since DST can move or skip local midnight.
type calendarDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time, loc *time.Location) calendarDate {
	y, m, d := t.In(loc).Date()
	return calendarDate{year: y, month: m, day: d}
}

// previous steps back from noon, which exists on every calendar day.
func (c calendarDate) previous(loc *time.Location) calendarDate {
	return dateOf(time.Date(c.year, c.month, c.day-1, 12, 0, 0, 0, loc), loc)
}

// start is the first instant of the day; 01:00 where midnight is skipped.
func (c calendarDate) start(loc *time.Location) time.Time {
	return time.Date(c.year, c.month, c.day, 0, 0, 0, 0, loc)
}

func dayLabel(date calendarDate, day time.Time, today, yesterday calendarDate) string {
	switch date {
	case today:
		return LabelToday
	case yesterday:
		return LabelYesterday
	default:
		return day.Format(longDateLayout)
	}
}
