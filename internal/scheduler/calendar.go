package scheduler

import (
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/es"
)

// SpanishCalendar is Monday through Friday minus the Spanish national
// holidays. The office the notifications come from works these days.
func SpanishCalendar() *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	c.Name = "es"
	c.AddHoliday(es.Holidays...)
	return c
}
