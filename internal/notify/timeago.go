package notify

import (
	"time"

	"github.com/xeonx/timeago"
)

// spanishAgo mirrors timeago.English with Spanish vocabulary for the
// "enviada hace dos días" lines in the templates. Past a year the absolute
// date is shown instead.
var spanishAgo = timeago.Config{
	PastPrefix:   "hace ",
	FuturePrefix: "dentro de ",
	Periods: []timeago.FormatPeriod{
		{D: time.Second, One: "un segundo", Many: "%d segundos"},
		{D: time.Minute, One: "un minuto", Many: "%d minutos"},
		{D: time.Hour, One: "una hora", Many: "%d horas"},
		{D: timeago.Day, One: "un día", Many: "%d días"},
		{D: timeago.Month, One: "un mes", Many: "%d meses"},
		{D: timeago.Year, One: "un año", Many: "%d años"},
	},
	Zero:          "ahora mismo",
	Max:           timeago.Year,
	DefaultLayout: "02/01/2006",
}

// agoFormatter picks the relative time vocabulary for lang, defaulting to
// Spanish.
func agoFormatter(lang string) timeago.Config {
	if lang == "en" {
		return timeago.English
	}
	return spanishAgo
}
