package render

import (
	"time"

	"golang.org/x/text/language"
)

// Locale carries the display strings of one viewer language.
type Locale struct {
	Tag        language.Tag
	Months     [12]string
	Weekdays   [7]string // indexed by time.Weekday, Sunday first
	TimeLayout string
	RangeSep   string
}

var (
	vietnamese = Locale{
		Tag: language.MustParse("vi-VN"),
		Months: [12]string{
			"tháng 1", "tháng 2", "tháng 3", "tháng 4", "tháng 5", "tháng 6",
			"tháng 7", "tháng 8", "tháng 9", "tháng 10", "tháng 11", "tháng 12",
		},
		Weekdays: [7]string{
			"Chủ Nhật", "Thứ Hai", "Thứ Ba", "Thứ Tư", "Thứ Năm", "Thứ Sáu", "Thứ Bảy",
		},
		TimeLayout: "15:04",
		RangeSep:   "–",
	}

	english = Locale{
		Tag: language.MustParse("en-US"),
		Months: [12]string{
			"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December",
		},
		Weekdays: [7]string{
			"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
		},
		TimeLayout: "15:04",
		RangeSep:   "–",
	}

	// First entry is the fallback when nothing matches.
	supported = []Locale{vietnamese, english}
	matcher   = language.NewMatcher([]language.Tag{vietnamese.Tag, english.Tag})
)

// ResolveLocale picks the closest supported locale for a BCP 47 tag such as
// "vi-VN" or "en". Unparsable or unsupported tags resolve to Vietnamese.
func ResolveLocale(name string) Locale {
	tag, err := language.Parse(name)
	if err != nil {
		return vietnamese
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return vietnamese
	}
	return supported[idx]
}

func (l Locale) Month(m time.Month) string {
	return l.Months[m-1]
}

func (l Locale) Weekday(d time.Weekday) string {
	return l.Weekdays[d]
}
