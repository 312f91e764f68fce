package model

import (
	"testing"
	"time"
)

func TestParseInstant(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*60*60)

	tests := []struct {
		name  string
		in    string
		valid bool
		want  time.Time
	}{
		{"utc with millis", "2025-03-10T02:00:00.000Z", true, time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)},
		{"offset", "2025-03-10T09:00:00+07:00", true, time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)},
		{"offset without seconds", "2025-03-10T09:00+07:00", true, time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)},
		{"local date-time", "2025-03-10T09:00:00", true, time.Date(2025, 3, 10, 9, 0, 0, 0, hcm)},
		{"local minutes", "2025-03-10T09:30", true, time.Date(2025, 3, 10, 9, 30, 0, 0, hcm)},
		{"date only is utc", "2025-03-10", true, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"garbage", "next tuesday", false, time.Time{}},
		{"empty", "", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseInstant(tt.in, hcm)
			if got.Valid() != tt.valid {
				t.Fatalf("Valid() = %v, want %v", got.Valid(), tt.valid)
			}
			if tt.valid && !got.Time().Equal(tt.want) {
				t.Errorf("Time() = %v, want %v", got.Time(), tt.want)
			}
		})
	}
}

func TestInstantComparisonsWithInvalid(t *testing.T) {
	valid := At(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	invalid := ParseInstant("not a date", time.UTC)

	cases := map[string]bool{
		"invalid.Before(valid)":   invalid.Before(valid),
		"invalid.After(valid)":    invalid.After(valid),
		"valid.Before(invalid)":   valid.Before(invalid),
		"valid.After(invalid)":    valid.After(invalid),
		"invalid.Before(invalid)": invalid.Before(invalid),
	}
	for name, got := range cases {
		if got {
			t.Errorf("%s = true, want false", name)
		}
	}
	if invalid.String() != "Invalid Date" {
		t.Errorf("String() = %q, want %q", invalid.String(), "Invalid Date")
	}
}
