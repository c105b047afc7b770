package tasks

import (
	"fmt"
	"time"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

// ValidatePeriod checks that exactly the field group matching typ is set.
func ValidatePeriod(typ domain.TaskType, p domain.Period) error {
	if !typ.Valid() {
		return &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", typ)}
	}

	day := p.TargetDate != nil
	week := p.WeekStart != nil || p.WeekEnd != nil
	month := p.MonthStart != nil || p.MonthEnd != nil
	year := p.YearStart != nil || p.YearEnd != nil

	switch typ {
	case domain.TypeDay:
		if !day {
			return &domain.ValidationError{Field: "target_date", Reason: "required for day tasks"}
		}
		if week || month || year {
			return &domain.ValidationError{Field: "period", Reason: "day tasks only take target_date"}
		}
	case domain.TypeWeek:
		if day || month || year {
			return &domain.ValidationError{Field: "period", Reason: "week tasks only take week_start/week_end"}
		}
		return checkRange("week", p.WeekStart, p.WeekEnd)
	case domain.TypeMonth:
		if day || week || year {
			return &domain.ValidationError{Field: "period", Reason: "month tasks only take month_start/month_end"}
		}
		return checkRange("month", p.MonthStart, p.MonthEnd)
	case domain.TypeYear:
		if day || week || month {
			return &domain.ValidationError{Field: "period", Reason: "year tasks only take year_start/year_end"}
		}
		return checkRange("year", p.YearStart, p.YearEnd)
	}
	return nil
}

func checkRange(name string, start, end *time.Time) error {
	if start == nil {
		return &domain.ValidationError{Field: name + "_start", Reason: "required for " + name + " tasks"}
	}
	if end == nil {
		return &domain.ValidationError{Field: name + "_end", Reason: "required for " + name + " tasks"}
	}
	if end.Before(*start) {
		return &domain.ValidationError{Field: name + "_end", Reason: "before " + name + "_start"}
	}
	return nil
}

// CurrentPeriod returns the period fields of the day, ISO week (Monday to
// Sunday), month or year containing now. End fields hold midnight of the
// last day, inclusive.
func CurrentPeriod(typ domain.TaskType, now time.Time, loc *time.Location) (domain.Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := domain.DayOf(now, loc)

	var p domain.Period
	switch typ {
	case domain.TypeDay:
		d := today.Start(loc)
		p.TargetDate = &d
	case domain.TypeWeek:
		offset := (int(today.Start(loc).Weekday()) + 6) % 7
		start := today.AddDays(-offset).Start(loc)
		end := today.AddDays(6 - offset).Start(loc)
		p.WeekStart, p.WeekEnd = &start, &end
	case domain.TypeMonth:
		start := time.Date(today.Year, today.Month, 1, 0, 0, 0, 0, loc)
		end := start.AddDate(0, 1, -1)
		p.MonthStart, p.MonthEnd = &start, &end
	case domain.TypeYear:
		start := time.Date(today.Year, time.January, 1, 0, 0, 0, 0, loc)
		end := time.Date(today.Year, time.December, 31, 0, 0, 0, 0, loc)
		p.YearStart, p.YearEnd = &start, &end
	default:
		return domain.Period{}, &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", typ)}
	}
	return p, nil
}
