// Package calendar resolves school terms and week boundaries from a versioned term table.
package calendar

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Term is an inclusive date range. Start and End are midnights in the calendar location.
type Term struct {
	Code  string
	Start time.Time
	End   time.Time
}

// Contains reports whether day (a midnight in the calendar location) falls inside the term.
func (t Term) Contains(day time.Time) bool {
	return !day.Before(t.Start) && !day.After(t.End)
}

// Calendar is an immutable, validated term table.
type Calendar struct {
	version string
	loc     *time.Location
	terms   []Term
}

// New validates and sorts terms. Terms must have start <= end, unique codes and must not overlap.
func New(version string, loc *time.Location, terms []Term) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("calendar %q has no terms", version)
	}
	sorted := make([]Term, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for i, t := range terms {
		if t.Code == "" {
			return nil, fmt.Errorf("term %d: code required", i)
		}
		if _, dup := seen[t.Code]; dup {
			return nil, fmt.Errorf("term %s: duplicate code", t.Code)
		}
		seen[t.Code] = struct{}{}
		start, end := midnight(t.Start, loc), midnight(t.End, loc)
		if end.Before(start) {
			return nil, fmt.Errorf("term %s: end %s before start %s", t.Code, end.Format(dateLayout), start.Format(dateLayout))
		}
		sorted[i] = Term{Code: t.Code, Start: start, End: end}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Start.After(sorted[i-1].End) {
			return nil, fmt.Errorf("term %s overlaps %s", sorted[i].Code, sorted[i-1].Code)
		}
	}
	return &Calendar{version: version, loc: loc, terms: sorted}, nil
}

// Version identifies the term table in use.
func (c *Calendar) Version() string { return c.version }

// Location is the school time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Terms returns a copy of the ordered term table.
func (c *Calendar) Terms() []Term {
	out := make([]Term, len(c.terms))
	copy(out, c.terms)
	return out
}

// Today truncates now to midnight in the school time zone.
func (c *Calendar) Today(now time.Time) time.Time {
	return midnight(now, c.loc)
}

// Current returns the term containing now's date.
func (c *Calendar) Current(now time.Time) (Term, bool) {
	day := c.Today(now)
	for _, t := range c.terms {
		if t.Contains(day) {
			return t, true
		}
	}
	return Term{}, false
}

// Next returns the earliest term starting after now's date.
func (c *Calendar) Next(now time.Time) (Term, bool) {
	day := c.Today(now)
	for _, t := range c.terms {
		if t.Start.After(day) {
			return t, true
		}
	}
	return Term{}, false
}

// WeekStart returns the Monday on or before now's date.
func (c *Calendar) WeekStart(now time.Time) time.Time {
	day := c.Today(now)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// NextWeekStart returns the Monday after now's week start.
func (c *Calendar) NextWeekStart(now time.Time) time.Time {
	return c.WeekStart(now).AddDate(0, 0, 7)
}

// EndOfMonth returns the last calendar day of now's month.
func (c *Calendar) EndOfMonth(now time.Time) time.Time {
	day := c.Today(now)
	return time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, c.loc)
}

// EndOfDay returns the last second of day in the school time zone.
func (c *Calendar) EndOfDay(day time.Time) time.Time {
	d := midnight(day, c.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, c.loc)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

type fileTerm struct {
	Code  string `yaml:"code"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type fileCalendar struct {
	Version string     `yaml:"version"`
	Terms   []fileTerm `yaml:"terms"`
}

// Load reads a YAML term table from path. An empty path yields the built-in table.
func Load(path string, loc *time.Location) (*Calendar, error) {
	if path == "" {
		return Default(loc)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	return Parse(raw, loc)
}

// Parse decodes a YAML term table.
func Parse(raw []byte, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	var doc fileCalendar
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("calendar version required")
	}
	terms := make([]Term, 0, len(doc.Terms))
	for _, ft := range doc.Terms {
		start, err := time.ParseInLocation(dateLayout, ft.Start, loc)
		if err != nil {
			return nil, fmt.Errorf("term %s start: %w", ft.Code, err)
		}
		end, err := time.ParseInLocation(dateLayout, ft.End, loc)
		if err != nil {
			return nil, fmt.Errorf("term %s end: %w", ft.Code, err)
		}
		terms = append(terms, Term{Code: ft.Code, Start: start, End: end})
	}
	return New(doc.Version, loc, terms)
}

// Default returns the built-in 2025/2026 term table.
func Default(loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, loc) }
	return New("2025.1", loc, []Term{
		{Code: "2025-1", Start: d(2025, time.January, 1), End: d(2025, time.March, 31)},
		{Code: "2025-2", Start: d(2025, time.May, 5), End: d(2025, time.July, 31)},
		{Code: "2025-3", Start: d(2025, time.September, 1), End: d(2025, time.November, 30)},
		{Code: "2026-1", Start: d(2026, time.January, 4), End: d(2026, time.April, 2)},
		{Code: "2026-2", Start: d(2026, time.May, 4), End: d(2026, time.August, 6)},
		{Code: "2026-3", Start: d(2026, time.September, 7), End: d(2026, time.December, 3)},
	})
}
