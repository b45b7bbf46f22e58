package analytics

import (
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidPageView = "INVALID_PAGE_VIEW"
	TextCodeInvalidMetric   = "INVALID_METRIC"
	TextCodeInvalidDate     = "INVALID_DATE"

	DefaultCapacity = 10000
	topPagesLimit   = 10
)

// PageView is one visit of a page.
type PageView struct {
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	UserAgent string        `json:"user_agent"`
	Referrer  string        `json:"referrer"`
	Visitor   string        `json:"-"`
	At        time.Time     `json:"at"`
	Duration  time.Duration `json:"duration"`
}

// Validate will run validation rules
func (v PageView) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.URL, validation.Required, validation.Length(1, 2048)),
		validation.Field(&v.At, validation.Required),
		validation.Field(&v.Duration, validation.Min(time.Duration(0))),
	)
}

// Metric is a named measurement, such as a render time.
type Metric struct {
	Name  string            `json:"name"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`
	At    time.Time         `json:"at"`
}

// Validate will run validation rules
func (m Metric) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&m.At, validation.Required),
	)
}

// PageCount is the number of views of one URL.
type PageCount struct {
	URL   string `json:"url"`
	Views int    `json:"views"`
}

// DailyStats summarizes one UTC day.
type DailyStats struct {
	Date           string        `json:"date"`
	TotalViews     int           `json:"total_views"`
	UniqueVisitors int           `json:"unique_visitors"`
	AvgDuration    time.Duration `json:"avg_duration"`
	TopPages       []PageCount   `json:"top_pages"`
	Hourly         [24]int       `json:"hourly"`
}

// Store keeps the most recent page views and metrics in memory. Once
// capacity is reached the oldest entries are dropped.
type Store struct {
	mu       sync.RWMutex
	views    []PageView
	metrics  []Metric
	capacity int
}

// NewStore returns a store holding up to capacity entries of each kind.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Track validates v and records it.
func (s *Store) Track(v PageView) error {
	v.URL = strings.TrimSpace(v.URL)
	if err := v.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid page view").
			WithTextCode(TextCodeInvalidPageView).
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = appendBounded(s.views, v, s.capacity)
	return nil
}

// Record validates m and records it.
func (s *Store) Record(m Metric) error {
	if err := m.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid metric").
			WithTextCode(TextCodeInvalidMetric).
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = appendBounded(s.metrics, m, s.capacity)
	return nil
}

// Metrics returns the metrics named name recorded on the UTC day of day.
// An empty name matches every metric.
func (s *Store) Metrics(name string, day time.Time) []Metric {
	from, to := dayBounds(day)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Metric
	for _, m := range s.metrics {
		if (name == "" || m.Name == name) && inRange(m.At, from, to) {
			out = append(out, m)
		}
	}
	return out
}

// Daily computes the statistics of the UTC day of day.
func (s *Store) Daily(day time.Time) DailyStats {
	from, to := dayBounds(day)
	stats := DailyStats{Date: from.Format(time.DateOnly), TopPages: []PageCount{}}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := map[string]int{}
	visitors := map[string]struct{}{}
	var total time.Duration

	for _, v := range s.views {
		if !inRange(v.At, from, to) {
			continue
		}
		stats.TotalViews++
		stats.Hourly[v.At.UTC().Hour()]++
		pages[v.URL]++
		total += v.Duration
		if v.Visitor != "" {
			visitors[v.Visitor] = struct{}{}
		}
	}

	if stats.TotalViews == 0 {
		return stats
	}
	stats.UniqueVisitors = len(visitors)
	stats.AvgDuration = total / time.Duration(stats.TotalViews)

	for url, n := range pages {
		stats.TopPages = append(stats.TopPages, PageCount{URL: url, Views: n})
	}
	sort.Slice(stats.TopPages, func(i, j int) bool {
		if stats.TopPages[i].Views == stats.TopPages[j].Views {
			return stats.TopPages[i].URL < stats.TopPages[j].URL
		}
		return stats.TopPages[i].Views > stats.TopPages[j].Views
	})
	if len(stats.TopPages) > topPagesLimit {
		stats.TopPages = stats.TopPages[:topPagesLimit]
	}
	return stats
}

// Len returns how many page views are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

func appendBounded[T any](list []T, v T, capacity int) []T {
	list = append(list, v)
	if over := len(list) - capacity; over > 0 {
		list = append(list[:0], list[over:]...)
	}
	return list
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	d := day.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

func inRange(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}
