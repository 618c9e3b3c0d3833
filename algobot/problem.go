package algobot

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Domain identifies a LeetCode regional variant. The primary domain
// (leetcode.com) uses UTC day boundaries; the regional mirror
// (leetcode.cn) rolls its daily challenge over on Asia/Shanghai time.
type Domain string

const (
	DomainPrimary  Domain = "com"
	DomainRegional Domain = "cn"
)

func (d Domain) Valid() bool {
	return d == DomainPrimary || d == DomainRegional
}

// Location returns the timezone whose day boundary governs the domain's
// daily challenge.
func (d Domain) Location() *time.Location {
	if d == DomainRegional {
		loc, err := time.LoadLocation("Asia/Shanghai")
		if err == nil {
			return loc
		}
	}
	return time.UTC
}

// BaseURL returns the public site root for the domain.
func (d Domain) BaseURL() string {
	return fmt.Sprintf("https://leetcode.%s", string(d))
}

const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// difficultyName converts the numeric difficulty level used by the
// problem-list API into its display name.
func difficultyName(level int) string {
	switch level {
	case 1:
		return DifficultyEasy
	case 2:
		return DifficultyMedium
	case 3:
		return DifficultyHard
	default:
		return "Unknown"
	}
}

// StringSlice is a []string stored as a JSON-encoded TEXT column.
type StringSlice []string

// Scan implements the sql.Scanner interface.
func (s *StringSlice) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		if len(v) == 0 {
			*s = nil
			return nil
		}
		return json.Unmarshal(v, s)
	case string:
		if v == "" {
			*s = nil
			return nil
		}
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unexpected type for StringSlice: %T", value)
	}
}

// Value implements the driver.Valuer interface.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// GormDataType is used by GORM to determine the default data type for a field.
func (StringSlice) GormDataType() string {
	return "text"
}

// SimilarQuestion is one entry of a problem's similar-problem list, as
// returned by the detail API.
type SimilarQuestion struct {
	Title      string `json:"title"`
	TitleSlug  string `json:"titleSlug"`
	Difficulty string `json:"difficulty"`
}

// SimilarQuestions is a []SimilarQuestion stored as a JSON-encoded TEXT column.
type SimilarQuestions []SimilarQuestion

// Scan implements the sql.Scanner interface.
func (s *SimilarQuestions) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		if len(v) == 0 {
			*s = nil
			return nil
		}
		return json.Unmarshal(v, s)
	case string:
		if v == "" {
			*s = nil
			return nil
		}
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unexpected type for SimilarQuestions: %T", value)
	}
}

// Value implements the driver.Valuer interface.
func (s SimilarQuestions) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// GormDataType is used by GORM to determine the default data type for a field.
func (SimilarQuestions) GormDataType() string {
	return "text"
}

// Problem is the canonical record for one problem. A row is created
// with list-view fields only on the first full sync, and enriched in
// place when a detail fetch or ratings fetch later succeeds. Rows are
// never deleted.
type Problem struct {
	ID           int         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Slug         string      `gorm:"uniqueIndex;not null" json:"slug"`
	Title        string      `json:"title"`
	TitleCN      string      `gorm:"column:title_cn" json:"title_cn"`
	Difficulty   string      `json:"difficulty"`
	AcRate       float64     `json:"ac_rate"`
	Rating       float64     `json:"rating"`
	Contest      string      `json:"contest"`
	ProblemIndex string      `json:"problem_index"`
	Tags         StringSlice `json:"tags"`
	Link         string      `json:"link"`
	Category     string      `json:"category"`
	PaidOnly     bool        `json:"paid_only"`

	// Detail fields, empty until the first successful detail fetch.
	Content          string           `json:"content"`
	ContentCN        string           `gorm:"column:content_cn" json:"content_cn"`
	SimilarQuestions SimilarQuestions `json:"similar_questions"`
}

// HasDetail reports whether the detail-view fields have been populated.
func (p Problem) HasDetail() bool {
	return len(p.Tags) > 0 && p.Content != ""
}

// Merge applies a partial update to the problem. Merging is monotonic
// per field: an empty value in the update never overwrites a populated
// value already on the record.
func (p *Problem) Merge(update Problem) {
	mergeString(&p.Slug, update.Slug)
	mergeString(&p.Title, update.Title)
	mergeString(&p.TitleCN, update.TitleCN)
	mergeString(&p.Difficulty, update.Difficulty)
	mergeFloat(&p.AcRate, update.AcRate)
	mergeFloat(&p.Rating, update.Rating)
	mergeString(&p.Contest, update.Contest)
	mergeString(&p.ProblemIndex, update.ProblemIndex)
	mergeString(&p.Link, update.Link)
	mergeString(&p.Category, update.Category)
	mergeString(&p.Content, update.Content)
	mergeString(&p.ContentCN, update.ContentCN)
	if len(update.Tags) > 0 {
		p.Tags = update.Tags
	}
	if len(update.SimilarQuestions) > 0 {
		p.SimilarQuestions = update.SimilarQuestions
	}
	if update.PaidOnly {
		p.PaidOnly = true
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

// LogValue implements slog.LogValuer-ish summarization via String.
func (p Problem) String() string {
	return fmt.Sprintf("%d. %s (%s)", p.ID, p.Title, p.Difficulty)
}

// DailyChallenge is one resolved daily challenge. There is at most one
// row per (date, domain) pair; rows are upserted idempotently and may
// be upgraded from partial to full by a later merge pass.
type DailyChallenge struct {
	Date   string `gorm:"primaryKey;size:10" json:"date"`
	Domain Domain `gorm:"primaryKey;size:8" json:"domain"`

	ProblemID        int              `json:"id"`
	Slug             string           `gorm:"not null" json:"slug"`
	Title            string           `json:"title"`
	TitleCN          string           `gorm:"column:title_cn" json:"title_cn"`
	Difficulty       string           `json:"difficulty"`
	AcRate           float64          `json:"ac_rate"`
	Rating           float64          `json:"rating"`
	Contest          string           `json:"contest"`
	ProblemIndex     string           `json:"problem_index"`
	Tags             StringSlice      `json:"tags"`
	Link             string           `json:"link"`
	Category         string           `json:"category"`
	PaidOnly         bool             `json:"paid_only"`
	Content          string           `json:"content"`
	ContentCN        string           `gorm:"column:content_cn" json:"content_cn"`
	SimilarQuestions SimilarQuestions `json:"similar_questions"`
}

// TableName overrides the default gorm table name.
func (DailyChallenge) TableName() string {
	return "daily_challenges"
}

// newDailyChallenge builds a challenge row for the given date from a
// resolved problem record.
func newDailyChallenge(date string, domain Domain, p Problem) *DailyChallenge {
	return &DailyChallenge{
		Date:             date,
		Domain:           domain,
		ProblemID:        p.ID,
		Slug:             p.Slug,
		Title:            p.Title,
		TitleCN:          p.TitleCN,
		Difficulty:       p.Difficulty,
		AcRate:           p.AcRate,
		Rating:           p.Rating,
		Contest:          p.Contest,
		ProblemIndex:     p.ProblemIndex,
		Tags:             p.Tags,
		Link:             p.Link,
		Category:         p.Category,
		PaidOnly:         p.PaidOnly,
		Content:          p.Content,
		ContentCN:        p.ContentCN,
		SimilarQuestions: p.SimilarQuestions,
	}
}

// Problem returns the embedded problem fields as a Problem value.
func (d DailyChallenge) Problem() Problem {
	return Problem{
		ID:               d.ProblemID,
		Slug:             d.Slug,
		Title:            d.Title,
		TitleCN:          d.TitleCN,
		Difficulty:       d.Difficulty,
		AcRate:           d.AcRate,
		Rating:           d.Rating,
		Contest:          d.Contest,
		ProblemIndex:     d.ProblemIndex,
		Tags:             d.Tags,
		Link:             d.Link,
		Category:         d.Category,
		PaidOnly:         d.PaidOnly,
		Content:          d.Content,
		ContentCN:        d.ContentCN,
		SimilarQuestions: d.SimilarQuestions,
	}
}

// RatingInfo is one row of the external ratings feed.
type RatingInfo struct {
	ID           int     `json:"id"`
	Rating       float64 `json:"rating"`
	Title        string  `json:"title"`
	TitleCN      string  `json:"title_cn"`
	Slug         string  `json:"slug"`
	Contest      string  `json:"contest"`
	ProblemIndex string  `json:"problem_index"`
}

// SubmissionRef is one recent accepted submission from the
// user-submissions feed.
type SubmissionRef struct {
	SubmissionID string    `json:"submission_id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Timestamp    int64     `json:"timestamp"`
	SubmittedAt  time.Time `json:"submission_time"`
}

var (
	// ErrInvalidDate indicates a date string that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New(`date must be in "YYYY-MM-DD" format`)

	// ErrFutureDate indicates a date strictly after "today" in the
	// domain's canonical timezone.
	ErrFutureDate = errors.New("date must not be in the future")
)

const dateLayout = "2006-01-02"

// parseChallengeDate validates a YYYY-MM-DD date string against the
// domain's current day, returning the parsed date.
func parseChallengeDate(dateStr string, domain Domain, now time.Time) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, dateStr, domain.Location())
	if err != nil || t.Format(dateLayout) != dateStr {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, dateStr)
	}
	today, _ := time.ParseInLocation(
		dateLayout,
		now.In(domain.Location()).Format(dateLayout),
		domain.Location(),
	)
	if t.After(today) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrFutureDate, dateStr)
	}
	return t, nil
}
