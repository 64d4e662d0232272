package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"time"

	"github.com/age-b2b/backoffice/internal/shared"
)

const (
	defaultPageSize  = 20
	maxPageSize      = 50
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	maxExportRows    = 10000
)

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service builds the staff audit timeline.
type Service struct {
	repo     Repository
	now      func() time.Time
	location *time.Location
}

// NewService creates an audit timeline service. Dates are interpreted in loc.
func NewService(repo Repository, now func() time.Time, loc *time.Location) *Service {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, now: now, location: loc}
}

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	q, err := s.resolve(filters)
	if err != nil {
		return Result{}, err
	}
	page, pageSize := filters.Page, filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1

	rows, err := s.repo.TimelineWindow(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// ExportCSV renders every entry matching filters as CSV.
func (s *Service) ExportCSV(ctx context.Context, filters TimelineFilters) ([]byte, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	q, err := s.resolve(filters)
	if err != nil {
		return nil, err
	}
	q.Limit = maxExportRows
	rows, err := s.repo.TimelineWindow(ctx, q)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"at", "actor", "action", "entity", "entity_id", "meta"})
	for _, row := range rows {
		_ = w.Write([]string{
			row.At.In(s.location).Format(time.RFC3339),
			row.Actor,
			row.Action,
			row.Entity,
			row.EntityID,
			string(row.Meta),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resolve turns business dates into a half-open [FromAt, ToAt) instant range.
func (s *Service) resolve(filters TimelineFilters) (Query, error) {
	to := filters.To
	if to.IsZero() {
		to = s.now().In(s.location)
	}
	toAt := startOfDay(to, s.location).AddDate(0, 0, 1)
	var fromAt time.Time
	if filters.From.IsZero() {
		fromAt = toAt.Add(-defaultDateRange)
	} else {
		fromAt = startOfDay(filters.From, s.location)
	}
	if !fromAt.Before(toAt) {
		return Query{}, shared.Errorf(shared.ErrInvalidInput, "from must not be after to")
	}
	if toAt.Sub(fromAt) > maxDateRange {
		return Query{}, shared.Errorf(shared.ErrInvalidInput, "date range must not exceed 90 days")
	}
	return Query{
		FromAt:   fromAt,
		ToAt:     toAt,
		Actor:    strings.TrimSpace(filters.Actor),
		Entity:   strings.TrimSpace(filters.Entity),
		EntityID: strings.TrimSpace(filters.EntityID),
		Action:   strings.TrimSpace(filters.Action),
	}, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
