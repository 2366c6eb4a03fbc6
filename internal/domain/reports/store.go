package reports

import (
	"context"
	"errors"
	"fmt"

	"makao/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const selectReport = `
	SELECT r.id, r.tenant_id, t.full_name, r.unit_id, u.unit_number, p.name,
	       r.issue_title, r.issue_category, r.priority_level, r.description,
	       r.status, r.attachment_url, r.reported_at, r.resolved_at
	FROM reports r
	JOIN users t ON t.id = r.tenant_id
	JOIN units u ON u.id = r.unit_id
	JOIN properties p ON p.id = u.property_id`

func scanReport(row pgx.Row, r *Report) error {
	return row.Scan(&r.ID, &r.TenantID, &r.TenantName, &r.UnitID, &r.UnitNumber, &r.PropertyName,
		&r.IssueTitle, &r.IssueCategory, &r.Priority, &r.Description,
		&r.Status, &r.AttachmentURL, &r.ReportedAt, &r.ResolvedAt)
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]Report, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, selectReport+` WHERE `+where+` ORDER BY r.reported_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		var rep Report
		if err := scanReport(rows, &rep); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *Repository) Create(ctx context.Context, rep *Report) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.q.QueryRow(ctx, `
		INSERT INTO reports (tenant_id, unit_id, issue_title, issue_category, priority_level, description, attachment_url)
		VALUES ($1, $2, $3, $4, $5::report_priority, $6, $7)
		RETURNING id, status, reported_at
	`, rep.TenantID, rep.UnitID, rep.IssueTitle, rep.IssueCategory, rep.Priority, rep.Description, rep.AttachmentURL).
		Scan(&rep.ID, &rep.Status, &rep.ReportedAt)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var rep Report
	if err := scanReport(r.q.QueryRow(ctx, selectReport+` WHERE r.id = $1`, id), &rep); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &rep, nil
}

func (r *Repository) ListByLandlord(ctx context.Context, landlordID int64, f Filter) ([]Report, error) {
	return r.list(ctx, `p.landlord_id = $1
		AND ($2 = '' OR r.status = $2::report_status)
		AND ($3 = '' OR r.priority_level = $3::report_priority)`,
		landlordID, f.Status, f.Priority)
}

func (r *Repository) ListByTenant(ctx context.Context, tenantID int64) ([]Report, error) {
	return r.list(ctx, `r.tenant_id = $1`, tenantID)
}

// UpdateStatus stamps resolved_at when a report moves to resolved and clears
// it when the report is reopened.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) (*Report, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE reports
		   SET status = $2::report_status,
		       resolved_at = CASE
		           WHEN $2 IN ('resolved', 'closed') THEN COALESCE(resolved_at, NOW())
		           ELSE NULL
		       END
		 WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, fmt.Errorf("update report status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) Stats(ctx context.Context, landlordID int64) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var s Stats
	err := r.q.QueryRow(ctx, `
		SELECT
		  COUNT(*),
		  COUNT(*) FILTER (WHERE r.status = 'open'),
		  COUNT(*) FILTER (WHERE r.status = 'in_progress'),
		  COUNT(*) FILTER (WHERE r.status = 'resolved'),
		  COUNT(*) FILTER (WHERE r.status = 'closed'),
		  COUNT(*) FILTER (WHERE r.priority_level = 'urgent' AND r.status IN ('open', 'in_progress')),
		  (AVG(EXTRACT(EPOCH FROM (r.resolved_at - r.reported_at)) / 3600)
		      FILTER (WHERE r.resolved_at IS NOT NULL))::float8
		FROM reports r
		JOIN units u ON u.id = r.unit_id
		JOIN properties p ON p.id = u.property_id
		WHERE p.landlord_id = $1
	`, landlordID).Scan(&s.Total, &s.Open, &s.InProgress, &s.Resolved, &s.Closed, &s.Urgent, &s.AvgResolutionHours)
	if err != nil {
		return nil, fmt.Errorf("report stats: %w", err)
	}
	return &s, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
