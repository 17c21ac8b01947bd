package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/model"
	"github.com/botarena/apiserver/internal/repository"
)

var _ repository.OrganizationRepository = (*OrgDB)(nil)

// OrgDB is the organization-facing view of DB. It exists because
// repository.UserRepository and repository.OrganizationRepository both
// declare a GetByID method with different return types, which a single
// receiver type cannot satisfy. All other organization methods stay on DB
// and are promoted through the embedded pointer.
type OrgDB struct{ *DB }

// Orgs returns the organization view of the database.
func (db *DB) Orgs() *OrgDB { return &OrgDB{db} }

// GetByID retrieves an organization by ID.
// Returns apperror.ErrNotFound if no such organization exists.
func (db *OrgDB) GetByID(ctx context.Context, id int64) (*model.Organization, error) {
	var (
		org  model.Organization
		kind string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, organization_name, kind, verification_code
		 FROM organizations WHERE id = ?`, id,
	).Scan(&org.ID, &org.Name, &kind, &org.VerificationCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("This organization does not exist.")
		}
		return nil, fmt.Errorf("sqlite: getting organization %d: %w", id, err)
	}
	org.Kind = model.OrganizationKind(kind)
	return &org, nil
}

// CountDomainMatches counts registered domains of the organization equal to
// any of the match keys (the email's domain and its registrable form).
func (db *DB) CountDomainMatches(ctx context.Context, orgID int64, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	sqlStr, args, err := stmt.Select("COUNT(*)").
		From("organization_email_domains").
		Where(sq.And{
			sq.Eq{"organization_id": orgID},
			sq.Eq{"domain": keys},
		}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("sqlite: building domain match query: %w", err)
	}

	var n int
	if err := db.conn.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting domain matches for org %d: %w", orgID, err)
	}
	return n, nil
}

// FindByDomains returns the first organization registering any of the match
// keys, or nil when none does.
func (db *DB) FindByDomains(ctx context.Context, keys []string) (*model.Organization, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	sqlStr, args, err := stmt.Select("o.id", "o.organization_name", "o.kind", "o.verification_code").
		From("organizations o").
		Where(sq.Expr(`EXISTS (
			SELECT 1 FROM organization_email_domains d
			WHERE d.organization_id = o.id AND d.domain IN (`+sq.Placeholders(len(keys))+`)
		)`, toAny(keys)...)).
		OrderBy("o.id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building domain search query: %w", err)
	}

	var (
		org  model.Organization
		kind string
	)
	err = db.conn.QueryRowContext(ctx, sqlStr, args...).
		Scan(&org.ID, &org.Name, &kind, &org.VerificationCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: searching organizations by domain: %w", err)
	}
	org.Kind = model.OrganizationKind(kind)
	return &org, nil
}

// InsertOrganization provisions an organization with its email domains.
// Organizations normally arrive out-of-band; this exists for provisioning
// scripts and tests.
func (db *DB) InsertOrganization(ctx context.Context, org *model.Organization, domains []string) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO organizations (organization_name, kind, verification_code)
		 VALUES (?, ?, ?)`,
		org.Name, string(org.Kind), org.VerificationCode)
	if err != nil {
		return fmt.Errorf("sqlite: inserting organization %q: %w", org.Name, err)
	}
	org.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted organization id: %w", err)
	}

	for _, d := range domains {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO organization_email_domains (organization_id, domain) VALUES (?, ?)`,
			org.ID, d)
		if err != nil {
			return fmt.Errorf("sqlite: inserting domain %q for org %d: %w", d, org.ID, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
