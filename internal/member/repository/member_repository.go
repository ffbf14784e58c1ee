package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"chat_realtime_service/internal/member/domain"
)

// Schema member table
const Schema = `
CREATE TABLE IF NOT EXISTS member (
	id           BIGSERIAL PRIMARY KEY,
	member_id    VARCHAR(64)  NOT NULL UNIQUE,
	email        VARCHAR(255) NOT NULL UNIQUE,
	username     VARCHAR(64)  NOT NULL DEFAULT '',
	password     VARCHAR(255) NOT NULL,
	status       SMALLINT     NOT NULL DEFAULT 0,
	last_seen_at TIMESTAMPTZ,
	display_name VARCHAR(50)  NOT NULL DEFAULT '',
	bio          VARCHAR(200) NOT NULL DEFAULT '',
	avatar_url   TEXT         NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
)`

// migrations columns added after the first release, safe to rerun
var migrations = []string{
	`ALTER TABLE member ADD COLUMN IF NOT EXISTS display_name VARCHAR(50) NOT NULL DEFAULT ''`,
	`ALTER TABLE member ADD COLUMN IF NOT EXISTS bio VARCHAR(200) NOT NULL DEFAULT ''`,
	`ALTER TABLE member ADD COLUMN IF NOT EXISTS avatar_url TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE member ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
}

const memberColumns = "id, member_id, email, username, password, status, last_seen_at, display_name, bio, avatar_url, created_at"

// MemberRepository definition get Member info
type MemberRepository interface {
	CreateUser(ctx context.Context, user *domain.Member) error
	UpdateMemberStatus(ctx context.Context, user *domain.Member) error
	SetPresence(ctx context.Context, memberID string, status domain.MemberStatus, lastSeenAt *time.Time) error
	FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error)
	FindByMemberIDs(ctx context.Context, memberIDs []string) ([]domain.Member, error)
	UpdateProfile(ctx context.Context, memberID string, patch domain.ProfilePatch) (*domain.Member, error)
	UpdatePassword(ctx context.Context, memberID, hashed string) error
	SearchMembers(ctx context.Context, query, excludeID string, limit int) ([]domain.Member, error)
}

type memberRepository struct {
	db *pgxpool.Pool
}

// NewMemberRepository create a MemberRepository
func NewMemberRepository(db *pgxpool.Pool) MemberRepository {
	return &memberRepository{db: db}
}

// EnsureSchema create the member table if missing and add newer columns
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return err
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate member: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var member domain.Member
	err := row.Scan(&member.ID, &member.MemberID, &member.Email, &member.Username,
		&member.Password, &member.Status, &member.LastSeenAt,
		&member.DisplayName, &member.Bio, &member.AvatarURL, &member.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) CreateUser(ctx context.Context, member *domain.Member) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO member(member_id, email, username, password) VALUES ($1, $2, $3, $4)",
		member.MemberID, member.Email, member.Username, member.Password)
	return err
}

func (r *memberRepository) UpdateMemberStatus(ctx context.Context, member *domain.Member) error {
	_, err := r.db.Exec(ctx, "UPDATE member SET status = $1 WHERE member_id = $2", member.Status, member.MemberID)
	return err
}

// SetPresence last_seen_at is only written when given
func (r *memberRepository) SetPresence(ctx context.Context, memberID string, status domain.MemberStatus, lastSeenAt *time.Time) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE member SET status = $1, last_seen_at = COALESCE($2, last_seen_at) WHERE member_id = $3",
		status, lastSeenAt, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *memberRepository) FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error) {
	queryStr := "SELECT " + memberColumns + " FROM member WHERE 1=1"
	params := []interface{}{}
	paramCount := 1

	if memberQuery.Email != nil {
		queryStr += fmt.Sprintf(" AND email = $%d", paramCount)
		params = append(params, *memberQuery.Email)
		paramCount++
	}
	if memberQuery.MemberID != nil {
		queryStr += fmt.Sprintf(" AND member_id = $%d", paramCount)
		params = append(params, *memberQuery.MemberID)
		paramCount++
	}
	if memberQuery.Username != nil {
		queryStr += fmt.Sprintf(" AND username = $%d", paramCount)
		params = append(params, *memberQuery.Username)
		paramCount++
	}
	if memberQuery.ID != nil {
		queryStr += fmt.Sprintf(" AND id = $%d", paramCount)
		params = append(params, *memberQuery.ID)
		paramCount++
	}

	member, err := scanMember(r.db.QueryRow(ctx, queryStr, params...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}

	return member, nil
}

// FindByMemberIDs members in any order, unknown ids are skipped
func (r *memberRepository) FindByMemberIDs(ctx context.Context, memberIDs []string) ([]domain.Member, error) {
	if len(memberIDs) == 0 {
		return []domain.Member{}, nil
	}
	rows, err := r.db.Query(ctx,
		"SELECT "+memberColumns+" FROM member WHERE member_id = ANY($1) ORDER BY username",
		memberIDs)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

// UpdateProfile only the non-nil fields of patch are written
func (r *memberRepository) UpdateProfile(ctx context.Context, memberID string, patch domain.ProfilePatch) (*domain.Member, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE member SET
			display_name = COALESCE($1, display_name),
			bio = COALESCE($2, bio),
			avatar_url = COALESCE($3, avatar_url)
		WHERE member_id = $4
		RETURNING `+memberColumns,
		patch.DisplayName, patch.Bio, patch.AvatarURL, memberID)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

func (r *memberRepository) UpdatePassword(ctx context.Context, memberID, hashed string) error {
	tag, err := r.db.Exec(ctx, "UPDATE member SET password = $1 WHERE member_id = $2", hashed, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// SearchMembers username or display name contains query, case-insensitive, ordered by username
func (r *memberRepository) SearchMembers(ctx context.Context, query, excludeID string, limit int) ([]domain.Member, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	rows, err := r.db.Query(ctx,
		"SELECT "+memberColumns+` FROM member
		WHERE member_id <> $1 AND status IN ($2, $3)
			AND (username ILIKE $4 OR display_name ILIKE $4)
		ORDER BY username LIMIT $5`,
		excludeID, domain.MemberStatusOffLine, domain.MemberStatusOnLine, pattern, limit)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func collectMembers(rows pgx.Rows) ([]domain.Member, error) {
	defer rows.Close()
	out := []domain.Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *member)
	}
	return out, rows.Err()
}
