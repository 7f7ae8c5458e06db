package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLRuleStore persists rules in the rules table. It works against both
// postgres and sqlite connections opened through internal/db.
type SQLRuleStore struct {
	db *sqlx.DB
}

var _ RuleStore = (*SQLRuleStore)(nil)

func NewSQLRuleStore(db *sqlx.DB) *SQLRuleStore {
	return &SQLRuleStore{db: db}
}

// ruleRow mirrors the rules table. Condition and action trees are stored
// as JSON text so malformed grammar survives a round trip unchanged.
type ruleRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Salience      int       `db:"salience"`
	Stackable     bool      `db:"stackable"`
	ConditionJSON []byte    `db:"condition_json"`
	ActionJSON    []byte    `db:"action_json"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func toRow(r *Rule) (*ruleRow, error) {
	condJSON, err := json.Marshal(r.Condition)
	if err != nil {
		return nil, fmt.Errorf("marshaling condition: %w", err)
	}
	actJSON, err := json.Marshal(r.Action)
	if err != nil {
		return nil, fmt.Errorf("marshaling action: %w", err)
	}
	return &ruleRow{
		ID:            r.ID,
		Name:          r.Name,
		Salience:      r.Salience,
		Stackable:     r.Stackable,
		ConditionJSON: condJSON,
		ActionJSON:    actJSON,
		IsActive:      r.Active,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func (row *ruleRow) toRule() *Rule {
	r := &Rule{
		ID:        row.ID,
		Name:      row.Name,
		Salience:  row.Salience,
		Stackable: row.Stackable,
		Active:    row.IsActive,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	// Condition and Action decoding never fails; broken JSON yields
	// invalid nodes that still render and list.
	_ = json.Unmarshal(row.ConditionJSON, &r.Condition)
	_ = json.Unmarshal(row.ActionJSON, &r.Action)
	return r
}

func (s *SQLRuleStore) List(ctx context.Context, f ListFilters) ([]*Rule, error) {
	query := `SELECT id, name, salience, stackable, condition_json, action_json,
		is_active, created_at, updated_at FROM rules`
	var clauses []string
	var args []any
	if f.Active != nil {
		clauses = append(clauses, "is_active = ?")
		args = append(args, *f.Active)
	}
	if f.Stackable != nil {
		clauses = append(clauses, "stackable = ?")
		args = append(args, *f.Stackable)
	}
	if f.NameContains != "" {
		clauses = append(clauses, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.NameContains)+"%")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY salience ASC"

	var rows []ruleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	out := make([]*Rule, len(rows))
	for i := range rows {
		out[i] = rows[i].toRule()
	}
	return out, nil
}

func (s *SQLRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	query := s.db.Rebind(`SELECT id, name, salience, stackable, condition_json,
		action_json, is_active, created_at, updated_at FROM rules WHERE id = ?`)

	var row ruleRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting rule %s: %w", id, err)
	}
	return row.toRule(), nil
}

func (s *SQLRuleStore) Insert(ctx context.Context, r *Rule) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	row, err := toRow(r)
	if err != nil {
		return err
	}
	query := s.db.Rebind(`INSERT INTO rules (id, name, salience, stackable,
		condition_json, action_json, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		row.ID, row.Name, row.Salience, row.Stackable,
		row.ConditionJSON, row.ActionJSON, row.IsActive,
		row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

func (s *SQLRuleStore) Update(ctx context.Context, r *Rule) error {
	r.UpdatedAt = time.Now().UTC()

	row, err := toRow(r)
	if err != nil {
		return err
	}
	query := s.db.Rebind(`UPDATE rules SET name = ?, salience = ?, stackable = ?,
		condition_json = ?, action_json = ?, is_active = ?, updated_at = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		row.Name, row.Salience, row.Stackable,
		row.ConditionJSON, row.ActionJSON, row.IsActive,
		row.UpdatedAt, row.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("updating rule %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating rule %s: %w", r.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLRuleStore) Delete(ctx context.Context, id string) error {
	query := s.db.Rebind(`DELETE FROM rules WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects a name uniqueness failure on either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
