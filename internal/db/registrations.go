package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/tinyhis/regops/internal/models"
)

const (
	tableRegistration  = "registration"
	tableMedicalRecord = "medical_record"
	tablePrescription  = "prescription"
	tableLabOrder      = "lab_order"
	tableSchedule      = "schedule"
)

// PurgeOrder lists the registration-dependent tables children first.
var PurgeOrder = []string{tablePrescription, tableLabOrder, tableMedicalRecord, tableRegistration}

// Purge step actions.
const (
	ActionDelete = "delete"
	ActionReset  = "reset current_count"
)

// PurgeStep is one statement of the purge and the rows it touched (or, in
// a dry run, would touch).
type PurgeStep struct {
	Table  string
	Action string
	Rows   int64
}

type registrationRow struct {
	RegID  int64         `db:"reg_id"`
	Status sql.NullInt64 `db:"status"`
}

// ListRegistrations returns every registration's id and status. A NULL
// status reads as 0.
func (s *Store) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	query, _, err := s.dialect.From(tableRegistration).
		Select("reg_id", "status").
		Order(goqu.I("reg_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build registration query: %w", err)
	}

	var rows []registrationRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	regs := make([]models.Registration, 0, len(rows))
	for _, r := range rows {
		regs = append(regs, models.Registration{RegID: r.RegID, Status: int(r.Status.Int64)})
	}
	return regs, nil
}

// PurgeRegistrations deletes all registration data and zeroes every
// schedule counter in one transaction. Nothing is kept if any step fails.
func (s *Store) PurgeRegistrations(ctx context.Context) (steps []PurgeStep, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin purge: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range PurgeOrder {
		query, _, err := s.dialect.Delete(table).ToSQL()
		if err != nil {
			return nil, fmt.Errorf("build delete %s: %w", table, err)
		}
		res, err := tx.ExecContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected %s: %w", table, err)
		}
		steps = append(steps, PurgeStep{Table: table, Action: ActionDelete, Rows: n})
	}

	query, _, err := s.dialect.Update(tableSchedule).
		Set(goqu.Record{"current_count": 0}).
		Where(dirtyCounter()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build schedule reset: %w", err)
	}
	res, err := tx.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reset schedule counts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected %s: %w", tableSchedule, err)
	}
	steps = append(steps, PurgeStep{Table: tableSchedule, Action: ActionReset, Rows: n})

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purge: %w", err)
	}
	return steps, nil
}

// PlanPurge counts, read-only, what PurgeRegistrations would touch.
func (s *Store) PlanPurge(ctx context.Context) ([]PurgeStep, error) {
	steps := make([]PurgeStep, 0, len(PurgeOrder)+1)
	for _, table := range PurgeOrder {
		n, err := s.count(ctx, s.dialect.From(table))
		if err != nil {
			return nil, err
		}
		steps = append(steps, PurgeStep{Table: table, Action: ActionDelete, Rows: n})
	}

	n, err := s.count(ctx, s.dialect.From(tableSchedule).Where(dirtyCounter()))
	if err != nil {
		return nil, err
	}
	steps = append(steps, PurgeStep{Table: tableSchedule, Action: ActionReset, Rows: n})
	return steps, nil
}

// dirtyCounter matches schedules whose counter is not a clean zero. NULL
// counters count as dirty.
func dirtyCounter() goqu.Expression {
	return goqu.Or(
		goqu.C("current_count").Neq(0),
		goqu.C("current_count").IsNull(),
	)
}

func (s *Store) count(ctx context.Context, ds *goqu.SelectDataset) (int64, error) {
	query, _, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}
