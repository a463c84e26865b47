package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/repo"
)

type GroupExecutionStore struct {
	db DB
}

const (
	insertGroupExecutionQuery = `INSERT INTO group_executions (
		group_execution_id,
		execution_id,
		group_id,
		status,
		error,
		autonomous_agent_count,
		current_repeat,
		total_repeats,
		started_at,
		completed_at,
		failed_at,
		stopped_at,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	selectGroupExecutionQuery = `SELECT group_execution_id, execution_id, group_id, status, error,
		autonomous_agent_count, current_repeat, total_repeats,
		started_at, completed_at, failed_at, stopped_at, created_at, updated_at
	 FROM group_executions
	 WHERE group_execution_id = $1`

	listGroupExecutionsQuery = `SELECT group_execution_id, execution_id, group_id, status, error,
		autonomous_agent_count, current_repeat, total_repeats,
		started_at, completed_at, failed_at, stopped_at, created_at, updated_at
	 FROM group_executions
	 WHERE execution_id = $1
	 ORDER BY created_at ASC, group_id ASC`

	updateGroupExecutionQuery = `UPDATE group_executions
	 SET status = $1, error = $2, current_repeat = $3,
	     started_at = $4, completed_at = $5, failed_at = $6, stopped_at = $7, updated_at = $8
	 WHERE group_execution_id = $9`
)

func NewGroupExecutionStore(db DB) *GroupExecutionStore {
	if db == nil {
		return nil
	}
	return &GroupExecutionStore{db: db}
}

func (s *GroupExecutionStore) GetGroupExecution(ctx context.Context, id string) (domain.GroupExecution, error) {
	if s == nil || s.db == nil {
		return domain.GroupExecution{}, fmt.Errorf("group execution store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.GroupExecution{}, fmt.Errorf("group execution id is required")
	}
	row := s.db.QueryRowContext(ctx, selectGroupExecutionQuery, id)
	return scanGroupExecution(row)
}

func (s *GroupExecutionStore) ListByExecution(ctx context.Context, executionID string) ([]domain.GroupExecution, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("group execution store not initialized")
	}
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return nil, fmt.Errorf("execution id is required")
	}
	rows, err := s.db.QueryContext(ctx, listGroupExecutionsQuery, executionID)
	if err != nil {
		return nil, fmt.Errorf("list group executions: %w", err)
	}
	defer rows.Close()

	records := make([]domain.GroupExecution, 0)
	for rows.Next() {
		record, err := scanGroupExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list group executions: %w", err)
	}
	return records, nil
}

func (s *GroupExecutionStore) UpdateGroupExecution(ctx context.Context, record domain.GroupExecution) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("group execution store not initialized")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		updateGroupExecutionQuery,
		string(record.Status),
		nullIfEmpty(record.Error),
		record.CurrentRepeat,
		nullTime(record.StartedAt),
		nullTime(record.CompletedAt),
		nullTime(record.FailedAt),
		nullTime(record.StoppedAt),
		normalizeTime(record.UpdatedAt),
		strings.TrimSpace(record.ID),
	)
	if err != nil {
		return fmt.Errorf("update group execution: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update group execution: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type groupExecutionScanner interface {
	Scan(dest ...any) error
}

func scanGroupExecution(scanner groupExecutionScanner) (domain.GroupExecution, error) {
	var record domain.GroupExecution
	var status string
	var errText sql.NullString
	var started, completed, failed, stopped sql.NullTime
	if err := scanner.Scan(
		&record.ID,
		&record.ExecutionID,
		&record.GroupID,
		&status,
		&errText,
		&record.AutonomousAgentCount,
		&record.CurrentRepeat,
		&record.TotalRepeats,
		&started,
		&completed,
		&failed,
		&stopped,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return domain.GroupExecution{}, handleNotFound(err)
	}
	record.Status = domain.NormalizeStatus(status)
	record.Error = errText.String
	record.StartedAt = timePtr(started)
	record.CompletedAt = timePtr(completed)
	record.FailedAt = timePtr(failed)
	record.StoppedAt = timePtr(stopped)
	return record, nil
}
