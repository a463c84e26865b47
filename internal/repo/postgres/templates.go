package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
)

type TemplateStore struct {
	db DB
}

const (
	insertTemplateQuery = `INSERT INTO templates (
		template_id,
		name,
		type,
		description,
		object_key,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$6)`

	selectTemplateQuery = `SELECT template_id, name, type, description, object_key, created_at, updated_at
	 FROM templates
	 WHERE template_id = $1`

	listTemplatesQuery = `SELECT template_id, name, type, description, object_key, created_at, updated_at
	 FROM templates
	 ORDER BY created_at DESC`
)

func NewTemplateStore(db DB) *TemplateStore {
	if db == nil {
		return nil
	}
	return &TemplateStore{db: db}
}

func (s *TemplateStore) CreateTemplate(ctx context.Context, template domain.Template) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("template store not initialized")
	}
	if err := template.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertTemplateQuery,
		strings.TrimSpace(template.ID),
		strings.TrimSpace(template.Name),
		nullIfEmpty(template.Type),
		nullIfEmpty(template.Description),
		strings.TrimSpace(template.ObjectKey),
		normalizeTime(template.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *TemplateStore) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	if s == nil || s.db == nil {
		return domain.Template{}, fmt.Errorf("template store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Template{}, fmt.Errorf("template id is required")
	}
	row := s.db.QueryRowContext(ctx, selectTemplateQuery, id)
	return scanTemplate(row)
}

func (s *TemplateStore) ListTemplates(ctx context.Context, limit int) ([]domain.Template, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("template store not initialized")
	}
	query := listTemplatesQuery
	args := make([]any, 0, 1)
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]domain.Template, 0)
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

type templateScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(scanner templateScanner) (domain.Template, error) {
	var template domain.Template
	var templateType, description sql.NullString
	if err := scanner.Scan(
		&template.ID,
		&template.Name,
		&templateType,
		&description,
		&template.ObjectKey,
		&template.CreatedAt,
		&template.UpdatedAt,
	); err != nil {
		return domain.Template{}, handleNotFound(err)
	}
	template.Type = templateType.String
	template.Description = description.String
	return template, nil
}
