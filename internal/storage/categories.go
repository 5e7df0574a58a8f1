package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/model"
)

// ListCategories returns all active categories ordered by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, type, is_active, created_at
		FROM categories WHERE is_active = 1 ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		var typ string
		if scanErr := rows.Scan(&c.ID, &c.Name, &c.Description, &typ, &c.IsActive, &c.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan category: %w", scanErr)
		}
		c.Type = model.CategoryType(typ)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategoryByName retrieves a category by its exact name.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var c model.Category
	var typ string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, type, is_active, created_at
		FROM categories WHERE name = ? ORDER BY id LIMIT 1
	`, name).Scan(&c.ID, &c.Name, &c.Description, &typ, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	c.Type = model.CategoryType(typ)
	return &c, nil
}

// CreateCategory adds a new category, failing if the name is taken.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, name, description string, categoryType model.CategoryType) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	category := &model.Category{
		Name:        strings.TrimSpace(name),
		Description: description,
		Type:        categoryType,
		IsActive:    true,
	}
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, description, type) VALUES (?, ?, ?)
	`, category.Name, category.Description, string(category.Type))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("category %q: %w", category.Name, common.ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("failed to create category %q: %w", category.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category id: %w", err)
	}
	category.ID = int(id)
	return category, nil
}

// ListMappingRules returns all active rules in matching order: priority
// descending, then insertion order.
func (s *SQLiteStorage) ListMappingRules(ctx context.Context) ([]model.MappingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern, category, kind, priority, is_active, created_at
		FROM mapping_rules WHERE is_active = 1 ORDER BY priority DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.MappingRule
	for rows.Next() {
		var r model.MappingRule
		var kind string
		if scanErr := rows.Scan(&r.ID, &r.Pattern, &r.Category, &kind, &r.Priority, &r.IsActive, &r.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan mapping rule: %w", scanErr)
		}
		r.Kind = model.MatchKind(kind)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CreateMappingRule adds a new category mapping rule. The target category
// must already exist.
func (s *SQLiteStorage) CreateMappingRule(ctx context.Context, rule *model.MappingRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMappingRule(rule); err != nil {
		return err
	}
	if _, err := s.GetCategoryByName(ctx, rule.Category); err != nil {
		return fmt.Errorf("mapping rule target: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO mapping_rules (pattern, category, kind, priority, is_active)
		VALUES (?, ?, ?, ?, ?)
	`, rule.Pattern, rule.Category, string(rule.Kind), rule.Priority, rule.IsActive)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("mapping rule %q: %w", rule.Pattern, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create mapping rule %q: %w", rule.Pattern, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule id: %w", err)
	}
	rule.ID = int(id)
	return nil
}
