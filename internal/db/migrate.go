package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

var (
	//go:embed sql/pre_automigrate.sql
	schemaSQL string

	//go:embed sql/post_automigrate.sql
	builtinTaxonomiesSQL string
)

// autoMigrate creates the cms schema, migrates the models, then registers
// the built-in translation taxonomies.
func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return errPoolClosed
	}

	steps := []struct {
		label string
		run   func() error
	}{
		{"create schema", func() error { return p.execScript(ctx, schemaSQL) }},
		{"migrate models", func() error { return p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...) }},
		{"register taxonomies", func() error { return p.execScript(ctx, builtinTaxonomiesSQL) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.label, err)
		}
	}
	return nil
}

func (p *Pool) execScript(ctx context.Context, script string) error {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil
	}
	return p.gdb.WithContext(ctx).Exec(script).Error
}
