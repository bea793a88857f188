package repository

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"
)

//go:embed schema/*.sql
var schemas embed.FS

// LoadInitScript returns the script at path, or the bundled schema for
// driver when path is empty.
func LoadInitScript(driver, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read init script: %w", err)
		}
		return string(data), nil
	}

	data, err := schemas.ReadFile("schema/" + driver + ".sql")
	if err != nil {
		return "", fmt.Errorf("no bundled schema for driver %q", driver)
	}
	return string(data), nil
}

// SplitStatements splits an init script on ';' and drops empty statements.
func SplitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// applyStatements runs every statement of script in order, stopping at the
// first failure.
func applyStatements(ctx context.Context, script string, exec func(ctx context.Context, stmt string) error) error {
	for i, stmt := range SplitStatements(script) {
		if err := exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply init statement %d: %w", i+1, err)
		}
	}
	return nil
}
