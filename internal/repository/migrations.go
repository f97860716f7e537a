package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func RunMigrations(pool *pgxpool.Pool, dir string, logger zerolog.Logger) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to glob migration files: %w", err)
	}

	sort.Strings(files)

	for _, file := range files {
		logger.Info().Str("file", file).Msg("running migration")
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		_, err = pool.Exec(context.Background(), string(content))
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				logger.Warn().Str("file", file).Err(err).Msg("migration already run or partially run")
				continue
			}
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}

	return nil
}
