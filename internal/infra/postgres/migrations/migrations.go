// Package migrations holds the schema of the lesson_quizzes and quiz_results tables.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
