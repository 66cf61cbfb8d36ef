// Package migrations holds the schema for exams, questions and attempt history.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
