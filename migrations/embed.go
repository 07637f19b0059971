// Package migrations — встроенные SQL-миграции хранилища черновиков:
// локальная база SQLite (корень) и Postgres (postgres/).
package migrations

import "embed"

// Files содержит все .sql файлы из этой директории (порядок важен: 001, 002, ...).
//
//go:embed *.sql
var Files embed.FS

// Postgres — те же таблицы в диалекте Postgres.
//
//go:embed postgres/*.sql
var Postgres embed.FS
