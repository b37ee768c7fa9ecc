// Package storage содержит миграции SQLite базы данных.
package storage

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: Таблица изображений.
	// embedding - JSON массив чисел или NULL, пока эмбеддинг не посчитан.
	`CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		file_path TEXT NOT NULL,
		embedding TEXT,
		created_at INTEGER NOT NULL
	);`,

	// Миграция 2: Один файл на диске - одна запись.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_images_file_path ON images (file_path);`,

	// Миграция 3: Быстрый поиск изображений без эмбеддинга для backfill.
	`CREATE INDEX IF NOT EXISTS ix_images_no_embedding ON images (id) WHERE embedding IS NULL;`,

	// Миграция 4: Таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 5: Запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}
