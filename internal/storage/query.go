package storage

const (
	querySchema = `
CREATE TABLE IF NOT EXISTS kv_store (
    store_key  TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	queryGet = `
SELECT value
FROM kv_store
    WHERE store_key = :key`

	queryUpsert = `
INSERT INTO kv_store (store_key, value, updated_at)
VALUES (:key, :value, :updated_at)
ON CONFLICT (store_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	queryRemove = `
DELETE FROM kv_store
WHERE store_key = :key`
)
