package history

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	output_path TEXT,
	disposition TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	pages INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`
