package db

type migration struct {
	version int
	stmts   []string
}

// Ordered schema migrations. Never edit an applied migration; append a new
// version instead.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS observations (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				content TEXT NOT NULL,
				content_hash TEXT NOT NULL,
				type TEXT NOT NULL,
				tags_json TEXT NOT NULL DEFAULT '[]',
				metadata_json TEXT NOT NULL DEFAULT '{}',
				created_at INTEGER NOT NULL,
				embedding_id TEXT,
				deleted INTEGER NOT NULL DEFAULT 0,
				UNIQUE (project_id, content_hash)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_observations_project ON observations(project_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_observations_type ON observations(type)`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS observations_fts USING fts5(
				content,
				id UNINDEXED,
				project_id UNINDEXED,
				tokenize='porter unicode61'
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS agent_sessions (
				id TEXT PRIMARY KEY,
				session_summary_id TEXT,
				agent_type TEXT NOT NULL,
				model TEXT,
				parent_session_id TEXT REFERENCES agent_sessions(id),
				started_at INTEGER NOT NULL,
				ended_at INTEGER,
				duration_ms INTEGER,
				status TEXT NOT NULL,
				prompt_summary TEXT,
				result_summary TEXT,
				token_count INTEGER,
				tool_calls_count INTEGER,
				delegations_count INTEGER,
				project_id TEXT,
				worktree_id TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_project ON agent_sessions(project_id, started_at)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_status ON agent_sessions(status)`,
			`CREATE TABLE IF NOT EXISTS tool_calls (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES agent_sessions(id),
				tool_name TEXT NOT NULL,
				params_summary TEXT,
				success INTEGER NOT NULL,
				error_message TEXT,
				duration_ms INTEGER,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS delegations (
				id TEXT PRIMARY KEY,
				parent_session_id TEXT NOT NULL REFERENCES agent_sessions(id),
				child_session_id TEXT NOT NULL REFERENCES agent_sessions(id),
				prompt TEXT NOT NULL,
				prompt_embedding_id TEXT,
				result TEXT,
				success INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				completed_at INTEGER,
				duration_ms INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_delegations_parent ON delegations(parent_session_id)`,
			`CREATE TABLE IF NOT EXISTS checkpoints (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES agent_sessions(id),
				checkpoint_type TEXT NOT NULL,
				description TEXT NOT NULL,
				snapshot_data TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				restored_at INTEGER,
				expired INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id)`,
		},
	},
	{
		version: 3,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS file_hashes (
				collection TEXT NOT NULL,
				path TEXT NOT NULL,
				content_hash TEXT NOT NULL,
				tombstone INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL,
				UNIQUE (collection, path)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_file_hashes_collection ON file_hashes(collection)`,
			`CREATE TABLE IF NOT EXISTS session_summaries (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				session_id TEXT NOT NULL,
				topics_json TEXT NOT NULL DEFAULT '[]',
				decisions_json TEXT NOT NULL DEFAULT '[]',
				next_steps_json TEXT NOT NULL DEFAULT '[]',
				key_files_json TEXT NOT NULL DEFAULT '[]',
				origin_json TEXT,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_summaries_session ON session_summaries(session_id)`,
		},
	},
	{
		version: 4,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS organizations (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS repositories (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL REFERENCES organizations(id),
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				url TEXT NOT NULL,
				local_path TEXT,
				vcs_type TEXT NOT NULL DEFAULT 'git',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE (org_id, project_id, name)
			)`,
			`CREATE TABLE IF NOT EXISTS branches (
				id TEXT PRIMARY KEY,
				repo_id TEXT NOT NULL REFERENCES repositories(id),
				name TEXT NOT NULL,
				head_ref TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE (repo_id, name)
			)`,
			`CREATE TABLE IF NOT EXISTS worktrees (
				id TEXT PRIMARY KEY,
				repo_id TEXT NOT NULL REFERENCES repositories(id),
				branch TEXT NOT NULL,
				path TEXT NOT NULL,
				agent_id TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE (repo_id, path)
			)`,
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				org_id TEXT REFERENCES organizations(id),
				name TEXT NOT NULL,
				email TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE (org_id, name)
			)`,
			`CREATE TABLE IF NOT EXISTS teams (
				id TEXT PRIMARY KEY,
				org_id TEXT REFERENCES organizations(id),
				name TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE (org_id, name)
			)`,
			`CREATE TABLE IF NOT EXISTS plans (
				id TEXT PRIMARY KEY,
				org_id TEXT REFERENCES organizations(id),
				project_id TEXT,
				title TEXT NOT NULL,
				body TEXT,
				status TEXT NOT NULL DEFAULT 'open',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS issues (
				id TEXT PRIMARY KEY,
				org_id TEXT REFERENCES organizations(id),
				plan_id TEXT REFERENCES plans(id),
				title TEXT NOT NULL,
				body TEXT,
				status TEXT NOT NULL DEFAULT 'open',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
		},
	},
}
