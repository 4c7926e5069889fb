package migration

// DPMMigrations creates the "dpm" namespace's tables: the supportability
// store's runs/artifacts/idempotency/async/workflow-decision/lineage tables
// (internal/supportability/store/postgres), plus policy_packs
// (internal/policy/store/postgres) — folded into this namespace since both
// adapters share the DPM_SUPPORTABILITY_POSTGRES_DSN connection and spec §6
// names only two migration namespaces, "dpm" and "proposals".
var DPMMigrations = []Migration{
	{
		Namespace: "dpm",
		Version:   1,
		Name:      "supportability_runs",
		SQL: `
CREATE TABLE dpm_supportability_runs (
	run_id          TEXT PRIMARY KEY,
	correlation_id  TEXT NOT NULL,
	idempotency_key TEXT NOT NULL DEFAULT '',
	request_hash    TEXT NOT NULL,
	portfolio_id    TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX dpm_supportability_runs_correlation_idx ON dpm_supportability_runs (correlation_id);
CREATE INDEX dpm_supportability_runs_request_hash_idx ON dpm_supportability_runs (request_hash);
CREATE INDEX dpm_supportability_runs_portfolio_idx ON dpm_supportability_runs (portfolio_id, created_at);
`,
	},
	{
		Namespace: "dpm",
		Version:   2,
		Name:      "supportability_run_artifacts",
		SQL: `
CREATE TABLE dpm_supportability_run_artifacts (
	run_id     TEXT NOT NULL REFERENCES dpm_supportability_runs (run_id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	mode       TEXT NOT NULL,
	content    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (run_id, name)
);
`,
	},
	{
		Namespace: "dpm",
		Version:   3,
		Name:      "idempotency_records",
		SQL: `
CREATE TABLE dpm_idempotency_records (
	idempotency_key TEXT PRIMARY KEY,
	request_hash    TEXT NOT NULL,
	response_body   BYTEA NOT NULL,
	run_id          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE dpm_idempotency_history (
	idempotency_key TEXT NOT NULL,
	request_hash    TEXT NOT NULL,
	response_body   BYTEA NOT NULL,
	run_id          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX dpm_idempotency_history_key_idx ON dpm_idempotency_history (idempotency_key, created_at);
`,
	},
	{
		Namespace: "dpm",
		Version:   4,
		Name:      "async_operations",
		SQL: `
CREATE TABLE dpm_async_operations (
	operation_id    TEXT PRIMARY KEY,
	correlation_id  TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	status          TEXT NOT NULL,
	request         BYTEA NOT NULL,
	result          BYTEA,
	failure_reason  TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX dpm_async_operations_status_idx ON dpm_async_operations (status, updated_at);
`,
	},
	{
		Namespace: "dpm",
		Version:   5,
		Name:      "workflow_decisions",
		SQL: `
CREATE TABLE dpm_workflow_decisions (
	run_id      TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	actor_id    TEXT NOT NULL,
	action_code TEXT NOT NULL,
	reason_code TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX dpm_workflow_decisions_run_idx ON dpm_workflow_decisions (run_id, created_at);
`,
	},
	{
		Namespace: "dpm",
		Version:   6,
		Name:      "lineage_edges",
		SQL: `
CREATE TABLE dpm_lineage_edges (
	from_entity_id TEXT NOT NULL,
	to_entity_id   TEXT NOT NULL,
	relation       TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX dpm_lineage_edges_from_idx ON dpm_lineage_edges (from_entity_id);
CREATE INDEX dpm_lineage_edges_to_idx ON dpm_lineage_edges (to_entity_id);
`,
	},
	{
		Namespace: "dpm",
		Version:   7,
		Name:      "policy_packs",
		SQL: `
CREATE TABLE policy_packs (
	id       TEXT PRIMARY KEY,
	document JSONB NOT NULL
);
`,
	},
	{
		Namespace: "dpm",
		Version:   8,
		Name:      "workflow_decisions_correlation_id",
		SQL: `
ALTER TABLE dpm_workflow_decisions ADD COLUMN correlation_id TEXT NOT NULL DEFAULT '';
CREATE INDEX dpm_workflow_decisions_correlation_idx ON dpm_workflow_decisions (correlation_id);
`,
	},
}
