package migration

// ProposalsMigrations creates the "proposals" namespace's table backing
// internal/advisory/proposal/store/postgres: one JSON-document row per
// proposal aggregate, mirroring the document-per-row shape policy_packs
// already uses in internal/policy/store/postgres.
var ProposalsMigrations = []Migration{
	{
		Namespace: "proposals",
		Version:   1,
		Name:      "proposals",
		SQL: `
CREATE TABLE proposals (
	proposal_id   TEXT PRIMARY KEY,
	portfolio_id  TEXT NOT NULL,
	state         TEXT NOT NULL,
	document      JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX proposals_portfolio_idx ON proposals (portfolio_id);
CREATE INDEX proposals_state_idx ON proposals (state);
`,
	},
}
