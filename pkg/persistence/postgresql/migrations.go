package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				triggers JSONB NOT NULL DEFAULT '[]',
				last_run_id TEXT NOT NULL DEFAULT '',
				success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
				runs_today INTEGER NOT NULL DEFAULT 0,
				hitl_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_tenant ON workflows (tenant_id) WHERE deleted_at IS NULL;
		`,
		2: `
			CREATE TABLE IF NOT EXISTS workflow_executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows (id),
				tenant_id TEXT NOT NULL,
				workflow_type TEXT NOT NULL,
				status TEXT NOT NULL,
				phase TEXT NOT NULL DEFAULT '',
				input JSONB,
				state JSONB,
				wait_deadline TIMESTAMP WITH TIME ZONE,
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				cost_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow ON workflow_executions (workflow_id);
			CREATE INDEX IF NOT EXISTS idx_executions_waiting ON workflow_executions (wait_deadline) WHERE status = 'waiting';
		`,
		3: `
			CREATE TABLE IF NOT EXISTS connector_installations (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				connector TEXT NOT NULL,
				kind TEXT NOT NULL,
				public_config JSONB NOT NULL DEFAULT '{}',
				credentials_path TEXT NOT NULL DEFAULT '',
				endpoint TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (tenant_id, connector)
			);
		`,
		4: `
			CREATE TABLE IF NOT EXISTS secret_blobs (
				path TEXT PRIMARY KEY,
				ciphertext BYTEA NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
		5: `
			-- Trigger paths are matched exactly; expression index keeps webhook
			-- dispatch from scanning every tenant's workflows.
			CREATE INDEX IF NOT EXISTS idx_workflows_webhook_paths
				ON workflows USING GIN (triggers jsonb_path_ops)
				WHERE deleted_at IS NULL;
		`,
	}
}
