package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE automations (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(50) NOT NULL,
				trigger_filter JSONB NOT NULL DEFAULT '[]',
				is_active BOOLEAN NOT NULL DEFAULT false,
				is_multi_step BOOLEAN NOT NULL DEFAULT false,
				steps JSONB NOT NULL DEFAULT '[]',
				exit_criteria JSONB NOT NULL DEFAULT '[]',
				max_duration_days INT,
				safety_exit_enabled BOOLEAN NOT NULL DEFAULT false,
				total_executions BIGINT NOT NULL DEFAULT 0,
				successful_executions BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_automations_trigger ON automations(trigger_type, is_active);
			CREATE INDEX idx_automations_deleted_at ON automations(deleted_at);

			CREATE TABLE automation_enrollments (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL REFERENCES automations(id),
				entity_type VARCHAR(50) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				current_step_index INT NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'exited')),
				exit_reason VARCHAR(100) NOT NULL DEFAULT '',
				enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE,
				delay_armed_at TIMESTAMP WITH TIME ZONE,
				claimed_by VARCHAR(255) NOT NULL DEFAULT '',
				claimed_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- At most one active enrollment per (automation, entity).
			CREATE UNIQUE INDEX idx_enrollments_one_active
				ON automation_enrollments(automation_id, entity_type, entity_id)
				WHERE status = 'active';

			CREATE INDEX idx_enrollments_due ON automation_enrollments(status, next_due_at);
			CREATE INDEX idx_enrollments_entity ON automation_enrollments(entity_type, entity_id);
			CREATE INDEX idx_enrollments_automation ON automation_enrollments(automation_id);

			CREATE TABLE automation_executions (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL,
				enrollment_id UUID,
				entity_type VARCHAR(50) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				step_index INT NOT NULL,
				action_type VARCHAR(100) NOT NULL DEFAULT '',
				outcome VARCHAR(50) NOT NULL,
				detail TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_automation ON automation_executions(automation_id, created_at);
			CREATE INDEX idx_executions_enrollment ON automation_executions(enrollment_id);
			CREATE INDEX idx_executions_entity ON automation_executions(entity_type, entity_id, created_at);
		`,
		2: `
			CREATE TABLE crm_entities (
				entity_type VARCHAR(50) NOT NULL,
				id VARCHAR(255) NOT NULL,
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (entity_type, id)
			);

			CREATE TABLE crm_tasks (
				id UUID PRIMARY KEY,
				entity_type VARCHAR(50) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				title TEXT NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_entity ON crm_tasks(entity_type, entity_id);
		`,
	}
}
