package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE submissions (
				id UUID PRIMARY KEY,
				inputs JSONB NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
				components JSONB NOT NULL DEFAULT '{}',
				component_status JSONB NOT NULL DEFAULT '{}',
				output JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_submissions_status ON submissions(status);
			CREATE INDEX idx_submissions_created_at ON submissions(created_at);
			CREATE INDEX idx_submissions_updated_at ON submissions(updated_at);
		`,
	}
}
