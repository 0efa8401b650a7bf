package secrets

// Rule describes one kind of credential.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords, when set, must appear somewhere in the text (case-insensitive)
	// for the rule to run.
	Keywords []string
	// Group selects the capture group to redact. 0 redacts the whole match,
	// which keeps "password=" style labels readable when a group is chosen.
	Group int
}

// DefaultRules returns the built-in rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key ID",
			Pattern:     `\b(?:AKIA|ASIA|AGPA|AIDA|AROA|ANPA)[A-Z0-9]{16}\b`,
		},
		{
			ID:          "aws-secret-access-key",
			Description: "AWS secret access key",
			Pattern:     `(?i)aws_secret_access_key\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})`,
			Group:       1,
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `\b(?:gh[pousr]_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,})\b`,
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{20,}`,
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `\bsk-(?:proj-)?[A-Za-z0-9_\-]{32,}`,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)\bbearer\s+([A-Za-z0-9_\-\.=]{20,})`,
			Group:       1,
		},
		{
			ID:          "kubeconfig-token",
			Description: "Kubeconfig or service account token",
			Pattern:     `(?i)(?:^|\s)(?:token|client-key-data|client-certificate-data):\s*['"]?([A-Za-z0-9_\-\.=/+]{20,})`,
			Keywords:    []string{"token", "-data"},
			Group:       1,
		},
		{
			ID:          "docker-auth",
			Description: "Registry auth in docker config",
			Pattern:     `"auth"\s*:\s*"([A-Za-z0-9+/=]{16,})"`,
			Group:       1,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `\beyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
		},
		{
			ID:          "connection-string",
			Description: "Connection URL with credentials",
			Pattern:     `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp|nats)://[^:\s/]+:([^@\s]+)@`,
			Group:       1,
		},
		{
			ID:          "password-assignment",
			Description: "Password or secret assignment",
			Pattern:     `(?i)\b(?:password|passwd|secret|api[_-]?key)\s*[:=]\s*['"]?([^\s'",]{8,})`,
			Keywords:    []string{"pass", "secret", "key"},
			Group:       1,
		},
		{
			ID:          "private-key",
			Description: "PEM private key",
			Pattern:     `-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`,
		},
	}
}
