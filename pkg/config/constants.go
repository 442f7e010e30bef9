package config

// EnvPrefix is empty because every variable carries the full AGENTDESK_ name
// in its envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	PolarEnvSandbox    = "sandbox"
	PolarEnvProduction = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvDBDSN     = "AGENTDESK_DB_DSN"
	EnvPublicURL = "AGENTDESK_PUBLIC_URL"
	EnvPolarEnv  = "AGENTDESK_POLAR_ENV"
)
