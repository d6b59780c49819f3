package config

// EnvPrefix is passed to envconfig so unprefixed struct tags still resolve.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "STAGEPASS_DB_DSN"
	EnvDBHost = "STAGEPASS_DB_HOST"
	EnvDBUser = "STAGEPASS_DB_USER"
	EnvDBName = "STAGEPASS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
