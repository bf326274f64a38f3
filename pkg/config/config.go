package config

import (
	"os"
	"strconv"
)

// Env selects the target deployment environment.
type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

const (
	// TimestampFormat is the wire format for all timestamps handled by the
	// planner, the watermark store and the load engine.
	TimestampFormat = "2006-01-02T15:04:05"

	// DefaultTimezone applies when a table declares no timezone of its own.
	DefaultTimezone = "Europe/Berlin"

	defaultDatabaseNameProd = "sources"
	defaultDatabaseNameDev  = "sources_dev"
)

// GetEnv returns the current environment from APP_ENV, defaulting to dev.
func GetEnv() Env {
	if os.Getenv("APP_ENV") == string(EnvProd) {
		return EnvProd
	}
	return EnvDev
}

// SetEnv overrides APP_ENV for the current process.
func SetEnv(env Env) {
	os.Setenv("APP_ENV", string(env))
}

// IsProd reports whether the current environment is prod.
func IsProd() bool {
	return GetEnv() == EnvProd
}

// DatabaseName returns the warehouse database targeted by the current
// environment. Overridable via DATABASE_NAME_PROD / DATABASE_NAME_DEV.
func DatabaseName() string {
	if IsProd() {
		if name := os.Getenv("DATABASE_NAME_PROD"); name != "" {
			return name
		}
		return defaultDatabaseNameProd
	}
	if name := os.Getenv("DATABASE_NAME_DEV"); name != "" {
		return name
	}
	return defaultDatabaseNameDev
}

// DatabaseStage returns the named stage used in COPY statements,
// default "public.stage".
func DatabaseStage() string {
	if stage := os.Getenv("DATABASE_STAGE"); stage != "" {
		return stage
	}
	return "public.stage"
}

// TablesPath returns the catalog document location. The TABLES_YAML_PATH
// variable wins over the fallback used in the packaged runtime.
func TablesPath() string {
	if path := os.Getenv("TABLES_YAML_PATH"); path != "" {
		return path
	}
	return "tables.yaml"
}

// StageBucket returns the object-storage bucket holding staged files for the
// current environment.
func StageBucket() string {
	if bucket := os.Getenv("STAGE_BUCKET"); bucket != "" {
		return bucket
	}
	return "stagelift-staging-" + string(GetEnv())
}

// WorkerTimeoutMillis returns the total worker time budget used for
// progress reporting. Defaults to 900s, the Lambda maximum.
func WorkerTimeoutMillis() int64 {
	if v := os.Getenv("AWS_LAMBDA_TIMEOUT"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			return ms
		}
	}
	return 900_000
}
