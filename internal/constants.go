package internal

const (
	DotEnvPath         = "./.env"
	MigrationsDir      = "migrations"
	DBTimestampLayout  = "2006-01-02 15:04:05"
	DefaultScriptPath  = ".multi-ci.yml"
	WorkingCopyLock    = ".multi-ci.lock"
	TriggerManual      = "manual"
	TriggerPoll        = "poll"
	TriggerNudge       = "nudge"
	ReasonConfigError  = "config_error"
	ReasonExecError    = "exec_error"
	ReasonCancelled    = "cancelled"
	ReasonInterrupted  = "interrupted_by_restart"
	ReasonStepFailed   = "step_failed"
	ReasonStepTimedOut = "step_timed_out"
)
