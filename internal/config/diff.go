package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is the only change applied without a restart.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections that changed and only
	// take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if oldSrv != newSrv {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Analysis != new.Analysis {
		d.RestartRequired = append(d.RestartRequired, "analysis")
	}
	return d
}
