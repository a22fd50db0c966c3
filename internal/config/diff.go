package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LessonChanged is true if any lesson setting changed. Lesson settings
	// apply to sessions started after the reload; running sessions keep
	// the settings they were created with.
	LessonChanged bool
	NewLesson     LessonConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Lesson != new.Lesson {
		d.LessonChanged = true
		d.NewLesson = new.Lesson
	}

	return d
}
