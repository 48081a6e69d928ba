package logger

import "sync"

// named maps component names such as "flow", "redissource" or "httpapi" to
// their loggers.
var named sync.Map

// Register installs l as the logger Get returns for name.
func Register(name string, l *Logger) {
	named.Store(name, l)
}

// Get returns the logger registered for name, or the global logger tagged
// with component=name.
func Get(name string) *Logger {
	if l, ok := named.Load(name); ok {
		return l.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}

// RegisterDefaults derives a component logger for each name from the current
// global logger. Call it after Init so the components pick up its level.
func RegisterDefaults(names ...string) {
	for _, name := range names {
		Register(name, GetGlobalLogger().WithComponent(name))
	}
}
