package logger

import "sync"

// named holds loggers by name for packages that are handed no logger.
var named sync.Map

// Register stores l under name.
func Register(name string, l *Logger) {
	named.Store(name, l)
}

// RegisterComponents stores base tagged with each component name under that name.
func RegisterComponents(base *Logger, names ...string) {
	for _, name := range names {
		Register(name, base.WithComponent(name))
	}
}

// Registered reports whether a logger is stored under name.
func Registered(name string) bool {
	_, ok := named.Load(name)
	return ok
}

// Get returns the logger stored under name, or the global logger tagged with
// name as its component.
func Get(name string) *Logger {
	if l, ok := named.Load(name); ok {
		return l.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}
