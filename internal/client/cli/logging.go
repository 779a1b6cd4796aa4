package cli

import (
	"github.com/fsnotify/fsnotify"

	"github.com/iudanet/docsync/internal/logging"
)

// watchConfig перечитывает уровень логирования при изменении файла конфигурации
func (a *App) watchConfig() {
	if a.v.ConfigFileUsed() == "" {
		return
	}
	a.v.OnConfigChange(a.reloadLogLevel)
	a.v.WatchConfig()
	a.logger.Debug("Watching config file", "file", a.v.ConfigFileUsed())
}

func (a *App) reloadLogLevel(e fsnotify.Event) {
	level, err := logging.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		a.logger.Warn("Ignoring config change", "file", e.Name, "error", err)
		return
	}
	if level == a.level.Level() {
		return
	}
	a.level.Set(level)
	a.logger.Info("Log level changed", "file", e.Name, "level", level.String())
}
