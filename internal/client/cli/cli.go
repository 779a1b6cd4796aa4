// Package cli команды клиента docsync: локальные операции над документами,
// управление набором синхронизируемых документов и фоновая синхронизация.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/docsync/internal/client/iocli"
	"github.com/iudanet/docsync/internal/client/syncer"
	"github.com/iudanet/docsync/internal/logging"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
	"github.com/iudanet/docsync/internal/validation"
)

// BuildInfo версия сборки, задается через ldflags
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// App состояние одного запуска docsync
type App struct {
	io        iocli.IO
	stderr    io.Writer
	v         *viper.Viper
	level     *slog.LevelVar
	logger    *slog.Logger
	logCloser io.Closer
	build     BuildInfo
}

// New создает приложение, печатающее результаты в stdio
func New(stdio iocli.IO, build BuildInfo) *App {
	return &App{
		io:     stdio,
		stderr: os.Stderr,
		v:      viper.New(),
		level:  new(slog.LevelVar),
		logger: slog.New(slog.DiscardHandler),
		build:  build,
	}
}

// Execute выполняет команду, заданную аргументами
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.RootCommand()
	root.SetArgs(args)
	defer a.closeLog()
	return root.ExecuteContext(ctx)
}

// RootCommand возвращает дерево команд docsync
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "docsync",
		Short: "Offline-first document synchronization client",
		Long: `docsync keeps a local copy of selected documents, accepts writes while offline
and synchronizes them with the docsync server. Every flag can also be set with
an environment variable DOCSYNC_<FLAG> (e.g. DOCSYNC_LOG_LEVEL=debug) or in the
YAML file given by --config.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
	}
	root.SetOut(a.io)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("server", "http://localhost:8080", "Server URL")
	flags.String("db", "docsync.db", "Path to local database")
	flags.String("token", "", "Access token issued by 'docsync-server token'")
	flags.String("instance", syncer.DefaultInstanceKey, "Instance key of the sync state")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write logs to this file with rotation instead of stderr")
	flags.String("log-format", "auto", "Log format: auto, text or json")

	root.AddCommand(
		a.runCommand(),
		a.passCommand(),
		a.statusCommand(),
		a.syncCommand(),
		a.desyncCommand(),
		a.resumeCommand(),
		a.insertCommand(),
		a.updateCommand(),
		a.deleteCommand(),
		a.findCommand(),
		a.countCommand(),
		a.versionCommand(),
	)
	return root
}

// initConfig собирает конфигурацию из флагов, переменных окружения, .env и файла
func (a *App) initConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix("docsync")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  a.v.GetString("log-level"),
		File:   a.v.GetString("log-file"),
		Format: a.v.GetString("log-format"),
	}, a.level, a.stderr)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logCloser = closer
	return nil
}

func (a *App) closeLog() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

// parseNamespace разбирает и проверяет аргумент вида database.collection
func parseNamespace(s string) (models.Namespace, error) {
	ns, err := models.ParseNamespace(s)
	if err != nil {
		return models.Namespace{}, err
	}
	if err := validation.ValidateNamespace(ns); err != nil {
		return models.Namespace{}, err
	}
	return ns, nil
}

// parseDocument разбирает JSON объект из аргумента команды.
// Пустая строка означает пустой документ (фильтр по всем документам).
func parseDocument(s string) (models.Document, error) {
	if strings.TrimSpace(s) == "" {
		return models.Document{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON document %q: %w", s, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid JSON document %q: expected an object", s)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON document %q: unexpected data after object", s)
	}
	return query.NormalizeDocument(doc), nil
}

// optionalDocument разбирает необязательный аргумент args[i]
func optionalDocument(args []string, i int) (models.Document, error) {
	if len(args) <= i {
		return models.Document{}, nil
	}
	return parseDocument(args[i])
}

// printJSON печатает значение как форматированный JSON
func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.io)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
