// Package cli команды docsync-server: запуск сервера документов и выпуск токенов доступа.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/docsync/internal/logging"
)

// BuildInfo версия сборки, задается через ldflags
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// App состояние одного запуска docsync-server
type App struct {
	out       io.Writer
	stderr    io.Writer
	v         *viper.Viper
	level     *slog.LevelVar
	logger    *slog.Logger
	logCloser io.Closer
	build     BuildInfo
}

// New создает приложение, печатающее результаты в out
func New(out io.Writer, build BuildInfo) *App {
	return &App{
		out:    out,
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
	defer func() {
		if a.logCloser != nil {
			_ = a.logCloser.Close()
		}
	}()
	return root.ExecuteContext(ctx)
}

// RootCommand возвращает дерево команд docsync-server
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "docsync-server",
		Short: "Document server for docsync clients",
		Long: `docsync-server stores documents and streams their changes to docsync clients.
Every flag can also be set with an environment variable DOCSYNC_SERVER_<FLAG>
(e.g. DOCSYNC_SERVER_JWT_SECRET) or in the YAML file given by --config.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
	}
	root.SetOut(a.out)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write logs to this file with rotation instead of stderr")
	flags.String("log-format", "auto", "Log format: auto, text or json")

	root.AddCommand(a.serveCommand(), a.tokenCommand(), a.versionCommand())
	return root
}

func (a *App) initConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix("docsync_server")
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

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "DocSync Server\n")
			_, _ = fmt.Fprintf(out, "Version:    %s\n", a.build.Version)
			_, _ = fmt.Fprintf(out, "Build Date: %s\n", a.build.BuildDate)
			_, _ = fmt.Fprintf(out, "Git Commit: %s\n", a.build.GitCommit)
		},
	}
}
