// Command mediavault is the command line client for a MediaVault server:
// upload files, browse and manage the vault, and mint development tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/mediavault/internal/client"
	"github.com/dharsanguruparan/mediavault/internal/logger"
)

// errSomeFailed makes the process exit non-zero without printing twice.
var errSomeFailed = errors.New("some uploads failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(viper.New()).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errSomeFailed) {
			fmt.Fprintf(os.Stderr, "mediavault: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mediavault",
		Short: "MediaVault command line client",
		Long: `mediavault talks to a MediaVault server. Files are sent straight to object
storage through presigned URLs; the server only ever sees metadata.

Settings come from flags, MEDIAVAULT_* environment variables or ~/.mediavault.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadSettings(v)
		},
	}
	flags := cmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "MediaVault server URL")
	flags.String("token", "", "bearer token for the API")
	flags.Bool("verbose", false, "log pipeline details to stderr")
	_ = v.BindPFlag("server", flags.Lookup("server"))
	_ = v.BindPFlag("token", flags.Lookup("token"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))

	cmd.AddCommand(
		newUploadCmd(v),
		newListCmd(v),
		newGetCmd(v),
		newFavoriteCmd(v),
		newDeleteCmd(v),
		newDownloadCmd(v),
		newTokenCmd(),
	)
	return cmd
}

func loadSettings(v *viper.Viper) error {
	v.SetEnvPrefix("MEDIAVAULT")
	v.AutomaticEnv()
	v.SetDefault("ffprobe", "ffprobe")
	v.SetDefault("ffmpeg", "ffmpeg")
	v.SetDefault("concurrency", 1)

	v.SetConfigName(".mediavault")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(filepath.Clean("."))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func newClient(v *viper.Viper) (*client.Client, error) {
	token := v.GetString("token")
	if token == "" {
		return nil, errors.New("no token: pass --token or set MEDIAVAULT_TOKEN")
	}
	return client.New(v.GetString("server"), token, nil), nil
}

func newLogger(v *viper.Viper) *zap.Logger {
	if !v.GetBool("verbose") {
		return zap.NewNop()
	}
	l, err := logger.New(logger.DevelopmentMode)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
