// Package cli is the clinscribe command tree.
package cli

import (
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// Options carries what the binary embeds.
type Options struct {
	Assets fs.FS
}

func Execute(opts Options) error {
	return NewRootCmd(opts, viper.New()).Execute()
}

// NewRootCmd builds the command tree around v. Persistent flags are bound
// to v so they override the config file and the environment.
func NewRootCmd(opts Options, v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clinscribe",
		Short:         "Clinical documentation assistant: live capture, interpreting and SOAP drafts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ~/.config/clinscribe/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("archive", "", "archive path")
	flags.String("archive-backend", "", "archive backend: file or sqlite")
	_ = v.BindPFlag("config_file", flags.Lookup("config"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("archive.path", flags.Lookup("archive"))
	_ = v.BindPFlag("archive.backend", flags.Lookup("archive-backend"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newDesktopCmd(opts, v),
		newServeCmd(v),
		newArchiveCmd(v),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the clinscribe version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}
