package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clinscribe/internal/bootstrap"
	"clinscribe/internal/export"
)

func newArchiveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived consultations",
	}

	cmd.AddCommand(
		newArchiveListCmd(v),
		newArchiveShowCmd(v),
		newArchiveExportCmd(v),
		newArchiveDeleteCmd(v),
	)
	return cmd
}

func openArchive(v *viper.Viper) (*bootstrap.Services, error) {
	return bootstrap.Base(v)
}

func newArchiveListCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived consultations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := openArchive(v)
			if err != nil {
				return err
			}
			defer services.Close()

			drafts, err := services.Archive.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, drafts)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tCREATED\tPATIENT\tAPPROVED")
			for _, draft := range drafts {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n",
					draft.ID,
					draft.CreatedAt.Local().Format("2006-01-02 15:04"),
					draft.Demographics.Name,
					draft.Approved,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newArchiveShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one archived consultation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := openArchive(v)
			if err != nil {
				return err
			}
			defer services.Close()

			draft, err := services.Archive.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, draft)
		},
	}
}

func newArchiveExportCmd(v *viper.Viper) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Render one archived consultation as Markdown or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := openArchive(v)
			if err != nil {
				return err
			}
			defer services.Close()

			draft, err := services.Archive.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if output != "" {
				return export.WriteFile(output, draft, f)
			}
			data, err := export.Render(draft, f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newArchiveDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one archived consultation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := openArchive(v)
			if err != nil {
				return err
			}
			defer services.Close()

			if err := services.Archive.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
