package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clinscribe/internal/bootstrap"
	"clinscribe/internal/desktop"
	"clinscribe/internal/ports"
)

func newDesktopCmd(opts Options, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "desktop",
		Short: "Open the consultation window",
		RunE: func(_ *cobra.Command, _ []string) error {
			if opts.Assets == nil {
				return errors.New("this binary was built without frontend assets")
			}
			return desktop.Run(func(sink ports.EventSink) (*bootstrap.Services, error) {
				return bootstrap.Build(v, sink)
			}, opts.Assets)
		},
	}

	cmd.Flags().String("mode", "", "consultation mode: unilingual or bilingual")
	cmd.Flags().String("doctor-language", "", "doctor speech language tag")
	cmd.Flags().String("patient-language", "", "patient speech language tag")
	_ = v.BindPFlag("session.mode", cmd.Flags().Lookup("mode"))
	_ = v.BindPFlag("session.doctor_language", cmd.Flags().Lookup("doctor-language"))
	_ = v.BindPFlag("session.patient_language", cmd.Flags().Lookup("patient-language"))
	return cmd
}
