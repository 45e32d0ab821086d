package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/heavy-aggregator/internal/app"
	"github.com/JakeFAU/heavy-aggregator/internal/upload"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload existing output files with the configured provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			u, err := upload.New(cmd.Context(), app.UploadConfig(e.cfg.Upload))
			if err != nil {
				return err
			}
			if u == nil {
				return errors.New("upload.provider is none")
			}
			if c, ok := u.(io.Closer); ok {
				defer func() { err = errors.Join(err, c.Close()) }()
			}
			if failed := upload.All(cmd.Context(), u, args, e.logger); len(failed) > 0 {
				return fmt.Errorf("%d of %d uploads failed", len(failed), len(args))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d files via %s\n", len(args), u.Provider())
			return nil
		},
	}
}
