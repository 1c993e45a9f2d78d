package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/storage"
	"github.com/brocaar/lorawan"
)

var resetFCntCmd = &cobra.Command{
	Use:   "reset-fcnt",
	Short: "Delete the stored uplink frame-counter of the configured node (requires Redis)",
	Long: `Delete the stored uplink frame-counter of the configured node.
The next start of the node will use the node.f_cnt_up value from the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storage.Setup(config.C); err != nil {
			return errors.Wrap(err, "setup storage error")
		}
		defer storage.Close()

		return resetFCntUp(context.Background(), cmd.OutOrStdout(), config.C.Node.DevAddr)
	},
}

func resetFCntUp(ctx context.Context, w io.Writer, devAddr lorawan.DevAddr) error {
	err := storage.DeleteFCntUp(ctx, devAddr)
	if err == storage.ErrDoesNotExist {
		fmt.Fprintf(w, "no uplink frame-counter stored for %s\n", devAddr)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "delete uplink frame-counter error")
	}

	fmt.Fprintf(w, "uplink frame-counter of %s deleted\n", devAddr)
	return nil
}
