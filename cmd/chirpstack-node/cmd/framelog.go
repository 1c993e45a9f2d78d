package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/framelog"
	"github.com/brocaar/chirpstack-node/internal/storage"
)

var frameLogCmd = &cobra.Command{
	Use:   "framelog",
	Short: "Follow the frames sent and received by the configured node (requires Redis)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storage.Setup(config.C); err != nil {
			return errors.Wrap(err, "setup storage error")
		}
		defer storage.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		frameLogChan := make(chan framelog.FrameLog)
		go func() {
			for fl := range frameLogChan {
				l := log.WithFields(framelog.Fields(fl))
				if fl.Error != "" {
					l = l.WithField("error", fl.Error)
				}
				l.Info("frame")
			}
		}()

		err := framelog.GetFrameLogForDevice(ctx, config.C.Node.DevAddr, frameLogChan)
		close(frameLogChan)
		return err
	},
}
