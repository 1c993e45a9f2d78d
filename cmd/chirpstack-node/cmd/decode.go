package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/crypto"
)

var (
	decodeBase64 bool
	decodeUplink bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [frame]",
	Short: "Validate and decrypt the given (hex encoded) downlink frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := parseBytes(args[0], decodeBase64)
		if err != nil {
			return err
		}

		dir := crypto.Downlink
		if decodeUplink {
			dir = crypto.Uplink
		}

		fPort, payload, err := decodeFrame(context.Background(), config.C, dir, b)
		if err != nil {
			return errors.Wrap(err, "decode frame error")
		}

		mhdr, mic, err := frameHeader(b)
		if err != nil {
			return errors.Wrap(err, "inspect frame error")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "m_type:  %s\n", mhdr.MType)
		fmt.Fprintf(out, "major:   %s\n", mhdr.Major)
		fmt.Fprintf(out, "mic:     %s\n", mic)
		fmt.Fprintf(out, "f_cnt:   %d\n", uint16(b[6])|uint16(b[7])<<8)
		fmt.Fprintf(out, "f_port:  %d\n", fPort)
		fmt.Fprintf(out, "hex:     %s\n", hex.EncodeToString(payload))
		fmt.Fprintf(out, "payload: %q\n", payload)
		return nil
	},
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeBase64, "base64", false, "frame is base64 encoded")
	decodeCmd.Flags().BoolVar(&decodeUplink, "uplink", false, "frame is an uplink frame (e.g. produced by encode)")
}
