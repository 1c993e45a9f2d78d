package cmd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-node/internal/config"
)

var (
	encodeFCnt int
	encodeHex  bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode [payload]",
	Short: "Encode the given application payload as uplink frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := []byte(args[0])
		if encodeHex {
			var err error
			payload, err = parseBytes(args[0], false)
			if err != nil {
				return err
			}
		}

		fCnt := config.C.Node.FCntUp
		if encodeFCnt >= 0 {
			fCnt = uint16(encodeFCnt)
		}

		f, err := encodeFrame(context.Background(), config.C, fCnt, payload)
		if err != nil {
			return errors.Wrap(err, "encode frame error")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "f_cnt:  %d\n", f.FCnt)
		fmt.Fprintf(out, "hex:    %s\n", hex.EncodeToString(f.Bytes))
		fmt.Fprintf(out, "base64: %s\n", base64.StdEncoding.EncodeToString(f.Bytes))
		return nil
	},
}

func init() {
	encodeCmd.Flags().IntVar(&encodeFCnt, "fcnt", -1, "uplink frame-counter to use (default node.f_cnt_up)")
	encodeCmd.Flags().BoolVar(&encodeHex, "hex", false, "payload is hex encoded")
}
