package frame

import (
	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
)

// Inspect unmarshals the given frame into a lorawan.PHYPayload. The payload
// is not decrypted and the MIC is not validated.
func Inspect(b []byte) (lorawan.PHYPayload, error) {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(b); err != nil {
		return phy, errors.Wrap(err, "unmarshal phypayload error")
	}
	return phy, nil
}
