package security

import (
	"crypto/rand"
	"math/big"
)

const (
	deviceIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	deviceIDLength   = 20
)

// NewDeviceID mints a cryptographically random identifier for this device's
// local cache. The id travels with pushed documents so cross-device
// overwrites can be spotted in the sync logs.
func NewDeviceID() (string, error) {
	limit := big.NewInt(int64(len(deviceIDAlphabet)))
	value := make([]byte, deviceIDLength)
	for index := range value {
		position, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		value[index] = deviceIDAlphabet[position.Int64()]
	}
	return string(value), nil
}
