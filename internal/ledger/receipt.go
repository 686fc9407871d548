package ledger

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const receiptAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const receiptLength = 10

// GenerateReceipt produces a 10-character receipt id: a base-36 encoding of
// the current millisecond epoch, padded to 10 characters with upper-case
// alphanumerics drawn from a cryptographically seeded source (§4.2).
func GenerateReceipt() string {
	millis := time.Now().UnixMilli()
	base36 := strings.ToUpper(strconv.FormatInt(millis, 36))
	if len(base36) >= receiptLength {
		return base36[len(base36)-receiptLength:]
	}

	pad := make([]byte, receiptLength-len(base36))
	for i := range pad {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(receiptAlphabet))))
		if err != nil {
			// crypto/rand failure is effectively unreachable on supported
			// platforms; fall back to a fixed character rather than panic.
			pad[i] = receiptAlphabet[0]
			continue
		}
		pad[i] = receiptAlphabet[n.Int64()]
	}
	return string(pad) + base36
}
