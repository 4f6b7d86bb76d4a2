package ledger

import (
	"strings"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

func randomHex(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:n])
}

func newRedemptionCode() string {
	return "RDM-" + randomHex(10)
}

func newReferralCode() string {
	return randomHex(8)
}
