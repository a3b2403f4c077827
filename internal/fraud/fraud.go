// Package fraud derives correlated-identity signals for a transfer.
package fraud

import "github.com/omega-realm/economy/internal/models"

// Signals are advisory; they never block a transfer.
type Signals struct {
	SameDevice  bool
	SameAddress bool
}

// Any reports whether at least one signal fired.
func (s Signals) Any() bool {
	return s.SameDevice || s.SameAddress
}

// Evaluate compares the source account's device with the destination's, and
// the source's last known address with the origin of the request. Both are
// plain equality: two accounts with no recorded fingerprint share a device.
func Evaluate(source, destination *models.Account, origin string) Signals {
	return Signals{
		SameDevice:  source.DeviceFingerprint == destination.DeviceFingerprint,
		SameAddress: source.LastKnownAddress == origin,
	}
}

// Apply copies the signals onto a ledger record. The fraud flag itself is
// left for review tooling.
func (s Signals) Apply(record *models.LedgerRecord) {
	record.SameDevice = s.SameDevice
	record.SameAddress = s.SameAddress
}
