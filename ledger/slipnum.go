// slipnum.go - Identifier and slip number generation.
//
// Slip numbers are human-facing and unique across the system:
// <type prefix>-<yyyymmdd>-<hhmmss>-<random>. The time token keeps them
// sortable and readable; the uuid fragment makes collisions under
// concurrent creation a non-issue.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var slipPrefixes = map[SlipType]string{
	SlipReceive:  "RCV",
	SlipIssue:    "ISS",
	SlipReturn:   "RET",
	SlipTransfer: "TRF",
	SlipMaint:    "MNT",
}

// NewSlipNumber generates a unique slip number for the given type.
func NewSlipNumber(t SlipType, at time.Time) string {
	prefix, ok := slipPrefixes[t]
	if !ok {
		prefix = "SLP"
	}
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102-150405"), strings.ToUpper(suffix))
}

// newEventID returns an opaque unique ID for rows the engine creates
// (lines, movements, audit events, signatures).
func newEventID() string {
	return uuid.NewString()
}
