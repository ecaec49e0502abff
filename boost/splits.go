// Package boost carries the Podcasting 2.0 value bits that sit above the
// wallet client: sat/msat conversion, value-split allocation, the
// podcast TLV metadata record, and metaBoost webhook reporting.
package boost

// ToMsat converts satoshis to the millisatoshi wire unit.
func ToMsat(sats int64) int64 { return sats * 1000 }

// ToSats floors millisatoshis down to whole satoshis. Floor division is
// used everywhere amounts are split so allocations never overshoot.
func ToSats(msat int64) int64 {
	if msat < 0 {
		return 0
	}
	return msat / 1000
}

// Recipient is one destination from a feed's value block. Fee is carried
// through from the block but does not change the split math.
type Recipient struct {
	Name    string `json:"name"`
	Address string `json:"address"` // node pubkey or lightning address
	Type    string `json:"type"`    // "node" or "lnaddress"
	Split   int64  `json:"split"`   // relative share, not a percentage
	Fee     int64  `json:"fee,omitempty"`
}

// Allocation is a recipient with its computed share of a payment.
type Allocation struct {
	Recipient
	AmountSats int64 `json:"amount"`
}

// Allocate divides totalSats among recipients proportionally to their
// Split values, floor-dividing each share. Whatever remainder the floor
// divisions leave goes to the first recipient, so the allocations always
// sum to exactly totalSats. Recipients with no splits at all share
// equally.
func Allocate(totalSats int64, recipients []Recipient) []Allocation {
	if len(recipients) == 0 || totalSats <= 0 {
		return nil
	}

	var totalSplit int64
	for _, r := range recipients {
		totalSplit += r.Split
	}

	allocations := make([]Allocation, len(recipients))
	var allocated int64
	for i, r := range recipients {
		var amount int64
		if totalSplit == 0 {
			amount = totalSats / int64(len(recipients))
		} else {
			amount = totalSats * r.Split / totalSplit
		}
		allocations[i] = Allocation{Recipient: r, AmountSats: amount}
		allocated += amount
	}

	allocations[0].AmountSats += totalSats - allocated
	return allocations
}
