package nostr

const (
	KindZapRequest        int = 9734
	KindZap               int = 9735
	KindNWCWalletInfo     int = 13194
	KindNWCWalletRequest  int = 23194
	KindNWCWalletResponse int = 23195
)
