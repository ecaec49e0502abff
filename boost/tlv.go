package boost

import "encoding/hex"

// TLVPodcastMetadata is the TLV record type carrying podcast/episode
// attribution on a keysend payment (the bLIP-10 convention podcast apps
// follow).
const TLVPodcastMetadata = 7629169

// Metadata is the attribution blob attached to a boost payment.
type Metadata struct {
	Podcast        string `json:"podcast,omitempty"`
	Episode        string `json:"episode,omitempty"`
	Action         string `json:"action,omitempty"` // "boost" or "stream"
	Timestamp      int64  `json:"ts,omitempty"`     // playback position, seconds
	AppName        string `json:"app_name,omitempty"`
	SenderName     string `json:"sender_name,omitempty"`
	Message        string `json:"message,omitempty"`
	ValueMsatTotal int64  `json:"value_msat_total,omitempty"`
}

// TLVValue returns the hex-encoded JSON form this metadata takes inside
// a tlv_records entry of type TLVPodcastMetadata.
func (m Metadata) TLVValue() (string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(payload), nil
}
