package nostr

import "slices"

type Filter struct {
	IDs     []string   `json:"ids,omitempty"`
	Kinds   []int      `json:"kinds,omitempty"`
	Authors []string   `json:"authors,omitempty"`
	Since   *Timestamp `json:"since,omitempty"`
	Until   *Timestamp `json:"until,omitempty"`
	Limit   int        `json:"limit,omitempty"`
	TagE    []string   `json:"#e,omitempty"`
	TagP    []string   `json:"#p,omitempty"`
}

func (ef Filter) Matches(event *Event) bool {
	if event == nil {
		return false
	}

	if ef.IDs != nil && !slices.Contains(ef.IDs, event.ID) {
		return false
	}
	if ef.Kinds != nil && !slices.Contains(ef.Kinds, event.Kind) {
		return false
	}
	if ef.Authors != nil && !slices.Contains(ef.Authors, event.PubKey) {
		return false
	}
	if ef.TagE != nil && !event.Tags.ContainsAny("e", ef.TagE) {
		return false
	}
	if ef.TagP != nil && !event.Tags.ContainsAny("p", ef.TagP) {
		return false
	}
	if ef.Since != nil && event.CreatedAt < *ef.Since {
		return false
	}
	if ef.Until != nil && event.CreatedAt > *ef.Until {
		return false
	}

	return true
}
