package nostr

import "slices"

type Tag []string

func (tag Tag) Key() string {
	if len(tag) > 0 {
		return tag[0]
	}
	return ""
}

func (tag Tag) Value() string {
	if len(tag) > 1 {
		return tag[1]
	}
	return ""
}

type Tags []Tag

// Find returns the first tag with the given name that carries a value.
func (tags Tags) Find(key string) Tag {
	for _, v := range tags {
		if len(v) >= 2 && v[0] == key {
			return v
		}
	}
	return nil
}

// FindWithValue is like Find but also requires the value to match.
func (tags Tags) FindWithValue(key, value string) Tag {
	for _, v := range tags {
		if len(v) >= 2 && v[0] == key && v[1] == value {
			return v
		}
	}
	return nil
}

func (tags Tags) ContainsAny(tagName string, values []string) bool {
	for _, tag := range tags {
		if len(tag) < 2 {
			continue
		}
		if tag[0] != tagName {
			continue
		}
		if slices.Contains(values, tag[1]) {
			return true
		}
	}
	return false
}

// marshalTo appends the JSON form of the tag list to dst, escaping every
// item the same way event content is escaped.
func (tags Tags) marshalTo(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tag := range tags {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		for j, item := range tag {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = escapeString(dst, item)
		}
		dst = append(dst, ']')
	}
	dst = append(dst, ']')
	return dst
}
