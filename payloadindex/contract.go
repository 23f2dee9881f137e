package payloadindex

// MessageHasPayloads reports whether name has at least one direct or
// transitive payload field. O(1).
func (idx *Index) MessageHasPayloads(name string) bool {
	_, ok := idx.withPayloads[name]
	return ok
}

// TypesWithPayloads returns every message type name the index classified
// as payload-bearing (spec's "types-with-payloads" set), in no particular
// order. Intended for operational tooling (e.g. a descriptor-validation
// report), not the rewrite hot path.
func (idx *Index) TypesWithPayloads() []string {
	out := make([]string, 0, len(idx.withPayloads))
	for name := range idx.withPayloads {
		out = append(out, name)
	}
	return out
}

// IsPayload reports whether (name, fieldNumber) is a direct payload field
// (its submessage type is the sentinel P or Ps). O(1).
func (idx *Index) IsPayload(name string, fieldNumber int32) bool {
	_, ok := idx.direct[fieldKey{message: name, number: fieldNumber}]
	return ok
}

// HasTransitivePayloads reports whether (name, fieldNumber) is a
// submessage field whose descendant graph contains a payload, without
// itself being direct. O(1).
func (idx *Index) HasTransitivePayloads(name string, fieldNumber int32) bool {
	_, ok := idx.transitive[fieldKey{message: name, number: fieldNumber}]
	return ok
}

// TransitiveTargetType returns the submessage type the rewriter should
// recurse into for a transitive field, or "" if the field isn't
// transitive. O(1).
func (idx *Index) TransitiveTargetType(name string, fieldNumber int32) (string, bool) {
	target, ok := idx.transitive[fieldKey{message: name, number: fieldNumber}]
	return target, ok
}

// GetTransformableFieldNumbers returns every field number of name that is
// either direct or transitive. This is the one non-O(1) lookup, and it is
// not O(fields-of-type) either: it scans every entry of the index's two
// maps for those belonging to name rather than maintaining a per-message
// reverse index, so its cost grows with the total number of indexed fields.
func (idx *Index) GetTransformableFieldNumbers(name string) map[int32]struct{} {
	out := make(map[int32]struct{})
	for key := range idx.direct {
		if key.message == name {
			out[key.number] = struct{}{}
		}
	}
	for key := range idx.transitive {
		if key.message == name {
			out[key.number] = struct{}{}
		}
	}
	return out
}
