// Package payloadindex builds the Payload Field Index (C2): for every
// message type reachable from the configured package prefix, which fields
// carry payload data directly, and which carry it transitively through a
// chain of submessages.
package payloadindex

import (
	"strings"

	"github.com/fireflycore/payload-proxy/descriptor"
)

// Sentinel type names. The payload sentinels (P and Ps) have no default
// here: callers pass their fully-qualified names in
// Options.PayloadTypeName / Options.PayloadsWrapperTypeName.
const (
	// DefaultAttributesContainerSuffix names the "indexed attributes
	// container" (SA) sentinel type by its simple name, qualified with
	// whatever package the scanned message set uses.
	DefaultAttributesContainerSuffix = "SearchAttributes"
)

type fieldKey struct {
	message string
	number  int32
}

// Options configures how the index classifies fields.
type Options struct {
	// ScanPackagePrefix restricts indexing to messages whose package name
	// starts with this prefix (e.g. "acme.workflow."). Messages outside
	// the prefix are never classified, even if referenced from within it;
	// a field pointing at such a message is simply neither direct nor
	// transitive.
	ScanPackagePrefix string
	// PayloadTypeName is the fully-qualified name of the singular payload
	// sentinel type (P in the spec).
	PayloadTypeName string
	// PayloadsWrapperTypeName is the fully-qualified name of the repeated
	// payload wrapper sentinel type (Ps in the spec): a message with a
	// single repeated field of PayloadTypeName at field number 1.
	PayloadsWrapperTypeName string
	// AttributesContainerTypeName is the fully-qualified name of the
	// indexed-attributes container sentinel type (SA in the spec).
	AttributesContainerTypeName string
	// ExcludeAttributesContainer, when true, treats
	// AttributesContainerTypeName as having no payload fields, which
	// transitively suppresses any field whose only path to a payload runs
	// through it.
	ExcludeAttributesContainer bool
}

// Index is the built, read-only Payload Field Index.
type Index struct {
	direct       map[fieldKey]struct{}
	transitive   map[fieldKey]string // field -> transitive target type name
	withPayloads map[string]struct{}
}

// Build walks every message in allMessages (nested messages appear there
// under their own fully-qualified names) whose name begins with
// opts.ScanPackagePrefix, classifying each field. store is not consulted.
func Build(store *descriptor.Store, allMessages map[string]*descriptor.MessageDescriptor, opts Options) *Index {
	idx := &Index{
		direct:       make(map[fieldKey]struct{}),
		transitive:   make(map[fieldKey]string),
		withPayloads: make(map[string]struct{}),
	}

	reach := newReachability(allMessages, opts)

	for name, md := range allMessages {
		if opts.ScanPackagePrefix != "" && !strings.HasPrefix(name, opts.ScanPackagePrefix) {
			continue
		}
		if opts.ExcludeAttributesContainer && name == opts.AttributesContainerTypeName {
			// The container itself is suppressed; it is never indexed as
			// a payload-bearing type, regardless of its own fields.
			continue
		}

		hasAny := false
		for _, f := range md.Fields {
			if f.LogicalKind != descriptor.FieldSubmessage {
				continue
			}
			key := fieldKey{message: name, number: f.Number}

			switch {
			case f.MessageName == opts.PayloadTypeName || f.MessageName == opts.PayloadsWrapperTypeName:
				idx.direct[key] = struct{}{}
				hasAny = true
			case opts.ExcludeAttributesContainer && f.MessageName == opts.AttributesContainerTypeName:
				// Suppressed: contributes neither direct nor transitive.
			case reach.hasPayload(f.MessageName, map[string]bool{}):
				idx.transitive[key] = f.MessageName
				hasAny = true
			}
		}
		if hasAny {
			idx.withPayloads[name] = struct{}{}
		}
	}

	return idx
}

// reachability answers "does this message type's descendant graph contain
// a direct payload field?" with cycle-safe memoization: a type currently on
// the call stack contributes false to its own subquery.
type reachability struct {
	messages map[string]*descriptor.MessageDescriptor
	opts     Options
	memo     map[string]bool
}

func newReachability(messages map[string]*descriptor.MessageDescriptor, opts Options) *reachability {
	return &reachability{messages: messages, opts: opts, memo: make(map[string]bool)}
}

func (r *reachability) hasPayload(typeName string, onStack map[string]bool) bool {
	if v, ok := r.memo[typeName]; ok {
		return v
	}
	if onStack[typeName] {
		// Break the cycle: a type already being explored contributes
		// false to its own subquery rather than recursing forever.
		return false
	}
	if r.opts.ExcludeAttributesContainer && typeName == r.opts.AttributesContainerTypeName {
		return false
	}
	if r.opts.ScanPackagePrefix != "" && !strings.HasPrefix(typeName, r.opts.ScanPackagePrefix) {
		return false
	}

	md, ok := r.messages[typeName]
	if !ok {
		return false
	}

	onStack[typeName] = true
	found := false
	for _, f := range md.Fields {
		if f.LogicalKind != descriptor.FieldSubmessage {
			continue
		}
		if f.MessageName == r.opts.PayloadTypeName || f.MessageName == r.opts.PayloadsWrapperTypeName {
			found = true
			break
		}
		if r.opts.ExcludeAttributesContainer && f.MessageName == r.opts.AttributesContainerTypeName {
			continue
		}
		if r.hasPayload(f.MessageName, onStack) {
			found = true
			break
		}
	}
	delete(onStack, typeName)

	// A true result is always sound to cache: it names a real path to a
	// payload. A false result computed while other types were on the stack
	// may only reflect a cycle that was cut short (A -> B -> A where B has
	// the payload), so false is cached only for a top-level query.
	if found || len(onStack) == 0 {
		r.memo[typeName] = found
	}
	return found
}
