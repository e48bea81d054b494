package correlation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind names the enrichment a request asks for.
type Kind string

const (
	KindUser        Kind = "user"
	KindInteraction Kind = "interaction"
	KindComment     Kind = "comment"
	KindBookmark    Kind = "bookmark"
)

func (k Kind) String() string { return string(k) }

// ID is a correlation id: "<kind>-<uuid>".
type ID string

// NewID returns a fresh id for kind. Uniqueness comes from the 122 random
// bits of a v4 uuid, so concurrent and distributed producers never collide.
func NewID(kind Kind) ID {
	return ID(string(kind) + "-" + uuid.NewString())
}

// Kind returns the kind prefix, or "" for a malformed id.
func (id ID) Kind() Kind {
	k, _, ok := strings.Cut(string(id), "-")
	if !ok {
		return ""
	}
	return Kind(k)
}

func (id ID) String() string { return string(id) }

const dataKeySep = "_data_"

// DataKey is the result-store key a responder writes its answer under.
func DataKey(kind Kind, id ID) string {
	return fmt.Sprintf("%s%s%s", kind, dataKeySep, id)
}

// ParseDataKey is the inverse of DataKey.
func ParseDataKey(key string) (Kind, ID, bool) {
	k, rest, ok := strings.Cut(key, dataKeySep)
	if !ok || k == "" || rest == "" {
		return "", "", false
	}
	id := ID(rest)
	if id.Kind() != Kind(k) {
		return "", "", false
	}
	return Kind(k), id, true
}
