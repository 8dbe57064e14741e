package store

import (
	"encoding/json"
	"fmt"
)

// Visibility is the tri-state carried by every entity and cross-link:
// Public rows are visible to everyone, Private rows were rejected and are
// visible only to moderators (and the author for their own rows), Pending
// rows await a moderator decision. Persisted as a nullable boolean: TRUE,
// FALSE, NULL.
type Visibility int

const (
	VisibilityPending Visibility = iota
	VisibilityPublic
	VisibilityPrivate
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityPrivate:
		return "private"
	default:
		return "pending"
	}
}

// Bool maps the tri-state onto the persisted nullable boolean.
func (v Visibility) Bool() *bool {
	switch v {
	case VisibilityPublic:
		b := true
		return &b
	case VisibilityPrivate:
		b := false
		return &b
	default:
		return nil
	}
}

func VisibilityFromBool(b *bool) Visibility {
	switch {
	case b == nil:
		return VisibilityPending
	case *b:
		return VisibilityPublic
	default:
		return VisibilityPrivate
	}
}

// ParseVisibility accepts the wire forms "public", "private" and "pending".
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "public":
		return VisibilityPublic, nil
	case "private":
		return VisibilityPrivate, nil
	case "pending", "":
		return VisibilityPending, nil
	default:
		return VisibilityPending, fmt.Errorf("unknown visibility %q", s)
	}
}

func (v Visibility) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Visibility) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVisibility(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
