package moderation

// Caller identifies who is driving a workflow action. A zero UserID is an
// anonymous visitor: read-only, public rows only. Any authenticated user
// is a contributor; the Moderator flag grants the full protocol.
type Caller struct {
	UserID    int64
	Name      string
	Moderator bool
	Locked    bool
}

func (c Caller) Anonymous() bool {
	return c.UserID == 0
}

// CanWrite reports whether the caller may submit anything at all. Locked
// accounts keep read access but lose every write path.
func (c Caller) CanWrite() bool {
	return !c.Anonymous() && !c.Locked
}
