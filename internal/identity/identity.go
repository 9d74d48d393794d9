// Package identity models who owns a cart: the anonymous guest of a device
// session, or a concrete authenticated user. Identities partition persisted
// cart snapshots and drive the cart synchronizer's transition detection.
package identity

// Identity is either the guest sentinel or a concrete user id.
// The zero value is the guest identity.
type Identity struct {
	userID string
}

// Guest returns the anonymous identity.
func Guest() Identity {
	return Identity{}
}

// User returns the identity of the authenticated user with the given id.
// An empty id yields the guest identity.
func User(id string) Identity {
	return Identity{userID: id}
}

// IsGuest reports whether this is the anonymous identity.
func (i Identity) IsGuest() bool {
	return i.userID == ""
}

// UserID returns the user id, or "" for the guest identity.
func (i Identity) UserID() string {
	return i.userID
}

// Equal reports whether two identities refer to the same owner.
func (i Identity) Equal(other Identity) bool {
	return i.userID == other.userID
}

// String returns "guest" or the user id, for logs.
func (i Identity) String() string {
	if i.IsGuest() {
		return "guest"
	}
	return i.userID
}
