package models

import "fmt"

// MaxUsers is the number of distinct bit flags available for user IDs.
const MaxUsers = 32

// UserID is a user's bit flag. Every valid UserID is a distinct power of two;
// zero is not a valid user.
type UserID uint32

// Valid reports whether the ID is a single set bit.
func (id UserID) Valid() bool {
	return id != 0 && id&(id-1) == 0
}

// UserSet is a set of users stored as a bitmask. The zero value is the empty
// set. UserSet is a value type; mutating methods return the updated set.
type UserSet uint32

// NewUserSet builds a set from the given IDs.
func NewUserSet(ids ...UserID) UserSet {
	var s UserSet
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

// Add returns the set with the user included.
func (s UserSet) Add(id UserID) UserSet { return s | UserSet(id) }

// Remove returns the set with the user excluded.
func (s UserSet) Remove(id UserID) UserSet { return s &^ UserSet(id) }

// Has reports whether the user is in the set.
func (s UserSet) Has(id UserID) bool { return s&UserSet(id) != 0 }

// Union returns the combination of both sets.
func (s UserSet) Union(other UserSet) UserSet { return s | other }

// Empty reports whether no users are in the set.
func (s UserSet) Empty() bool { return s == 0 }

// Len returns the number of users in the set.
func (s UserSet) Len() int {
	n := 0
	for v := uint32(s); v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Members returns the user IDs in the set, in ascending bit order.
func (s UserSet) Members() []UserID {
	ids := make([]UserID, 0, s.Len())
	for bit := UserID(1); bit != 0; bit <<= 1 {
		if s.Has(bit) {
			ids = append(ids, bit)
		}
	}
	return ids
}

// Mask exposes the raw bitmask for persistence.
func (s UserSet) Mask() uint32 { return uint32(s) }

// User is a household member who can claim items and owe or be owed money.
type User struct {
	// BuyIndex is the user's bit flag, assigned once and never reused.
	BuyIndex UserID

	// Name is the display name shown to other participants.
	Name string

	// Username is the login handle managed by the upstream identity layer.
	Username string
}

func (u *User) String() string {
	return fmt.Sprintf("%s (%d)", u.Name, u.BuyIndex)
}
