package statecast

import "slices"

// User is one entry of the users slice.
//
// Users are values: changing a User obtained from a snapshot never changes
// the store. Use [Store.AddUser] and [Store.ToggleUserActive] instead.
type User struct {
	// ID is unique within a store and assigned in increasing order.
	ID int `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Email is the contact address. The store does not validate it.
	Email string `json:"email"`

	// Active reports whether the user is currently enabled.
	Active bool `json:"active"`
}

// Statistics is the derived count of active and inactive users.
type Statistics struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// computeStatistics counts users by state.
func computeStatistics(users []User) Statistics {
	stats := Statistics{Total: len(users)}
	for _, u := range users {
		if u.Active {
			stats.Active++
		}
	}
	stats.Inactive = stats.Total - stats.Active
	return stats
}

// activeUsers returns the active subset of users, preserving order.
func activeUsers(users []User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out
}

func cloneUsers(users []User) []User {
	if users == nil {
		return []User{}
	}
	return slices.Clone(users)
}

// DefaultSeedUsers returns the built-in user seed: four users, of which the
// third is inactive.
func DefaultSeedUsers() []User {
	return []User{
		{ID: 1, Name: "Ana García", Email: "ana@example.com", Active: true},
		{ID: 2, Name: "Carlos López", Email: "carlos@example.com", Active: true},
		{ID: 3, Name: "María Rodríguez", Email: "maria@example.com", Active: false},
		{ID: 4, Name: "José Martínez", Email: "jose@example.com", Active: true},
	}
}
