package domain

import "time"

// User is the billing view of an account. Frequency is the consumable
// credit balance debited per drawing.
type User struct {
	ID        string
	Frequency int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanAfford reports whether the balance meets the given threshold.
func (u User) CanAfford(minimum int) bool {
	return u.Frequency >= minimum
}
