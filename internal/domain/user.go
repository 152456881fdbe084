package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsStaff      bool      `json:"is_staff"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Profile struct {
	UserID     string `json:"user_id"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// Delivery prefills checkout from the saved profile.
func (p Profile) Delivery() DeliveryDetails {
	return DeliveryDetails{
		Address:    p.Address,
		City:       p.City,
		PostalCode: p.PostalCode,
		Phone:      p.Phone,
	}
}
