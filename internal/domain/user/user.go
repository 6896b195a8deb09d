package user

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password,omitempty" json:"-"` // never expose hash in JSON
	Name         string    `bson:"name" json:"name"`
	Role         string    `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

// ValidRole reports whether r is one of the two roles the system knows about.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAdmin
}
