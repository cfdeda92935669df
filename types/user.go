package types

import "time"

const (
	RoleUser      = "user"
	RoleOrganiser = "organiser"
	RoleAdmin     = "admin"
)

// User is the account record. Registration and credential checks live in the
// authentication collaborator; this server only ever reads users.
type User struct {
	Id         string    `json:"id" gorm:"primaryKey"`
	Username   string    `json:"username" gorm:"uniqueIndex"`
	Email      string    `json:"email" gorm:"uniqueIndex"`
	Role       string    `json:"role" gorm:"default:user"`
	IsVerified bool      `json:"isVerified"`
	Bio        string    `json:"bio"`
	Phone      string    `json:"phone"`
	Avatar     string    `json:"avatar"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
