package domain

import "context"

// Identity is the authenticated user behind a request or connection.
type Identity struct {
	UserID      int
	DisplayName string
}

type User struct {
	ID        int
	FirstName string
	LastName  string
	Email     string
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

type UserRepository interface {
	GetById(ctx context.Context, id int) (*User, error)
}
