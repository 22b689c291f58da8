package model

// Division is the smallest organizational unit; it owns members and events.
type Division struct {
	ID         int64
	Name       string
	RegionalID int64
}

// Member is a person belonging to exactly one division.
type Member struct {
	ID             int64
	FullName       string
	ShortName      string
	HierarchyLevel string
	Active         bool
	DivisionID     int64
}

// User is an operator allowed to call the API. PasswordHash holds a bcrypt hash.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
}
