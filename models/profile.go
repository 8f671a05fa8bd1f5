package models

// Profile is the record holding the role attribute of a subject
type Profile struct {
	ID   string `json:"id" db:"id"`
	Role Role   `json:"role" db:"role"`
}

// TableName returns the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}
