package store

// User is the minimal web identity behind the browser login.
type User struct {
	ID           int32
	Email        string
	Nickname     string
	PasswordHash string
	RowStatus    string
	CreatedTs    int64
	UpdatedTs    int64
}

// FindUser specifies the conditions for finding a user.
type FindUser struct {
	ID    *int32
	Email *string
}
