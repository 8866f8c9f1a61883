package auth

// Principal is the authenticated identity behind a request.
type Principal struct {
	UserID string
	Email  string
	Name   string
}
