package models

// UserFromAuth is the caller resolved from a bearer token. Only used in
// middleware and handlers.
type UserFromAuth struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
