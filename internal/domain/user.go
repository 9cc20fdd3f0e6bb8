package domain

import "time"

// User is the owner of uploaded statements. Identity is the external
// account id handed in by the transport layer. Users are created on
// first interaction and never deleted.
type User struct {
	OwnerID     string
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}
