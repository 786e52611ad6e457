package entity

import (
	"time"
)

type Role string

const (
	RoleBrand   Role = "brand"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"

	// RoleSystem is used for transitions driven by background jobs.
	RoleSystem Role = "system"
)

type User struct {
	ID          string    `json:"id" firestore:"id"`
	Email       string    `json:"email" firestore:"email"`
	Username    string    `json:"username" firestore:"username"`
	DisplayName string    `json:"display_name,omitempty" firestore:"displayName,omitempty"`
	Role        Role      `json:"role" firestore:"role"`
	AvatarURL   string    `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Actor is the authenticated identity behind a single request.
type Actor struct {
	ID   string
	Role Role
}

func SystemActor() Actor {
	return Actor{ID: "system", Role: RoleSystem}
}
