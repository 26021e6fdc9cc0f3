package staff

import "time"

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
)

// Professional is a staff member whose calendar holds slots.
type Professional struct {
	UID       string     `json:"uid"`
	CenterID  string     `json:"centerId"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	Email     string     `json:"email,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type Invite struct {
	Token      string       `json:"token"`
	CenterID   string       `json:"centerId"`
	Email      string       `json:"email"`
	Role       string       `json:"role"`
	Status     InviteStatus `json:"status"`
	CreatedBy  string       `json:"createdBy,omitempty"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	AcceptedBy string       `json:"acceptedBy,omitempty"`
}

type InviteRequest struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedBy string `json:"-"`
}

type Acceptance struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}
