package models

import (
	"slices"
	"time"
)

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AdminID   string    `json:"admin"`
	MemberIDs []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember treats the admin as a member even if the member list was
// persisted without it.
func (g Group) HasMember(userID string) bool {
	return g.AdminID == userID || slices.Contains(g.MemberIDs, userID)
}

type User struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	PasswordHash []byte `json:"-"`
	Enrollment   string `json:"enrollment,omitempty"`
	Course       string `json:"course,omitempty"`
	Semester     string `json:"semester,omitempty"`
	College      string `json:"college,omitempty"`
	OTP          string `json:"-"`
	Verified     bool   `json:"isVerified"`
}

type File struct {
	ID              string    `json:"id"`
	GroupID         string    `json:"groupId"`
	Filename        string    `json:"filename"`
	OriginalName    string    `json:"originalName"`
	URL             string    `json:"fileUrl"`
	MimeType        string    `json:"fileType"`
	Size            int64     `json:"fileSize"`
	UploadedBy      string    `json:"uploadedBy"`
	UploadedByEmail string    `json:"uploadedByEmail"`
	CreatedAt       time.Time `json:"createdAt"`
}
