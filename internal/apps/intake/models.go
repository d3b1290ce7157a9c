package intake

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusNew      = "new"
	StatusReviewed = "reviewed"
	StatusArchived = "archived"
)

// Submission is one client intake form. The folder in the store holds the
// uploads plus the README and JSON snapshot written at submit time.
type Submission struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	BusinessName string                      `gorm:"size:120;not null" json:"business_name"`
	ContactName  string                      `gorm:"size:120;not null" json:"contact_name"`
	Email        string                      `gorm:"size:255;not null;index" json:"email"`
	Phone        string                      `gorm:"size:40" json:"phone,omitempty"`
	Website      string                      `gorm:"size:255" json:"website,omitempty"`
	Package      string                      `gorm:"size:60" json:"package,omitempty"`
	Budget       string                      `gorm:"size:60" json:"budget,omitempty"`
	Timeline     string                      `gorm:"size:60" json:"timeline,omitempty"`
	Description  string                      `gorm:"type:text" json:"description"`
	Folder       string                      `gorm:"size:255;not null" json:"folder"`
	Location     string                      `gorm:"size:500" json:"location"`
	Files        datatypes.JSONSlice[string] `json:"files"`
	Previews     datatypes.JSONSlice[string] `json:"previews"`
	Status       string                      `gorm:"size:20;not null;index" json:"status"`
	Notified     bool                        `gorm:"not null" json:"notified"`
	NotifyError  string                      `gorm:"size:500" json:"notify_error,omitempty"`
	CreatedAt    time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (Submission) TableName() string { return "intake_submissions" }

// Form is the text part of the multipart intake request.
type Form struct {
	BusinessName string `form:"business_name" json:"business_name" validate:"required,max=120"`
	ContactName  string `form:"contact_name" json:"contact_name" validate:"required,max=120"`
	Email        string `form:"email" json:"email" validate:"required,email,max=255"`
	Phone        string `form:"phone" json:"phone" validate:"max=40"`
	Website      string `form:"website" json:"website" validate:"omitempty,url,max=255"`
	Package      string `form:"package" json:"package" validate:"max=60"`
	Budget       string `form:"budget" json:"budget" validate:"max=60"`
	Timeline     string `form:"timeline" json:"timeline" validate:"max=60"`
	Description  string `form:"description" json:"description" validate:"required,min=10,max=5000"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new reviewed archived"`
}

// SubmitResponse is returned to the client after a successful submission.
type SubmitResponse struct {
	ID     uuid.UUID `json:"id"`
	Folder string    `json:"folder"`
	Files  int       `json:"files"`
}
