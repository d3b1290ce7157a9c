package dto

type CreateReportRequest struct {
	ContentType string `json:"content_type" validate:"required,oneof=product vendor bio_page"`
	ContentID   string `json:"content_id" validate:"required,max=255"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

type ActionReportRequest struct {
	Status    string `json:"status" validate:"required,oneof=reviewed actioned dismissed"`
	AdminNote string `json:"admin_note" validate:"max=1000"`
}

type SetSettingRequest struct {
	Value string `json:"value"`
	Type  string `json:"type" validate:"omitempty,oneof=string bool int json"`
}
