package models

// FileReferenceModel tracks an uploaded file on local/object storage.
type FileReferenceModel struct {
	Base
	UserID    string `json:"user_id"   gorm:"index"`
	Name      string `json:"name"      gorm:"not null"`
	Kind      string `json:"kind"      gorm:"index"` // "image" | "document" | "data" | "misc"
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Path      string `json:"-"         gorm:"type:text"`
	RemoteURL string `json:"remote_url,omitempty" gorm:"type:text"`
}

func (FileReferenceModel) TableName() string { return "file_references" }
