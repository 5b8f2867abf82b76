package models

// Folder represents a logical folder in the drive.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
