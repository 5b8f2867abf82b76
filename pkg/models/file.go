package models

// File represents file metadata. Parent is the owning folder id; empty
// means the file lives in the default uploads directory. DiskName is
// the timestamp-prefixed name actually used on disk and is the only
// value disk lookups go through. Size is the human-readable label
// computed once at upload or copy time.
type File struct {
	ID       string `json:"id"`
	Parent   string `json:"parent,omitempty"`
	Name     string `json:"name"`
	DiskName string `json:"diskName"`
	Size     string `json:"size"`
	Modified string `json:"modified"`
	Owner    string `json:"owner"`
}
