package domain

import "strconv"

// MimeFolder marks a Drive container node.
const MimeFolder = "application/vnd.google-apps.folder"

// Default field selectors for listings and detail views.
const (
	DefaultFields = "id,name,mimeType,size,modifiedTime,createdTime"
	FullFields    = "id,name,mimeType,size,modifiedTime,createdTime,parents,webViewLink,thumbnailLink"
)

// File represents a Drive file or folder as returned by the API.
// Size is kept as the API's decimal string; use SizeBytes for a
// tolerant numeric read.
type File struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MimeType      string   `json:"mimeType"`
	Size          string   `json:"size,omitempty"`
	ModifiedTime  string   `json:"modifiedTime,omitempty"`
	CreatedTime   string   `json:"createdTime,omitempty"`
	Parents       []string `json:"parents,omitempty"`
	WebViewLink   string   `json:"webViewLink,omitempty"`
	ThumbnailLink string   `json:"thumbnailLink,omitempty"`
}

// IsFolder reports whether the file is a container node.
func (f *File) IsFolder() bool {
	return f.MimeType == MimeFolder
}

// SizeBytes parses the size field. ok is false when the field is missing
// or malformed; callers are expected to skip such entries.
func (f *File) SizeBytes() (int64, bool) {
	if f.Size == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListQuery describes one page request against a folder listing.
type ListQuery struct {
	FolderID       string
	PageSize       int
	PageToken      string
	Fields         string
	OrderBy        string
	IncludeTrashed bool
}
