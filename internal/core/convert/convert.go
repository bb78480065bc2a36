// Package convert maps Google Workspace MIME types to exportable
// formats. Workspace files have no binary content of their own; the API
// only serves them through an export conversion, so every download of
// one picks a target format from these tables.
package convert

import "strings"

// MIME types of the Workspace editors.
const (
	MimeDocument     = "application/vnd.google-apps.document"
	MimeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimePresentation = "application/vnd.google-apps.presentation"
	MimeDrawing      = "application/vnd.google-apps.drawing"
	MimeForm         = "application/vnd.google-apps.form"
)

// Format pairs a short format name with the export MIME type sent to
// the API.
type Format struct {
	Name string
	MIME string
}

// exportFormats lists the allowed conversions per Workspace type, in
// preference order. The first entry is the default.
var exportFormats = map[string][]Format{
	MimeDocument: {
		{"docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"pdf", "application/pdf"},
		{"txt", "text/plain"},
		{"html", "text/html"},
	},
	MimeSpreadsheet: {
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"csv", "text/csv"},
		{"pdf", "application/pdf"},
		{"html", "text/html"},
	},
	MimePresentation: {
		{"pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		{"pdf", "application/pdf"},
		{"txt", "text/plain"},
		{"html", "text/html"},
	},
	MimeDrawing: {
		{"png", "image/png"},
		{"jpg", "image/jpeg"},
		{"pdf", "application/pdf"},
		{"svg", "image/svg+xml"},
	},
	MimeForm: {
		{"zip", "application/zip"},
	},
}

// mimeExtensions is the fallback extension table for MIME types outside
// the export matrix.
var mimeExtensions = map[string]string{
	MimeDocument:     ".docx",
	MimeSpreadsheet:  ".xlsx",
	MimePresentation: ".pptx",
	MimeDrawing:      ".png",
	MimeForm:         ".pdf",

	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",

	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",

	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",

	"video/mp4":       ".mp4",
	"video/avi":       ".avi",
	"video/quicktime": ".mov",

	"text/plain": ".txt",
	"text/csv":   ".csv",
	"text/html":  ".html",

	"application/zip": ".zip",
}

// IsWorkspaceFile reports whether the MIME type belongs to a Google
// Workspace editor document.
func IsWorkspaceFile(mimeType string) bool {
	return strings.HasPrefix(mimeType, "application/vnd.google-apps.")
}

// IsExportable reports whether the MIME type has an export conversion.
func IsExportable(mimeType string) bool {
	_, ok := exportFormats[mimeType]
	return ok
}

// ExportMIME picks the export MIME type for a Workspace file. When
// preferred names an available format it wins; otherwise the type's
// default format is used. Returns "" for non-exportable types.
func ExportMIME(mimeType, preferred string) string {
	formats, ok := exportFormats[mimeType]
	if !ok {
		return ""
	}
	if preferred != "" {
		for _, f := range formats {
			if f.Name == preferred {
				return f.MIME
			}
		}
	}
	return formats[0].MIME
}

// Formats returns the available export formats for a Workspace type,
// default first. Nil for non-exportable types.
func Formats(mimeType string) []Format {
	formats, ok := exportFormats[mimeType]
	if !ok {
		return nil
	}
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// ExportExtension resolves the file extension (with dot) for a source
// type exported as exportMIME, falling back to the generic MIME table.
func ExportExtension(mimeType, exportMIME string) string {
	for _, f := range exportFormats[mimeType] {
		if f.MIME == exportMIME {
			return "." + f.Name
		}
	}
	return Extension(exportMIME)
}

// Extension maps a MIME type to a file extension, ".bin" when unknown.
func Extension(mimeType string) string {
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}
