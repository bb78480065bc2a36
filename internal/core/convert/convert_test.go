package convert

import "testing"

func TestIsWorkspaceFile(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{MimeDocument, true},
		{MimeForm, true},
		{"application/vnd.google-apps.folder", true},
		{"application/pdf", false},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsWorkspaceFile(tt.mime); got != tt.want {
			t.Errorf("IsWorkspaceFile(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestExportMIME_Default(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{MimeDocument, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{MimeSpreadsheet, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{MimePresentation, "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		{MimeDrawing, "image/png"},
		{MimeForm, "application/zip"},
	}
	for _, tt := range tests {
		if got := ExportMIME(tt.mime, ""); got != tt.want {
			t.Errorf("ExportMIME(%q, \"\") = %q, want %q", tt.mime, got, tt.want)
		}
	}
}

func TestExportMIME_Preferred(t *testing.T) {
	if got := ExportMIME(MimeDocument, "pdf"); got != "application/pdf" {
		t.Errorf("preferred pdf: got %q", got)
	}
	if got := ExportMIME(MimeSpreadsheet, "csv"); got != "text/csv" {
		t.Errorf("preferred csv: got %q", got)
	}
	// Unavailable preference falls back to the default.
	if got := ExportMIME(MimeForm, "pdf"); got != "application/zip" {
		t.Errorf("unavailable preference: got %q", got)
	}
}

func TestExportMIME_NonExportable(t *testing.T) {
	if got := ExportMIME("application/pdf", "pdf"); got != "" {
		t.Errorf("ExportMIME for plain binary = %q, want empty", got)
	}
	if got := ExportMIME("application/vnd.google-apps.folder", ""); got != "" {
		t.Errorf("ExportMIME for folder = %q, want empty", got)
	}
}

func TestExportExtension(t *testing.T) {
	if got := ExportExtension(MimeDocument, "application/pdf"); got != ".pdf" {
		t.Errorf("got %q, want .pdf", got)
	}
	if got := ExportExtension(MimeDrawing, "image/svg+xml"); got != ".svg" {
		t.Errorf("got %q, want .svg", got)
	}
	// Unknown pairing falls back to the generic table.
	if got := ExportExtension("application/x-custom", "text/csv"); got != ".csv" {
		t.Errorf("got %q, want .csv", got)
	}
}

func TestExtension_Unknown(t *testing.T) {
	if got := Extension("application/x-nothing"); got != ".bin" {
		t.Errorf("got %q, want .bin", got)
	}
}

func TestFormats_CopyIsIndependent(t *testing.T) {
	a := Formats(MimeDocument)
	if len(a) != 4 {
		t.Fatalf("formats = %d, want 4", len(a))
	}
	a[0].Name = "mutated"
	b := Formats(MimeDocument)
	if b[0].Name != "docx" {
		t.Error("Formats returned shared backing storage")
	}
}
