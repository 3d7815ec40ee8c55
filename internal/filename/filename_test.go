package filename

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{
			name:   "extended wins over quoted",
			header: `attachment; filename="Setup64.exe"; filename*=UTF-8''Setup64.exe`,
			want:   "Setup64.exe",
			wantOK: true,
		},
		{
			name:   "unquoted with spaces",
			header: "attachment;filename=EURO rates",
			want:   "EURO rates",
			wantOK: true,
		},
		{
			name:   "quoted",
			header: `attachment; filename="report 2024.pdf"`,
			want:   "report 2024.pdf",
			wantOK: true,
		},
		{
			name:   "unquoted terminated by semicolon",
			header: "attachment; filename=data.csv; size=42",
			want:   "data.csv",
			wantOK: true,
		},
		{
			name:   "extended percent encoded",
			header: "attachment; filename*=UTF-8''na%C3%AFve%20file.txt",
			want:   "naïve file.txt",
			wantOK: true,
		},
		{
			name:   "case insensitive",
			header: `ATTACHMENT; FILENAME="Upper.BIN"`,
			want:   "Upper.BIN",
			wantOK: true,
		},
		{
			name:   "path separators stripped",
			header: `attachment; filename="../../etc\passwd"`,
			want:   "....etcpasswd",
			wantOK: true,
		},
		{
			name:   "no filename parameter",
			header: "inline",
			wantOK: false,
		},
		{
			name:   "empty",
			header: "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromHeader(tt.header)
			if ok != tt.wantOK {
				t.Fatalf("FromHeader(%q) ok = %v, want %v", tt.header, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("FromHeader(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://example.com/", "example.com.html"},
		{"https://example.com", "example.com.html"},
		{"https://example.com:8443/files/archive.tar.gz", "archive.tar.gz"},
		{"https://example.com/files/dir/", "dir"},
		{"https://example.com/files/name...", "name"},
		{"https://example.com/a%20b.txt?x=1", "a b.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatalf("url.Parse: %v", err)
			}
			if got := FromURL(u); got != tt.want {
				t.Errorf("FromURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDerive(t *testing.T) {
	u, _ := url.Parse("https://example.com/download.php")

	if got := Derive(`attachment; filename="keep.dots..."`, u); got != "keep.dots..." {
		t.Errorf("header-derived name must keep trailing dots, got %q", got)
	}
	if got := Derive("", u); got != "download.php" {
		t.Errorf("Derive without header = %q, want download.php", got)
	}
}

func TestApply(t *testing.T) {
	var gotArgs [3]string
	callback := Callback(func(name, fullPath, contentType string) string {
		gotArgs = [3]string{name, fullPath, contentType}
		return "from-callback."
	})

	tests := []struct {
		name    string
		policy  Policy
		derived string
		want    string
	}{
		{"nil passes through", nil, "file.zip", "file.zip"},
		{"literal replaces", Literal("custom.bin"), "file.zip", "custom.bin"},
		{"callback verbatim", callback, "file.zip", "from-callback."},
		{"structured ext string", Structured{Name: "report", Ext: "pdf"}, "file.zip", "report.pdf"},
		{"structured name is full", Structured{Name: "report", NameIsFull: true}, "file.zip", "report"},
		{"structured keeps derived ext", Structured{Name: "report"}, "archive.tar.gz", "report.gz"},
		{"structured without derived ext", Structured{Name: "report"}, "README", "report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Apply(tt.policy, tt.derived, "/dl", "application/zip"); got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}

	want := [3]string{"file.zip", filepath.Join("/dl", "file.zip"), "application/zip"}
	if gotArgs != want {
		t.Errorf("callback args = %v, want %v", gotArgs, want)
	}
}

func TestUnique(t *testing.T) {
	dir := t.TempDir()
	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}
	touch := func(name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	target := filepath.Join(dir, "a.zip")
	if got, _ := Unique(target, exists); got != target {
		t.Errorf("free path changed to %q", got)
	}

	touch("a.zip")
	if got, _ := Unique(target, exists); got != filepath.Join(dir, "a (1).zip") {
		t.Errorf("Unique() = %q, want a (1).zip", got)
	}

	touch("a (1).zip")
	if got, _ := Unique(target, exists); got != filepath.Join(dir, "a (2).zip") {
		t.Errorf("Unique() = %q, want a (2).zip", got)
	}

	touch("b (4).txt")
	if got, _ := Unique(filepath.Join(dir, "b (4).txt"), exists); got != filepath.Join(dir, "b (5).txt") {
		t.Errorf("Unique() = %q, want b (5).txt", got)
	}

	touch("noext")
	if got, _ := Unique(filepath.Join(dir, "noext"), exists); got != filepath.Join(dir, "noext (1)") {
		t.Errorf("Unique() = %q, want noext (1)", got)
	}
}

func TestUnique_Bounded(t *testing.T) {
	_, err := Unique("/x/always.bin", func(string) bool { return true })
	if !errors.Is(err, ErrNoUniqueName) {
		t.Errorf("Unique() err = %v, want ErrNoUniqueName", err)
	}
}
