package compressor

import (
	"errors"
	"testing"
)

func TestClassifyFormat(t *testing.T) {
	tests := []struct {
		tag     string
		want    Format
		wantErr bool
	}{
		{"jpeg", FormatJPEG, false},
		{"JPG", FormatJPEG, false},
		{"Png", FormatPNG, false},
		{"WEBP", FormatWebP, false},
		{" webp ", FormatWebP, false},
		{"gif", FormatUnknown, true},
		{"tiff", FormatUnknown, true},
		{"", FormatUnknown, true},
	}
	for _, tt := range tests {
		got, err := ClassifyFormat(tt.tag)
		if got != tt.want {
			t.Errorf("ClassifyFormat(%q) = %v, want %v", tt.tag, got, tt.want)
		}
		if tt.wantErr && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ClassifyFormat(%q) error = %v, want ErrUnsupportedFormat", tt.tag, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ClassifyFormat(%q) unexpected error: %v", tt.tag, err)
		}
	}
}

func TestFormatTagFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/photos/IMG_0001.JPG", "jpg"},
		{"shot.jpeg", "jpeg"},
		{"icon.png", "png"},
		{"banner.webp", "webp"},
		{"anim.gif", ""},
		{"README", ""},
	}
	for _, tt := range tests {
		if got := FormatTagFromPath(tt.path); got != tt.want {
			t.Errorf("FormatTagFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFormatString(t *testing.T) {
	if FormatJPEG.String() != "jpeg" || FormatPNG.String() != "png" || FormatWebP.String() != "webp" {
		t.Error("unexpected canonical tags")
	}
	if FormatJPEG.HasLosslessPath() {
		t.Error("JPEG must not report a lossless path")
	}
	if !FormatPNG.HasLosslessPath() || !FormatWebP.HasLosslessPath() {
		t.Error("PNG and WebP must report a lossless path")
	}
}
