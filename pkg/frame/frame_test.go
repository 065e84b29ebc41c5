package frame

import (
	"errors"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"jpeg", FormatJPEG, false},
		{"JPG", FormatJPEG, false},
		{"", FormatJPEG, false},
		{"bgra", FormatBGRA, false},
		{"gray", FormatGray, false},
		{"h264", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		frame   *Frame
		wantErr error
	}{
		{"nil frame", nil, ErrEmpty},
		{"empty data", &Frame{Format: FormatJPEG}, ErrEmpty},
		{"jpeg without dimensions", &Frame{Format: FormatJPEG, Data: []byte{0xff, 0xd8}}, nil},
		{"gray exact", &Frame{Format: FormatGray, Width: 4, Height: 2, Data: make([]byte, 8)}, nil},
		{"bgra exact", &Frame{Format: FormatBGRA, Width: 2, Height: 2, Data: make([]byte, 16)}, nil},
		{"bgra short", &Frame{Format: FormatBGRA, Width: 2, Height: 2, Data: make([]byte, 15)}, ErrSizeMismatch},
		{"gray zero width", &Frame{Format: FormatGray, Width: 0, Height: 2, Data: make([]byte, 2)}, ErrBadDimensions},
		{"gray overflowing width", &Frame{Format: FormatGray, Width: 6148914691236517206, Height: 3, Data: make([]byte, 2)}, ErrBadDimensions},
		{"bgra overflowing height", &Frame{Format: FormatBGRA, Width: 3, Height: 1 << 62, Data: make([]byte, 12)}, ErrBadDimensions},
		{"jpeg oversized", &Frame{Format: FormatJPEG, Width: MaxDimension + 1, Height: 1, Data: []byte{0xff, 0xd8}}, ErrBadDimensions},
		{"gray at max width", &Frame{Format: FormatGray, Width: MaxDimension, Height: 1, Data: make([]byte, MaxDimension)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	gray := &Frame{Format: FormatGray, Width: 4, Height: 4}
	graySame := &Frame{Format: FormatGray, Width: 4, Height: 4}
	grayBig := &Frame{Format: FormatGray, Width: 8, Height: 4}
	jpegA := &Frame{Format: FormatJPEG}
	jpegB := &Frame{Format: FormatJPEG, Width: 640, Height: 480}

	if !Compatible(gray, graySame) {
		t.Error("same gray frames should be compatible")
	}
	if Compatible(gray, grayBig) {
		t.Error("different sizes should not be compatible")
	}
	if Compatible(gray, jpegA) {
		t.Error("different formats should not be compatible")
	}
	if !Compatible(jpegA, jpegB) {
		t.Error("jpeg frames are compatible regardless of declared size")
	}
	if Compatible(nil, gray) {
		t.Error("nil frame should not be compatible")
	}
}

func TestOrientationFromDevice(t *testing.T) {
	tests := []struct {
		device string
		want   Orientation
	}{
		{"landscape_right", OrientationLandscapeLeft},
		{"landscape_left", OrientationLandscapeRight},
		{"portrait_upside_down", OrientationPortraitUpsideDown},
		{"portrait", OrientationPortrait},
		{"face_up", OrientationPortrait},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			if got := OrientationFromDevice(tt.device); got != tt.want {
				t.Errorf("OrientationFromDevice(%q) = %v, want %v", tt.device, got, tt.want)
			}
		})
	}
}

func TestOrientation_RoundTrip(t *testing.T) {
	for _, o := range []Orientation{
		OrientationPortrait, OrientationPortraitUpsideDown,
		OrientationLandscapeLeft, OrientationLandscapeRight,
	} {
		if got := ParseOrientation(o.String()); got != o {
			t.Errorf("ParseOrientation(%q) = %v, want %v", o.String(), got, o)
		}
	}
}

func TestOffset_Manhattan(t *testing.T) {
	tests := []struct {
		off  Offset
		want float64
	}{
		{Offset{0, 0}, 0},
		{Offset{2, 2}, 4},
		{Offset{-3, 4}, 7},
		{Offset{-1.5, -0.5}, 2},
	}

	for _, tt := range tests {
		if got := tt.off.Manhattan(); got != tt.want {
			t.Errorf("%v.Manhattan() = %v, want %v", tt.off, got, tt.want)
		}
	}
}
