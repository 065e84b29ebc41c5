package detection

import (
	"errors"
	"testing"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

func TestDedupe(t *testing.T) {
	codes := []Barcode{
		{Payload: "A", Format: "QR_CODE"},
		{Payload: "B", Format: "QR_CODE"},
		{Payload: "A", Format: "QR_CODE"},
		{Payload: "A", Format: "CODE_128"},
	}

	got := Dedupe(codes)
	if len(got) != 3 {
		t.Fatalf("Dedupe() len = %d, want 3", len(got))
	}
	if got[0].Payload != "A" || got[1].Payload != "B" || got[2].Format != "CODE_128" {
		t.Errorf("Dedupe() = %+v, want first occurrences in order", got)
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name  string
		codes []Barcode
		want  string
	}{
		{"empty", nil, ""},
		{"single", []Barcode{{Payload: "x", Format: "EAN_13"}}, "x"},
		{"2D beats 1D", []Barcode{
			{Payload: "1234567890123", Format: "EAN_13"},
			{Payload: "qr", Format: "QR_CODE"},
		}, "qr"},
		{"longest payload", []Barcode{
			{Payload: "short", Format: "QR_CODE"},
			{Payload: "much longer", Format: "DATA_MATRIX"},
		}, "much longer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best := SelectBest(tt.codes)
			if tt.want == "" {
				if best != nil {
					t.Errorf("SelectBest() = %+v, want nil", best)
				}
				return
			}
			if best == nil || best.Payload != tt.want {
				t.Errorf("SelectBest() = %+v, want payload %q", best, tt.want)
			}
		})
	}
}

func TestParseSymbologies(t *testing.T) {
	got := ParseSymbologies(" QR, ean,,code128 ")
	want := []string{"qr", "ean", "code128"}
	if len(got) != len(want) {
		t.Fatalf("ParseSymbologies() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseSymbologies()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChain_FirstHitWins(t *testing.T) {
	first := NewMock()
	second := NewMock()
	second.DetectFunc = func(f *frame.Frame) ([]Barcode, error) {
		return []Barcode{{Payload: "hit"}}, nil
	}
	third := NewMock()

	chain, err := NewChain(first, second, third)
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}

	codes, err := chain.Detect(&frame.Frame{Seq: 1})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(codes) != 1 || codes[0].Payload != "hit" {
		t.Errorf("Detect() = %+v, want the second detector's result", codes)
	}
	if third.CallCount() != 0 {
		t.Errorf("third detector called %d times, want 0", third.CallCount())
	}
}

func TestChain_ErrorFallsThrough(t *testing.T) {
	broken := NewMock()
	broken.DetectFunc = func(f *frame.Frame) ([]Barcode, error) {
		return nil, errors.New("boom")
	}
	empty := NewMock()

	chain, _ := NewChain(broken, empty)
	codes, err := chain.Detect(&frame.Frame{Seq: 1})
	if err != nil {
		t.Errorf("Detect() error = %v, want nil when one backend ran cleanly", err)
	}
	if len(codes) != 0 {
		t.Errorf("Detect() = %+v, want none", codes)
	}
}

func TestChain_AllFail(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	a := NewMock()
	a.DetectFunc = func(f *frame.Frame) ([]Barcode, error) { return nil, errA }
	b := NewMock()
	b.DetectFunc = func(f *frame.Frame) ([]Barcode, error) { return nil, errB }

	chain, _ := NewChain(a, b)
	_, err := chain.Detect(&frame.Frame{Seq: 1})

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Detect() error = %v, want *ChainError", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("ChainError.Errors len = %d, want 2", len(chainErr.Errors))
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Error("ChainError should unwrap to every backend error")
	}
}

func TestNewChain_RequiresDetector(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrNoDetectors) {
		t.Errorf("NewChain() error = %v, want ErrNoDetectors", err)
	}
}

func TestChain_CloseJoinsErrors(t *testing.T) {
	a := NewMock()
	a.CloseFunc = func() error { return errors.New("close a") }
	b := NewMock()

	chain, _ := NewChain(a, b)
	if err := chain.Close(); err == nil {
		t.Error("Close() error = nil, want the failing detector's error")
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	err := WrapError("zxing", frame.ErrEmpty)
	if !errors.Is(err, frame.ErrEmpty) {
		t.Errorf("WrapError() should unwrap to the cause, got %v", err)
	}
	if WrapError("zxing", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
}
