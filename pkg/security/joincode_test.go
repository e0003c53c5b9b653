package security

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateJoinCodeShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateJoinCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !ValidJoinCode(code) {
			t.Fatalf("generated invalid code %q", code)
		}
	}
}

func TestGenerateJoinCodeSkipsBiasedBytes(t *testing.T) {
	// 252 is the first rejected byte for a 36 symbol charset.
	src := bytes.NewReader([]byte{252, 0, 255, 1, 2, 3, 4, 35})
	code, err := generateJoinCode(src)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code != "ABCDE9" {
		t.Fatalf("expected ABCDE9, got %q", code)
	}
}

func TestGenerateJoinCodePropagatesReaderErrors(t *testing.T) {
	if _, err := generateJoinCode(errReader{}); err == nil {
		t.Fatal("expected reader error")
	}
}

func TestNormalizeAndValidateJoinCode(t *testing.T) {
	if got := NormalizeJoinCode("  ab12cd "); got != "AB12CD" {
		t.Fatalf("unexpected normalized code %q", got)
	}
	for _, bad := range []string{"", "AB12C", "AB12CDE", "AB-2CD", "ab12cd"} {
		if ValidJoinCode(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }
