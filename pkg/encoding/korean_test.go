package encoding

import "testing"

func TestEUCKRRoundTrip(t *testing.T) {
	name := "프론테라"
	encoded := UTF8ToEUCKR(name)
	if string(encoded) == name {
		t.Fatal("expected EUC-KR bytes to differ from UTF-8")
	}
	if got := EUCKRToUTF8(encoded); got != name {
		t.Errorf("round trip: got %q, want %q", got, name)
	}
}

func TestFixedString(t *testing.T) {
	field := UTF8ToFixedString("root", 40)
	if len(field) != 40 {
		t.Fatalf("field length = %d, want 40", len(field))
	}
	if got := FixedStringToUTF8(field); got != "root" {
		t.Errorf("got %q, want %q", got, "root")
	}
}

func TestLatin1RoundTrip(t *testing.T) {
	name := "Körper"
	encoded := UTF8ToLatin1(name)
	if len(encoded) != len("Korper") {
		t.Fatalf("expected single-byte encoding, got %d bytes", len(encoded))
	}
	if got := Latin1ToUTF8(encoded); got != name {
		t.Errorf("round trip: got %q, want %q", got, name)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`Meshes\Actors\Character\Body.nif`, "meshes/actors/character/body.nif"},
		{"/data/model.rsm", "data/model.rsm"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
