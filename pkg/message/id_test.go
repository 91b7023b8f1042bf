package message

import "testing"

func TestCanonicalID_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"uppercase", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"braced", "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"urn", "urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"padded", "  6ba7b810-9dad-11d1-80b4-00c04fd430c8 ", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalID(tt.in); got != tt.want {
				t.Errorf("CanonicalID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalID_MalformedGetsFreshID(t *testing.T) {
	a := CanonicalID("user-42")
	b := CanonicalID("user-42")

	if !IsCanonicalID(a) || !IsCanonicalID(b) {
		t.Fatalf("expected canonical ids, got %q and %q", a, b)
	}
	if a == b {
		t.Error("malformed input should not map to a stable id")
	}
}

func TestIsCanonicalID(t *testing.T) {
	if IsCanonicalID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8") {
		t.Error("uppercase form is not canonical")
	}
	if !IsCanonicalID("6ba7b810-9dad-11d1-80b4-00c04fd430c8") {
		t.Error("lowercase hyphenated form is canonical")
	}
}
