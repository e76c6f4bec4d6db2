package relayserver

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"/":                "",
		"abc":              "abc",
		"/abc":             "abc",
		"//abc":            "abc",
		"/abc/def":         "abc/def",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePathKey(t *testing.T) {
	valid := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	key, err := parsePathKey(valid)
	if err != nil {
		t.Fatalf("parsePathKey(valid): %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("parsePathKey returned %d bytes, want 32", len(key))
	}

	invalid := []string{
		"",
		"not-hex",
		"00112233", // too short
	}
	for _, in := range invalid {
		if _, err := parsePathKey(in); err == nil {
			t.Errorf("parsePathKey(%q) should have failed", in)
		}
	}
}

func TestShortPath(t *testing.T) {
	if got := shortPath("short"); got != "short" {
		t.Errorf("shortPath(short) = %q, want unchanged", got)
	}
	full := "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
	if got := shortPath(full); got != "00112233" {
		t.Errorf("shortPath(full) = %q, want first 8 chars", got)
	}
}
