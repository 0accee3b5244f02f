package hash

import (
	"strings"
	"testing"
)

func TestSHA256(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{
			[]byte("hello"),
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
		{
			[]byte(""),
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			got := SHA256(tt.input)
			if got != tt.want {
				t.Errorf("SHA256(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestSHA256Short(t *testing.T) {
	hash := SHA256([]byte("hello"))

	tests := []struct {
		n    int
		want string
	}{
		{8, hash[:8]},
		{16, hash[:16]},
		{64, hash},
		{100, hash}, // exceeds length, returns full
	}

	for _, tt := range tests {
		got := SHA256Short([]byte("hello"), tt.n)
		if got != tt.want {
			t.Errorf("SHA256Short(hello, %d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{"empty", map[string]string{}, ""},
		{"single", map[string]string{"page": "1"}, "page=1"},
		{
			"sorted by key",
			map[string]string{"with_genres": "27", "sort_by": "popularity.desc", "page": "1"},
			"page=1&sort_by=popularity.desc&with_genres=27",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.params); got != tt.want {
				t.Errorf("Canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("/discover/movie", map[string]string{"a": "1", "b": "2"})
	b := Fingerprint("/discover/movie", map[string]string{"b": "2", "a": "1"})
	if a != b {
		t.Errorf("Fingerprint not order independent: %s != %s", a, b)
	}

	c := Fingerprint("/discover/tv", map[string]string{"a": "1", "b": "2"})
	if a == c {
		t.Errorf("Fingerprint collision across endpoints: %s", a)
	}

	if len(a) != 16 {
		t.Errorf("Fingerprint length = %d, want 16", len(a))
	}
}

func TestLookupKey(t *testing.T) {
	k := LookupKey("person", "leonardo dicaprio")
	if !strings.HasPrefix(k, "lookup:person:") {
		t.Errorf("LookupKey() = %s, want lookup:person: prefix", k)
	}
	if k == LookupKey("company", "leonardo dicaprio") {
		t.Error("LookupKey should differ by kind")
	}
}

func BenchmarkFingerprint(b *testing.B) {
	params := map[string]string{
		"with_people": "6193,1032",
		"sort_by":     "popularity.desc",
		"page":        "1",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Fingerprint("/discover/movie", params)
	}
}
