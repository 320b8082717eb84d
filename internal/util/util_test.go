package util

import "testing"

func TestContainsString(t *testing.T) {
	slice := []string{"github", "medium", "arxiv"}
	if !ContainsString(slice, "medium") {
		t.Error("expected medium to be found")
	}
	if ContainsString(slice, "reddit") {
		t.Error("did not expect reddit to be found")
	}
	if ContainsString(nil, "anything") {
		t.Error("nil slice contains nothing")
	}
}

func TestTruncateString(t *testing.T) {
	cases := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a longer string", 10, "this is..."},
		{"abc", 0, ""},
		{"abcdef", 2, ".."},
		{"héllo wörld extended", 10, "héllo w..."},
	}
	for _, tc := range cases {
		if got := TruncateString(tc.in, tc.maxLen); got != tc.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
		}
	}
}
