package vault

import "testing"

func TestParseLinkTokens(t *testing.T) {
	tokens := ParseLinkTokens("intro [[Alpha]] mid [[Beta|the beta]] [[  Gamma ]]")
	if len(tokens) != 3 {
		t.Fatalf("Expected 3 tokens, got %d", len(tokens))
	}
	if tokens[0].Target != "Alpha" || tokens[0].Alias != "" {
		t.Errorf("Token 0: got %+v", tokens[0])
	}
	if tokens[1].Target != "Beta" || tokens[1].Alias != "the beta" {
		t.Errorf("Token 1: got %+v", tokens[1])
	}
	if tokens[2].Target != "Gamma" {
		t.Errorf("Token 2: got %+v", tokens[2])
	}
}

func TestParseLinkTokens_NoTokens(t *testing.T) {
	if tokens := ParseLinkTokens("plain text [not a link]"); len(tokens) != 0 {
		t.Errorf("Expected no tokens, got %v", tokens)
	}
}

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"  spaced   out  ", "spaced out"},
		{`a/b\c:d*e?f"g<h>i|j`, "abcdefghij"},
		{"[[linked]] #tag", "linked tag"},
	}
	for _, c := range cases {
		if got := SanitizeTitle(c.in); got != c.want {
			t.Errorf("SanitizeTitle(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestFormatDate(t *testing.T) {
	// 2024-03-01T12:30:45Z
	const millis = 1709296245000

	cases := []struct {
		layout string
		want   string
	}{
		{"date", "2024-03-01"},
		{"time", "12:30:45"},
		{"datetime", "2024-03-01 12:30:45"},
		{"rfc3339", "2024-03-01T12:30:45Z"},
		{"", "2024-03-01T12:30:45Z"},
	}
	for _, c := range cases {
		if got := FormatDate(millis, c.layout); got != c.want {
			t.Errorf("FormatDate(%q): expected %q, got %q", c.layout, c.want, got)
		}
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 36 {
		t.Errorf("Expected uuid length 36, got %d", len(a))
	}
	if a == b {
		t.Error("Expected distinct ids")
	}
}
