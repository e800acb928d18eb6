package discovery

import "testing"

func TestDNSTrimTrailingDot(t *testing.T) {
	cases := map[string]string{
		"node.example.com.": "node.example.com",
		"node.example.com":  "node.example.com",
		"":                  "",
	}
	for in, want := range cases {
		if got := dnsTrimTrailingDot(in); got != want {
			t.Fatalf("dnsTrimTrailingDot(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewDNSSeedUsesGivenResolver(t *testing.T) {
	s := newDNSSeed("9.9.9.9:53")
	if s.server != "9.9.9.9:53" {
		t.Fatalf("unexpected resolver %q", s.server)
	}
	if s.client == nil {
		t.Fatal("expected a non-nil dns.Client")
	}
}
