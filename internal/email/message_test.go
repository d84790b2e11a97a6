package email

import "testing"

func TestMailbox(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rcpt string
		want string
	}{
		{"single address", "support@example.org", "support"},
		{"first of comma list", "support@example.org,billing@example.org", "support"},
		{"leading whitespace", "  sales@example.org", "sales"},
		{"no at sign", "postmaster", "postmaster"},
		{"empty", "", ""},
		{"plus addressing kept", "support+urgent@example.org", "support+urgent"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Mailbox(tt.rcpt); got != tt.want {
				t.Errorf("Mailbox(%q): got %q, want %q", tt.rcpt, got, tt.want)
			}
		})
	}
}
