package types

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		valid bool
	}{
		{"mrvl", "MRVL", true},
		{"  nvda ", "NVDA", true},
		{"BRKB", "BRKB", true},
		{"", "", false},
		{"BRK.B", "BRK.B", false},
		{"TOOLONGX", "TOOLONGX", false},
		{"123", "123", false},
		{"not a symbol", "NOT A SYMBOL", false},
	}
	for _, c := range cases {
		got, ok := NormalizeSymbol(c.in)
		if ok != c.valid {
			t.Errorf("NormalizeSymbol(%q): expected valid=%v, got %v", c.in, c.valid, ok)
		}
		if ok && got != c.want {
			t.Errorf("NormalizeSymbol(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestSourceDirect(t *testing.T) {
	if SourceScheduled.Direct() {
		t.Error("Expected scheduled source not to be direct")
	}
	if !SourceChatCommand.Direct() {
		t.Error("Expected chat command source to be direct")
	}
	if !SourceCliArgument.Direct() {
		t.Error("Expected CLI argument source to be direct")
	}
}
