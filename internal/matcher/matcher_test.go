package matcher

import (
	"errors"
	"testing"
)

func TestCompileSmartCase(t *testing.T) {
	tests := []struct {
		query         string
		caseSensitive bool
	}{
		{"readme", false},
		{"README", true},
		{"ReadMe", true},
		{"c.txt", false},
		{"C.TXT", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m, err := Compile(tt.query, Flags{Case: CaseSmart})
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if m.CaseSensitive() != tt.caseSensitive {
				t.Errorf("CaseSensitive() = %v, want %v", m.CaseSensitive(), tt.caseSensitive)
			}
		})
	}
}

func TestCompileAutoPath(t *testing.T) {
	tests := []struct {
		query     string
		matchPath bool
	}{
		{"c", false},
		{"b/", true},
		{"src/main", true},
		{"main.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m, err := Compile(tt.query, Flags{Path: PathAuto})
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if m.MatchPath() != tt.matchPath {
				t.Errorf("MatchPath() = %v, want %v", m.MatchPath(), tt.matchPath)
			}
		})
	}
}

func TestLiteralMatch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		flags Flags
		text  string
		want  bool
	}{
		{"substring hit", "c", Flags{}, "c.txt", true},
		{"substring miss", "z", Flags{}, "c.txt", false},
		{"empty matches everything", "", Flags{}, "anything", true},
		{"insensitive", "readme", Flags{Case: CaseInsensitive}, "README.md", true},
		{"sensitive miss", "readme", Flags{Case: CaseSensitive}, "README.md", false},
		{"smart upper is sensitive", "C.TXT", Flags{Case: CaseSmart}, "c.txt", false},
		{"smart lower is insensitive", "c.txt", Flags{Case: CaseSmart}, "C.TXT", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.query, tt.flags)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if got := m.Match(tt.text); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRegexMatch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		flags Flags
		text  string
		want  bool
	}{
		{"suffix anchor", `\.txt$`, Flags{Regex: true}, "a.txt", true},
		{"suffix anchor miss", `\.txt$`, Flags{Regex: true}, "a.txt.bak", false},
		{"class", `[cd]\.`, Flags{Regex: true}, "d.md", true},
		{"insensitive regex", `readme`, Flags{Regex: true, Case: CaseInsensitive}, "README", true},
		{"empty regex matches", ``, Flags{Regex: true}, "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.query, tt.flags)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if got := m.Match(tt.text); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCompileInvalidRegex(t *testing.T) {
	_, err := Compile("(unclosed", Flags{Regex: true})
	if err == nil {
		t.Fatal("Compile accepted an invalid regex")
	}
	var ire *InvalidRegexError
	if !errors.As(err, &ire) {
		t.Fatalf("error type = %T, want *InvalidRegexError", err)
	}
	if ire.Pattern != "(unclosed" {
		t.Errorf("Pattern = %q, want %q", ire.Pattern, "(unclosed")
	}
	if ire.Unwrap() == nil {
		t.Error("underlying diagnostic lost")
	}
}

func TestFindSpan(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		flags      Flags
		text       string
		start, end int
		ok         bool
	}{
		{"literal", "txt", Flags{}, "a.txt", 2, 5, true},
		{"literal miss", "zz", Flags{}, "a.txt", 0, 0, false},
		{"insensitive span on original case", "img", Flags{Case: CaseInsensitive}, "IMG_001.JPG", 0, 3, true},
		{"regex", `b.r`, Flags{Regex: true}, "foobar", 3, 6, true},
		{"empty query has no span", "", Flags{}, "x", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.query, tt.flags)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			start, end, ok := m.FindSpan(tt.text)
			if start != tt.start || end != tt.end || ok != tt.ok {
				t.Errorf("FindSpan(%q) = (%d, %d, %v), want (%d, %d, %v)",
					tt.text, start, end, ok, tt.start, tt.end, tt.ok)
			}
		})
	}
}

func TestMatchFolded(t *testing.T) {
	m, err := Compile("ReadMe", Flags{Case: CaseInsensitive})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !m.PreFolded() {
		t.Fatal("case-insensitive literal should allow pre-folded matching")
	}
	if !m.MatchFolded("readme.md") {
		t.Error("MatchFolded missed a folded hit")
	}
	if m.MatchFolded("changelog") {
		t.Error("MatchFolded matched a non-hit")
	}

	sensitive, err := Compile("ReadMe", Flags{Case: CaseSensitive})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if sensitive.PreFolded() {
		t.Error("case-sensitive matcher must not use folded names")
	}
}
