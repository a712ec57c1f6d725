package cli

import (
	"testing"

	"github.com/dl/indexa/internal/index"
	"github.com/dl/indexa/internal/matcher"
)

func validConfig() Config {
	return Config{
		CaseSensitive: "smart",
		MatchPath:     "auto",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"case yes", func(c *Config) { c.CaseSensitive = "yes" }, false},
		{"case bogus", func(c *Config) { c.CaseSensitive = "maybe" }, true},
		{"path on", func(c *Config) { c.MatchPath = "on" }, false},
		{"path bogus", func(c *Config) { c.MatchPath = "sideways" }, true},
		{"negative threads", func(c *Config) { c.Threads = -1 }, true},
		{"negative max hits", func(c *Config) { c.MaxHits = -5 }, true},
		{"attributes", func(c *Config) { c.Attributes = []string{"size", "mode"} }, false},
		{"unknown attribute", func(c *Config) { c.Attributes = []string{"inode"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAttrFlags(t *testing.T) {
	cfg := validConfig()
	cfg.Attributes = []string{"size", "mtime", "mode"}
	f, err := cfg.attrFlags()
	if err != nil {
		t.Fatalf("attrFlags: %v", err)
	}
	want := index.FlagSize | index.FlagMtime | index.FlagMode
	if f != want {
		t.Errorf("attrFlags = %b, want %b", f, want)
	}
}

func TestMatcherFlags(t *testing.T) {
	tests := []struct {
		caseMode string
		pathMode string
		wantCase matcher.CaseMode
		wantPath matcher.PathMode
	}{
		{"yes", "on", matcher.CaseSensitive, matcher.PathFull},
		{"no", "off", matcher.CaseInsensitive, matcher.PathBasename},
		{"smart", "auto", matcher.CaseSmart, matcher.PathAuto},
	}
	for _, tt := range tests {
		cfg := validConfig()
		cfg.CaseSensitive = tt.caseMode
		cfg.MatchPath = tt.pathMode
		f := cfg.matcherFlags()
		if f.Case != tt.wantCase || f.Path != tt.wantPath {
			t.Errorf("matcherFlags(%s, %s) = (%v, %v), want (%v, %v)",
				tt.caseMode, tt.pathMode, f.Case, f.Path, tt.wantCase, tt.wantPath)
		}
	}
}

func TestCaseFoldAtBuild(t *testing.T) {
	cfg := validConfig()
	if !cfg.caseFoldAtBuild() {
		t.Error("smart case should build the folded table")
	}
	cfg.CaseSensitive = "no"
	if !cfg.caseFoldAtBuild() {
		t.Error("insensitive should build the folded table")
	}
	cfg.CaseSensitive = "yes"
	if cfg.caseFoldAtBuild() {
		t.Error("strictly sensitive build does not need the folded table")
	}
}
