package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// NewViper builds the viper instance backing the config file and
// environment surface. Precedence: explicit -C path, then
// ~/.config/indexa/config.yaml. Environment variables use the INDEXA_
// prefix (INDEXA_THREADS, INDEXA_MATCH_PATH, ...). Missing files are not
// an error; defaults apply.
func NewViper(explicitPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else if configDir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(configDir, "indexa", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
		}
	}

	v.SetEnvPrefix("INDEXA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("case-sensitive", "smart")
	v.SetDefault("regex", false)
	v.SetDefault("match-path", "auto")
	v.SetDefault("max-hits", 0)
	v.SetDefault("threads", 0)
	v.SetDefault("database", "")
	v.SetDefault("roots", []string{})
	v.SetDefault("ignore-hidden", true)
	v.SetDefault("follow-symlinks", false)
	v.SetDefault("stay-on-filesystem", false)
	v.SetDefault("attributes", []string{"size", "mtime"})
	v.SetDefault("exclude", []string{})
	v.SetDefault("no-color", false)

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// FromViper copies the viper-resolved settings into a Config. Flags the
// user set on the command line are applied on top by the caller.
func FromViper(v *viper.Viper) Config {
	return Config{
		CaseSensitive:    v.GetString("case-sensitive"),
		Regex:            v.GetBool("regex"),
		MatchPath:        v.GetString("match-path"),
		MaxHits:          v.GetInt("max-hits"),
		Threads:          v.GetInt("threads"),
		DatabasePath:     v.GetString("database"),
		Roots:            v.GetStringSlice("roots"),
		IgnoreHidden:     v.GetBool("ignore-hidden"),
		FollowSymlinks:   v.GetBool("follow-symlinks"),
		StayOnFilesystem: v.GetBool("stay-on-filesystem"),
		Attributes:       v.GetStringSlice("attributes"),
		Exclude:          v.GetStringSlice("exclude"),
		NoColor:          v.GetBool("no-color"),
	}
}

// DefaultDatabasePath resolves the database location when the config
// does not name one: ~/.config/indexa/database.db (or the platform
// equivalent of the user config directory).
func DefaultDatabasePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "indexa", "database.db"), nil
}
