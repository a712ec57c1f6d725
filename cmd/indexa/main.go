// Command indexa maintains a persistent index of the configured roots and
// answers substring or regex queries over it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dl/indexa/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		query         string
		caseSensitive bool
		ignoreCase    bool
		regex         bool
		update        bool
		matchPath     string
		threads       int
		maxHits       int
		configPath    string
		database      string
		attributes    []string
		exclude       []string
		ignoreHidden  bool
		followLinks   bool
		sameFS        bool
		stats         bool
		verbose       bool
		noColor       bool
	)

	exitCode := 0
	root := &cobra.Command{
		Use:   "indexa [roots...]",
		Short: "locate files by name from a persistent filesystem index",
		Long: `indexa maintains a compact index of every path under the configured
roots and answers substring or regular-expression queries over it.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cli.NewViper(configPath)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			cfg := cli.FromViper(v)

			f := cmd.Flags()
			if len(args) > 0 {
				cfg.Roots = args
			}
			if f.Changed("query") {
				cfg.Query = query
				cfg.HasQuery = true
			}
			if f.Changed("case-sensitive") && caseSensitive {
				cfg.CaseSensitive = "yes"
			}
			if f.Changed("ignore-case") && ignoreCase {
				cfg.CaseSensitive = "no"
			}
			if f.Changed("regex") {
				cfg.Regex = regex
			}
			if f.Changed("match-path") {
				cfg.MatchPath = matchPath
			}
			if f.Changed("threads") {
				cfg.Threads = threads
			}
			if f.Changed("max-hits") {
				cfg.MaxHits = maxHits
			}
			if f.Changed("database") {
				cfg.DatabasePath = database
			}
			if f.Changed("attributes") {
				cfg.Attributes = attributes
			}
			if f.Changed("exclude") {
				cfg.Exclude = exclude
			}
			if f.Changed("ignore-hidden") {
				cfg.IgnoreHidden = ignoreHidden
			}
			if f.Changed("follow-symlinks") {
				cfg.FollowSymlinks = followLinks
			}
			if f.Changed("stay-on-filesystem") {
				cfg.StayOnFilesystem = sameFS
			}
			cfg.Update = update
			cfg.Stats = stats
			cfg.Verbose = verbose
			if f.Changed("no-color") {
				cfg.NoColor = noColor
			}

			exitCode = cli.Run(cfg)
			return nil
		},
	}

	fl := root.Flags()
	fl.StringVarP(&query, "query", "q", "", "run one query and print ordered hits")
	fl.BoolVarP(&caseSensitive, "case-sensitive", "s", false, "case-sensitive matching")
	fl.BoolVarP(&ignoreCase, "ignore-case", "i", false, "case-insensitive matching")
	fl.BoolVarP(&regex, "regex", "r", false, "treat the query as a regular expression")
	fl.BoolVarP(&update, "update", "u", false, "rebuild the database before searching")
	fl.StringVarP(&matchPath, "match-path", "p", "auto", "match the full path: on, off, or auto")
	fl.Lookup("match-path").NoOptDefVal = "on"
	fl.IntVarP(&threads, "threads", "t", 0, "worker threads (0 = logical CPUs)")
	fl.IntVar(&maxHits, "max-hits", 0, "stop after this many hits (0 = unlimited)")
	fl.StringVarP(&configPath, "config", "C", "", "config file path")
	fl.StringVar(&database, "database", "", "database file path")
	fl.StringSliceVar(&attributes, "attributes", nil, "attributes to collect: size, mtime, ctime, atime, mode")
	fl.StringSliceVar(&exclude, "exclude", nil, "gitignore-syntax exclude patterns")
	fl.BoolVar(&ignoreHidden, "ignore-hidden", true, "skip dotfiles during crawl")
	fl.BoolVar(&followLinks, "follow-symlinks", false, "descend into symlinked directories")
	fl.BoolVar(&sameFS, "stay-on-filesystem", false, "do not cross filesystem boundaries")
	fl.BoolVar(&stats, "stats", false, "print database statistics")
	fl.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	fl.BoolVar(&noColor, "no-color", false, "disable colored output")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "indexa: %v\n", err)
		return 2
	}
	return exitCode
}
