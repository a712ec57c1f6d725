package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/dl/indexa/internal/cancel"
	"github.com/dl/indexa/internal/crawler"
	"github.com/dl/indexa/internal/index"
	"github.com/dl/indexa/internal/matcher"
	"github.com/dl/indexa/internal/output"
	"github.com/dl/indexa/internal/search"
	"github.com/dl/indexa/internal/store"
)

// Run executes one indexa invocation.
// Exit codes: 0 = hits printed (or maintenance done), 1 = no hits, 2 = error.
func Run(cfg Config) int {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "indexa"})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error(err)
		return 2
	}

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDatabasePath()
		if err != nil {
			logger.Error("resolve database path", "err", err)
			return 2
		}
	}

	// Interrupt flips the shared token; crawl and query workers observe
	// it between directory jobs / scan chunks.
	tok := &cancel.Token{}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		tok.Cancel()
	}()

	db, code := openDatabase(cfg, dbPath, logger, tok)
	if db == nil {
		return code
	}

	if cfg.Stats {
		printStats(db, logger)
	}

	if !cfg.HasQuery {
		return 0
	}

	m, err := matcher.Compile(cfg.Query, cfg.matcherFlags())
	if err != nil {
		var ire *matcher.InvalidRegexError
		if errors.As(err, &ire) {
			logger.Error(ire.Error())
		} else {
			logger.Error("compile query", "err", err)
		}
		return 2
	}

	printer := output.NewPrinter(!cfg.NoColor && output.StdoutIsTerminal())
	engine := search.New(cfg.Threads)

	maxHits := search.NoLimit
	if cfg.MaxHits > 0 {
		maxHits = cfg.MaxHits
	}

	hits := 0
	var printErr error
	err = engine.Search(db, m, tok, search.Options{MaxHits: maxHits}, func(id index.EntryID) bool {
		if err := printer.PrintHit(db, m, id); err != nil {
			printErr = err
			return false
		}
		hits++
		return true
	})
	if err != nil {
		logger.Error("search", "err", err)
		return 2
	}
	if printErr != nil {
		logger.Error("write", "err", printErr)
		return 2
	}
	if tok.Cancelled() {
		return 2
	}
	if hits == 0 {
		return 1
	}
	return 0
}

// openDatabase loads the persisted database or (re)builds it from the
// configured roots. Returns nil with an exit code on failure.
func openDatabase(cfg Config, dbPath string, logger *log.Logger, tok *cancel.Token) (*index.Database, int) {
	if !cfg.Update {
		db, err := store.Load(dbPath)
		switch {
		case err == nil:
			logger.Debug("database loaded", "path", dbPath, "entries", db.NumEntries())
			return db, 0
		case errors.Is(err, os.ErrNotExist):
			logger.Info("no database found, building", "path", dbPath)
		default:
			var schema *store.IncompatibleSchemaError
			if errors.As(err, &schema) {
				logger.Warn("database schema mismatch, rebuilding",
					"found", schema.Found, "expected", schema.Expected)
			} else {
				logger.Warn("database unreadable, rebuilding", "err", err)
			}
		}
	}

	roots := cfg.Roots
	if len(roots) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Error("no roots configured and no home directory", "err", err)
			return nil, 2
		}
		roots = []string{home}
	}

	attrs, err := cfg.attrFlags()
	if err != nil {
		logger.Error(err)
		return nil, 2
	}

	c, err := crawler.New(crawler.Config{
		Roots:            roots,
		IgnoreHidden:     cfg.IgnoreHidden,
		FollowSymlinks:   cfg.FollowSymlinks,
		StayOnFilesystem: cfg.StayOnFilesystem,
		Attributes:       attrs,
		BuildFolded:      cfg.caseFoldAtBuild(),
		Exclude:          cfg.Exclude,
		Threads:          cfg.Threads,
	})
	if err != nil {
		logger.Error("configure crawl", "err", err)
		return nil, 2
	}

	db, warns, err := c.Build(tok)
	for _, w := range warns {
		logger.Warn("crawl", "path", w.Path, "cause", w.Cause)
	}
	if err != nil {
		logger.Error("crawl", "err", err)
		return nil, 2
	}
	logger.Debug("crawl finished", "entries", db.NumEntries(), "warnings", len(warns))

	if err := store.Save(db, dbPath); err != nil {
		logger.Error("save database", "err", err)
		return nil, 2
	}
	logger.Debug("database saved", "path", dbPath)
	return db, 0
}

func printStats(db *index.Database, logger *log.Logger) {
	dirs := 0
	for i := range db.Entries() {
		if db.Entries()[i].IsDir {
			dirs++
		}
	}
	logger.Info("database",
		"entries", db.NumEntries(),
		"directories", dirs,
		"roots", len(db.Roots()),
		"fragments", db.Names().Len(),
		"fragment_bytes", db.Names().Bytes(),
		"folded", db.Folded(),
		"size", db.Flags().Has(index.FlagSize),
		"mtime", db.Flags().Has(index.FlagMtime),
		"ctime", db.Flags().Has(index.FlagCtime),
		"atime", db.Flags().Has(index.FlagAtime),
		"mode", db.Flags().Has(index.FlagMode),
	)
}
