package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openvault/vaultsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the per-vault rules file, loaded from the vault root.
const IgnoreFileName = ".vaultignore"

var defaultIgnoreLines = []string{
	// vaultsync
	IgnoreFileName,
	"**/*.vtmp.*",
	// general excludes
	".git",
	"*.tmp",
	"*.log",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	".Trash/",
}

// IgnoreList evaluates gitignore-style exclusion rules against relative
// paths. With IgnoreNothing set, every path passes.
type IgnoreList struct {
	baseDir       string
	ignoreNothing bool
	ignore        *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string, ignoreNothing bool) *IgnoreList {
	return &IgnoreList{baseDir: baseDir, ignoreNothing: ignoreNothing}
}

// Load compiles the default rules plus the vault's own ignore file, if
// present. Called before every pass so rule edits take effect without a
// restart.
func (l *IgnoreList) Load() {
	ignoreLines := defaultIgnoreLines

	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else if rules > 0 {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// Match reports whether the entry at relPath is excluded. Container
// paths are matched with a trailing slash so directory-scoped patterns
// ("logs/") apply.
func (l *IgnoreList) Match(relPath string, isDir bool) bool {
	if l.ignoreNothing {
		return false
	}
	if l.ignore == nil {
		l.Load()
	}
	if isDir && !strings.HasSuffix(relPath, "/") {
		relPath += "/"
	}
	return l.ignore.MatchesPath(relPath)
}
