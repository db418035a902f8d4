package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scanner reads migration files from a file system.
type Scanner struct {
	fsys fs.FS
}

// NewScanner creates a Scanner over fsys.
func NewScanner(fsys fs.FS) *Scanner {
	return &Scanner{fsys: fsys}
}

// ScanMigrations returns the migrations in dir ordered by numeric version.
func (s *Scanner) ScanMigrations(dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, NewMigrationError("", dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		m, err := s.parse(dir, entry.Name())
		if err != nil {
			return nil, err
		}

		number, _ := strconv.Atoi(m.Version)
		if existing, ok := seen[number]; ok {
			return nil, NewMigrationError(m.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: version %s found in both %s and %s", ErrDuplicateVersion, m.Version, existing, entry.Name()))
		}
		seen[number] = entry.Name()
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		vi, _ := strconv.Atoi(migrations[i].Version)
		vj, _ := strconv.Atoi(migrations[j].Version)
		return vi < vj
	})
	return migrations, nil
}

// ValidateFileName checks that a file follows {version}_{description}.sql.
func ValidateFileName(filename string) error {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if len(matches) != 3 {
		return fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}.sql'", ErrInvalidMigrationFile, filename)
	}
	if _, err := strconv.Atoi(matches[1]); err != nil {
		return fmt.Errorf("%w: version '%s' in filename '%s' is not a valid number", ErrInvalidVersion, matches[1], filename)
	}
	return nil
}

func (s *Scanner) parse(dir, name string) (Migration, error) {
	filePath := path.Join(dir, name)
	if err := ValidateFileName(name); err != nil {
		return Migration{}, NewMigrationError("", filePath, "validate filename", err)
	}
	matches := migrationFilePattern.FindStringSubmatch(name)
	version := matches[1]

	content, err := fs.ReadFile(s.fsys, filePath)
	if err != nil {
		return Migration{}, NewMigrationError(version, filePath, "read file", err)
	}
	sql := string(content)
	if strings.TrimSpace(stripComments(sql)) == "" {
		return Migration{}, NewMigrationError(version, filePath, "validate content",
			fmt.Errorf("%w: migration file has no statements", ErrInvalidMigrationFile))
	}
	if err := checkParentheses(sql); err != nil {
		return Migration{}, NewMigrationError(version, filePath, "validate SQL syntax", err)
	}

	description := descriptionFromContent(sql)
	if description == "" {
		description = strings.ReplaceAll(matches[2], "_", " ")
	}

	return Migration{
		Version:     version,
		Description: description,
		SQL:         sql,
		FilePath:    filePath,
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(content)),
	}, nil
}

func stripComments(sql string) string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if i := strings.Index(line, "--"); i != -1 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			b.WriteString(line)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func checkParentheses(sql string) error {
	depth := 0
	for _, r := range stripComments(sql) {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	return nil
}

// descriptionFromContent reads a leading "-- Description: ..." comment.
func descriptionFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}
