// Package locale translates user-facing messages into the session language.
//
// Catalogs live in a locale directory with one subdirectory per language:
//
//	locales/
//	  pl/LC_MESSAGES/messages.mo
//	  de/LC_MESSAGES/messages.po
//	  pt_BR/messages.yaml
//
// Translation never fails: when no catalog or entry is found the message is
// returned unchanged.
package locale

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/session"
)

// DefaultDomain is the catalog file name without extension.
const DefaultDomain = "messages"

// Translator looks up messages in the catalogs under Dir. It is safe for
// concurrent use; each language's catalog is loaded once.
type Translator struct {
	Dir    string
	Domain string

	logger *zap.Logger

	mu       sync.RWMutex
	catalogs map[string]Catalog
	dirs     []string
	matcher  language.Matcher
}

// Option configures a Translator.
type Option func(*Translator)

// WithDomain sets the catalog domain.
func WithDomain(domain string) Option {
	return func(t *Translator) { t.Domain = domain }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(t *Translator) { t.logger = l }
}

// New creates a translator for the locale directory dir.
func New(dir string, opts ...Option) *Translator {
	t := &Translator{
		Dir:      dir,
		Domain:   DefaultDomain,
		logger:   zap.NewNop(),
		catalogs: make(map[string]Catalog),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("component", "locale"))
	return t
}

// Gettext translates msg into the language of the session in ctx.
func (t *Translator) Gettext(ctx context.Context, msg string) string {
	return t.Translate(session.Language(ctx), msg)
}

// Translate translates msg into lang. Failures are logged at warn level and
// msg is returned.
func (t *Translator) Translate(lang, msg string) string {
	if t == nil || t.Dir == "" || lang == "" {
		return msg
	}
	cat, err := t.Catalog(lang)
	if err != nil {
		t.logger.Warn("Gettext failed",
			zap.String("message", msg),
			zap.String("language", lang),
			zap.Error(err))
		return msg
	}
	if s, ok := cat.Lookup(msg); ok {
		return s
	}
	return msg
}

// Catalog returns the catalog that best matches lang.
func (t *Translator) Catalog(lang string) (Catalog, error) {
	dir, err := t.resolve(lang)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	cat, ok := t.catalogs[dir]
	t.mu.RUnlock()
	if ok {
		return cat, nil
	}

	cat, err = t.load(dir)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.catalogs[dir]; ok {
		return existing, nil
	}
	t.catalogs[dir] = cat
	return cat, nil
}

// Languages returns the language directories found under Dir.
func (t *Translator) Languages() ([]string, error) {
	if err := t.scan(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.dirs...), nil
}

// Reset drops the loaded catalogs and the directory listing.
func (t *Translator) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.catalogs = make(map[string]Catalog)
	t.dirs = nil
	t.matcher = nil
}

func (t *Translator) scan() error {
	t.mu.RLock()
	done := t.matcher != nil
	t.mu.RUnlock()
	if done {
		return nil
	}

	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to read locale directory")
	}

	var dirs []string
	var tags []language.Tag
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tag, err := language.Parse(strings.ReplaceAll(e.Name(), "_", "-"))
		if err != nil {
			continue
		}
		dirs = append(dirs, e.Name())
		tags = append(tags, tag)
	}
	sort.Sort(byName{dirs, tags})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirs = dirs
	t.matcher = language.NewMatcher(tags)
	return nil
}

func (t *Translator) resolve(lang string) (string, error) {
	if err := t.scan(); err != nil {
		return "", err
	}

	want, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid language tag")
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.dirs) == 0 {
		return "", errors.New(errors.ErrorTypeNotFound, "no catalogs in locale directory")
	}
	_, idx, conf := t.matcher.Match(want)
	if conf == language.No {
		return "", errors.Newf(errors.ErrorTypeNotFound, "no catalog for language %q", lang)
	}
	return t.dirs[idx], nil
}

// load reads the first catalog file present for the language directory:
// compiled .mo, then .po, then YAML.
func (t *Translator) load(dir string) (Catalog, error) {
	base := filepath.Join(t.Dir, dir)
	candidates := []struct {
		path  string
		parse func([]byte) (Catalog, error)
	}{
		{filepath.Join(base, "LC_MESSAGES", t.Domain+".mo"), ParseMO},
		{filepath.Join(base, "LC_MESSAGES", t.Domain+".po"), ParsePO},
		{filepath.Join(base, t.Domain+".yaml"), ParseYAML},
		{filepath.Join(base, t.Domain+".yml"), ParseYAML},
	}
	for _, c := range candidates {
		data, err := os.ReadFile(c.path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read catalog").WithDetail("path", c.path)
		}
		cat, err := c.parse(data)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse catalog").WithDetail("path", c.path)
		}
		t.logger.Debug("Loaded message catalog", zap.String("path", c.path))
		return cat, nil
	}
	return nil, errors.Newf(errors.ErrorTypeNotFound, "no %s catalog for %s", t.Domain, dir)
}

type byName struct {
	names []string
	tags  []language.Tag
}

func (b byName) Len() int           { return len(b.names) }
func (b byName) Less(i, j int) bool { return b.names[i] < b.names[j] }
func (b byName) Swap(i, j int) {
	b.names[i], b.names[j] = b.names[j], b.names[i]
	b.tags[i], b.tags[j] = b.tags[j], b.tags[i]
}
