package locale

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/session"
	"github.com/schaumb/streamlit/pkg/testutil"
)

// localeDir lays out a .mo catalog for pl, a .po catalog for de and a YAML
// catalog for pt_BR.
func localeDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "pl", "LC_MESSAGES", "messages.mo"), buildMO(map[string]string{"Hello": "Cześć"}))
	testutil.WriteFile(t, filepath.Join(dir, "de", "LC_MESSAGES", "messages.po"), []byte("msgid \"Hello\"\nmsgstr \"Hallo\"\n"))
	testutil.WriteFile(t, filepath.Join(dir, "pt_BR", "messages.yaml"), []byte("Hello: Olá\n"))
	testutil.WriteFile(t, filepath.Join(dir, "fr", "LC_MESSAGES", "other.po"), []byte("msgid \"Hello\"\nmsgstr \"Bonjour\"\n"))
	testutil.WriteFile(t, filepath.Join(dir, "README"), []byte("not a language"))
	return dir
}

func TestTranslator_Gettext(t *testing.T) {
	tr := New(localeDir(t))

	tests := []struct {
		lang string
		want string
	}{
		{"pl", "Cześć"},
		{"de", "Hallo"},
		{"de-AT", "Hallo"},
		{"pt-BR", "Olá"},
		{"pt_BR", "Olá"},
		{"", "Hello"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			ctx := session.WithRunContext(context.Background(), session.NewRunContext(session.WithLanguage(tt.lang)))
			assert.Equal(t, tt.want, tr.Gettext(ctx, "Hello"))
		})
	}

	assert.Equal(t, "Hello", tr.Gettext(context.Background(), "Hello"), "no run context")
	assert.Equal(t, "Missing", tr.Translate("de", "Missing"))
}

func TestTranslator_FailuresReturnMessage(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tr := New(localeDir(t), WithLogger(zap.New(core)))

	assert.Equal(t, "Hello", tr.Translate("ja", "Hello"))
	assert.Equal(t, "Hello", tr.Translate("fr", "Hello"), "fr has no messages catalog")
	assert.Equal(t, "Hello", tr.Translate("not a tag!", "Hello"))

	require.Equal(t, 3, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Gettext failed", entry.Message)
	assert.Equal(t, "Hello", entry.ContextMap()["message"])
	assert.Equal(t, "locale", entry.ContextMap()["component"])

	missing := New(filepath.Join(t.TempDir(), "nope"), WithLogger(zap.New(core)))
	assert.Equal(t, "Hello", missing.Translate("pl", "Hello"))

	var nilTr *Translator
	assert.Equal(t, "Hello", nilTr.Translate("pl", "Hello"))
	assert.Equal(t, "Hello", New("").Translate("pl", "Hello"))
}

func TestTranslator_Domain(t *testing.T) {
	tr := New(localeDir(t), WithDomain("other"))
	assert.Equal(t, "Bonjour", tr.Translate("fr", "Hello"))
}

func TestTranslator_Languages(t *testing.T) {
	tr := New(localeDir(t))
	langs, err := tr.Languages()
	require.NoError(t, err)
	assert.Equal(t, []string{"de", "fr", "pl", "pt_BR"}, langs)

	_, err = New(filepath.Join(t.TempDir(), "nope")).Languages()
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestTranslator_CachesCatalogs(t *testing.T) {
	dir := localeDir(t)
	tr := New(dir)
	assert.Equal(t, "Hallo", tr.Translate("de", "Hello"))

	testutil.WriteFile(t, filepath.Join(dir, "de", "LC_MESSAGES", "messages.po"), []byte("msgid \"Hello\"\nmsgstr \"Servus\"\n"))
	assert.Equal(t, "Hallo", tr.Translate("de", "Hello"))

	tr.Reset()
	assert.Equal(t, "Servus", tr.Translate("de", "Hello"))
}

func TestTranslator_Concurrent(t *testing.T) {
	tr := New(localeDir(t))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "Cześć", tr.Translate("pl", "Hello"))
		}()
	}
	wg.Wait()
}

func TestTranslator_CorruptCatalog(t *testing.T) {
	dir := t.TempDir()
	header := make([]byte, moHeadSize)
	binary.LittleEndian.PutUint32(header[0:], moMagicLE)
	binary.LittleEndian.PutUint32(header[8:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(header[12:], moHeadSize)
	binary.LittleEndian.PutUint32(header[16:], moHeadSize)
	testutil.WriteFile(t, filepath.Join(dir, "pl", "LC_MESSAGES", "messages.mo"), header)

	core, logs := observer.New(zapcore.WarnLevel)
	tr := New(dir, WithLogger(zap.New(core)))

	assert.Equal(t, "Hello", tr.Translate("pl", "Hello"))
	require.Equal(t, 1, logs.Len())
	err, ok := logs.All()[0].ContextMap()["error"].(string)
	require.True(t, ok)
	assert.Contains(t, err, "out of range")
}
