package locale

import (
	"encoding/binary"

	"github.com/leonelquinteros/gotext"
	"gopkg.in/yaml.v3"

	"github.com/schaumb/streamlit/pkg/errors"
)

// Catalog looks up translations of messages.
type Catalog interface {
	// Lookup returns the translation of msg and whether the catalog has one.
	Lookup(msg string) (string, bool)
}

// Messages is a catalog read from a flat YAML mapping.
type Messages map[string]string

// Lookup implements Catalog. Empty translations count as missing.
func (m Messages) Lookup(msg string) (string, bool) {
	s, ok := m[msg]
	return s, ok && s != ""
}

// gettextCatalog serves lookups from a parsed .po or .mo file.
type gettextCatalog struct {
	tr gotext.Translator
}

func (c gettextCatalog) Lookup(msg string) (string, bool) {
	s := c.tr.Get(msg)
	return s, s != msg
}

// ParseYAML parses a flat YAML mapping of message to translation.
func ParseYAML(data []byte) (Catalog, error) {
	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return Messages(m), nil
}

// ParsePO parses a gettext .po file. Entries with a msgctxt are only found
// through their context, and plural entries resolve to the singular form.
func ParsePO(data []byte) (Catalog, error) {
	po := gotext.NewPo()
	if err := parseGettext(po, data); err != nil {
		return nil, err
	}
	return gettextCatalog{tr: po}, nil
}

// ParseMO parses a compiled gettext .mo file.
func ParseMO(data []byte) (Catalog, error) {
	if err := checkMO(data); err != nil {
		return nil, err
	}
	mo := gotext.NewMo()
	if err := parseGettext(mo, data); err != nil {
		return nil, err
	}
	return gettextCatalog{tr: mo}, nil
}

func parseGettext(tr gotext.Translator, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeData, "malformed catalog: %v", r)
		}
	}()
	tr.Parse(data)
	return nil
}

const (
	moMagicLE  = 0x950412de
	moMagicBE  = 0xde120495
	moHeadSize = 28
)

// checkMO verifies that the string tables and every string they point at
// lie inside data. gotext sizes its buffers from these header fields.
func checkMO(data []byte) error {
	if len(data) < moHeadSize {
		return errors.New(errors.ErrorTypeData, "mo file too short")
	}

	var order binary.ByteOrder
	switch binary.LittleEndian.Uint32(data) {
	case moMagicLE:
		order = binary.LittleEndian
	case moMagicBE:
		order = binary.BigEndian
	default:
		return errors.New(errors.ErrorTypeData, "not a mo file")
	}

	size := uint64(len(data))
	n := uint64(order.Uint32(data[8:]))
	for _, table := range []uint64{uint64(order.Uint32(data[12:])), uint64(order.Uint32(data[16:]))} {
		if table+n*8 > size {
			return errors.Newf(errors.ErrorTypeData, "mo string table of %d entries out of range", n)
		}
		for i := uint64(0); i < n; i++ {
			off := table + i*8
			length := uint64(order.Uint32(data[off:]))
			start := uint64(order.Uint32(data[off+4:]))
			if start+length > size {
				return errors.New(errors.ErrorTypeData, "mo string out of range")
			}
		}
	}
	return nil
}
