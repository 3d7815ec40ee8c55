package filename

import (
	"path/filepath"
	"strings"
)

// Policy overrides the derived file name. Implementations are Literal,
// Callback and Structured.
type Policy interface {
	policy()
}

// Literal replaces the derived name entirely
type Literal string

// Callback receives the derived name, the prospective full path and the
// response content type (empty when unknown) and returns the final name
// verbatim
type Callback func(name, fullPath, contentType string) string

// Structured sets the base name and controls the extension.
//
// Ext set: the result is Name + "." + Ext.
// NameIsFull: the result is Name verbatim.
// Otherwise the derived name's extension is appended to Name.
type Structured struct {
	Name       string
	Ext        string
	NameIsFull bool
}

func (Literal) policy()    {}
func (Callback) policy()   {}
func (Structured) policy() {}

// Apply resolves derived through p. A nil policy passes the name through.
func Apply(p Policy, derived, destDir, contentType string) string {
	switch v := p.(type) {
	case nil:
		return derived
	case Literal:
		return string(v)
	case Callback:
		if v == nil {
			return derived
		}
		return v(derived, filepath.Join(destDir, derived), contentType)
	case Structured:
		if v.Ext != "" {
			return v.Name + "." + v.Ext
		}
		if v.NameIsFull {
			return v.Name
		}
		if i := strings.LastIndex(derived, "."); i >= 0 && i < len(derived)-1 {
			return v.Name + derived[i:]
		}
		return v.Name
	default:
		return derived
	}
}
