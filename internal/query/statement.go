// Package query holds the statement type shared by the storage backends and
// the error they raise when a statement does not parse.
package query

// AccessMode tells the executor which kind of transaction a statement needs.
type AccessMode int

const (
	Read AccessMode = iota
	Write
)

func (m AccessMode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Statement is a fixed statement text plus its named parameters.
// Values supplied by users only ever travel through Params.
type Statement struct {
	Name   string
	Text   string
	Params map[string]any
	Mode   AccessMode
}

// New builds a statement. Params may be nil.
func New(name, text string, mode AccessMode, params map[string]any) Statement {
	if params == nil {
		params = map[string]any{}
	}
	return Statement{
		Name:   name,
		Text:   text,
		Params: params,
		Mode:   mode,
	}
}
