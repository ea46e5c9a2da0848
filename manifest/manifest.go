// Package manifest loads function and struct descriptors from YAML.
//
//	library: libdemo.so
//	structs:
//	  - name: point
//	    size: 10            # optional, defaults to the member sum
//	    members:
//	      - {name: x, offset: 0, size: 2}
//	      - {name: y, offset: 8, size: 8}
//	functions:
//	  - name: add
//	    return: int
//	    args: [int, int]
//	  - name: point_sum
//	    symbol: demo_point_sum
//	    return: long
//	    args: [struct]
//
// Declared sizes and argument counts are kept as written, so inconsistent
// metadata is reported by the operation that uses it rather than at load.
package manifest

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/canoncall/ctype"
	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
	"github.com/wippyai/canoncall/invoke"
	"github.com/wippyai/canoncall/layout"
)

type document struct {
	Library   string        `yaml:"library,omitempty"`
	Structs   []structDoc   `yaml:"structs,omitempty"`
	Functions []functionDoc `yaml:"functions,omitempty"`
}

type structDoc struct {
	Name    string      `yaml:"name"`
	Size    *uintptr    `yaml:"size,omitempty"`
	Members []memberDoc `yaml:"members"`
}

type memberDoc struct {
	Name   string  `yaml:"name"`
	Offset uintptr `yaml:"offset"`
	Size   uintptr `yaml:"size"`
}

type functionDoc struct {
	Name    string   `yaml:"name"`
	Symbol  string   `yaml:"symbol,omitempty"`
	Return  string   `yaml:"return,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	NumArgs *int     `yaml:"num_args,omitempty"`
}

// Manifest is a parsed descriptor set. It is read-only after loading.
type Manifest struct {
	Library   string
	Structs   []*layout.Struct
	Functions []*invoke.Function

	symbols   map[string]string
	functions map[string]*invoke.Function
	structs   map[string]*layout.Struct
}

// Resolver maps symbol names to call targets. *libffi.Library and
// *wasm.Module both implement it.
type Resolver interface {
	Symbol(name string) (ffi.FuncPtr, error)
}

// Parse decodes a manifest. Unknown fields and unknown type names are
// rejected; an empty document yields an empty manifest.
func Parse(data []byte) (*Manifest, error) {
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.ParseFailed("manifest", err)
	}
	return build(&doc)
}

// Load reads and parses a manifest from r.
func Load(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.ParseFailed("manifest", err)
	}
	return Parse(data)
}

// LoadFile reads and parses the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ParseFailed("manifest "+path, err)
	}
	return Parse(data)
}

func build(doc *document) (*Manifest, error) {
	m := &Manifest{
		Library:   doc.Library,
		symbols:   make(map[string]string, len(doc.Functions)),
		functions: make(map[string]*invoke.Function, len(doc.Functions)),
		structs:   make(map[string]*layout.Struct, len(doc.Structs)),
	}

	for i, sd := range doc.Structs {
		if sd.Name == "" {
			return nil, missingName("structs", i)
		}
		if _, dup := m.structs[sd.Name]; dup {
			return nil, duplicate("structs", sd.Name)
		}
		members := make([]layout.Member, len(sd.Members))
		for j, md := range sd.Members {
			members[j] = layout.Member{Name: md.Name, Offset: md.Offset, Size: md.Size}
		}
		s := layout.New(sd.Name, members...)
		if sd.Size != nil {
			s.CanonicalSize = *sd.Size
		}
		m.Structs = append(m.Structs, s)
		m.structs[s.Name] = s
	}

	for i, fd := range doc.Functions {
		if fd.Name == "" {
			return nil, missingName("functions", i)
		}
		if _, dup := m.functions[fd.Name]; dup {
			return nil, duplicate("functions", fd.Name)
		}
		fn, err := function(fd)
		if err != nil {
			return nil, err
		}
		symbol := fd.Symbol
		if symbol == "" {
			symbol = fd.Name
		}
		m.Functions = append(m.Functions, fn)
		m.functions[fn.Name] = fn
		m.symbols[fn.Name] = symbol
	}
	return m, nil
}

func function(fd functionDoc) (*invoke.Function, error) {
	ret := ctype.Void
	if fd.Return != "" {
		t, err := ctype.ParseTag(fd.Return)
		if err != nil {
			return nil, atPath(err, fd.Name, "functions", fd.Name, "return")
		}
		ret = t
	}

	args := make([]ctype.Tag, len(fd.Args))
	for i, name := range fd.Args {
		t, err := ctype.ParseTag(name)
		if err != nil {
			return nil, atPath(err, fd.Name, "functions", fd.Name, "args", strconv.Itoa(i))
		}
		args[i] = t
	}

	fn := invoke.NewFunction(fd.Name, ret, args...)
	if fd.NumArgs != nil {
		fn.NumArgs = *fd.NumArgs
	}
	return fn, nil
}

// Function returns the descriptor named name.
func (m *Manifest) Function(name string) (*invoke.Function, error) {
	fn, ok := m.functions[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLink, "function", name)
	}
	return fn, nil
}

// Struct returns the struct layout named name.
func (m *Manifest) Struct(name string) (*layout.Struct, error) {
	s, ok := m.structs[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLink, "struct", name)
	}
	return s, nil
}

// Symbol returns the symbol a function binds to.
func (m *Manifest) Symbol(function string) (string, bool) {
	s, ok := m.symbols[function]
	return s, ok
}

// Bind resolves every function through r and binds it to iv, keyed by
// function name. If any symbol is missing, all of them are reported in one
// *errors.MissingSymbolsError and nothing is returned. Any other resolver
// failure is returned as is, tagged with the function name.
func (m *Manifest) Bind(iv *invoke.Invoker, r Resolver) (map[string]*invoke.Func, error) {
	if iv == nil {
		return nil, errors.NilPointer(errors.PhaseLink, "invoker")
	}
	if r == nil {
		return nil, errors.NilPointer(errors.PhaseLink, "resolver")
	}

	ptrs := make(map[string]ffi.FuncPtr, len(m.Functions))
	var missing []string
	for _, fn := range m.Functions {
		symbol := m.symbols[fn.Name]
		ptr, err := r.Symbol(symbol)
		if err != nil && errors.KindOf(err) != errors.KindNotFound {
			return nil, resolveFailed(fn.Name, symbol, err)
		}
		if err != nil || ptr == 0 {
			missing = append(missing, m.Library+"#"+symbol)
			continue
		}
		ptrs[fn.Name] = ptr
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingSymbolsError(missing)
	}

	bound := make(map[string]*invoke.Func, len(m.Functions))
	for _, fn := range m.Functions {
		f, err := iv.Bind(fn, ptrs[fn.Name])
		if err != nil {
			return nil, err
		}
		bound[fn.Name] = f
	}
	return bound, nil
}

func atPath(err error, function string, path ...string) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		e.Function = function
		e.Path = path
	}
	return err
}

func missingName(section string, i int) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Path(section, strconv.Itoa(i)).
		Detail("name is required").
		Build()
}

func duplicate(section, name string) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Path(section, name).
		Detail("duplicate name %q", name).
		Build()
}

func resolveFailed(function, symbol string, err error) error {
	kind := errors.KindOf(err)
	if kind == "" {
		kind = errors.KindInvalidInput
	}
	return errors.New(errors.PhaseLink, kind).
		Function(function).
		Detail("resolve symbol %q", symbol).
		Cause(err).
		Build()
}
