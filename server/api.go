package server

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/disasm"
	"github.com/chazu/jasm/resolver"
)

var log = commonlog.GetLogger("jasm.server")

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// AssembleRequest carries one source file. Includes are served from the
// request only; the server never reads its own file system for them.
type AssembleRequest struct {
	FileName string            `cbor:"1,keyasint,omitempty"`
	Source   string            `cbor:"2,keyasint"`
	Includes map[string]string `cbor:"3,keyasint,omitempty"`
	Version  string            `cbor:"4,keyasint,omitempty"`
	Lenient  bool              `cbor:"5,keyasint,omitempty"`
}

// AssembleResponse holds the class file, or the diagnostics explaining
// why there is none.
type AssembleResponse struct {
	ClassName   string       `cbor:"1,keyasint,omitempty"`
	Major       uint16       `cbor:"2,keyasint,omitempty"`
	Minor       uint16       `cbor:"3,keyasint,omitempty"`
	Class       []byte       `cbor:"4,keyasint,omitempty"`
	Diagnostics []Diagnostic `cbor:"5,keyasint,omitempty"`
}

// Diagnostic is one assembly fault.
type Diagnostic struct {
	File      string `cbor:"1,keyasint,omitempty"`
	Line      int    `cbor:"2,keyasint"`
	Kind      string `cbor:"3,keyasint"`
	Directive string `cbor:"4,keyasint,omitempty"`
	Message   string `cbor:"5,keyasint"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Kind, d.Message)
}

// InspectRequest carries a class file to disassemble.
type InspectRequest struct {
	Class []byte `cbor:"1,keyasint"`
}

// InspectResponse is the decoded class and its text listing.
type InspectResponse struct {
	Info    *disasm.ClassInfo `cbor:"1,keyasint"`
	Listing string            `cbor:"2,keyasint"`
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Codec encodes messages as CBOR. It serves as both a Connect codec and
// a gRPC codec.
type Codec struct{}

// Name returns the content subtype, "cbor".
func (Codec) Name() string { return "cbor" }

func (Codec) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Shared operations
// ---------------------------------------------------------------------------

// Diagnose converts an assembly error to diagnostics.
func Diagnose(err error) []Diagnostic {
	if err == nil {
		return nil
	}
	var ae *asm.Error
	if errors.As(err, &ae) {
		return []Diagnostic{{
			File:      ae.File,
			Line:      ae.Line,
			Kind:      ae.Kind.String(),
			Directive: ae.Directive,
			Message:   ae.Err.Error(),
		}}
	}
	return []Diagnostic{{Kind: "error", Message: err.Error()}}
}

// assemble runs one request against res. Faults become diagnostics;
// only a malformed request is an error.
func assemble(res *resolver.Resolver, base asm.Options, req *AssembleRequest) (*AssembleResponse, error) {
	if req.Source == "" {
		return nil, errors.New("source is empty")
	}
	opts := base
	opts.Resolver = res
	opts.FileName = req.FileName
	opts.Includer = asm.MapIncluder(req.Includes)
	if req.Version != "" {
		if _, _, err := asm.ParseVersion(req.Version); err != nil {
			return nil, err
		}
		opts.Version = req.Version
	}
	opts.Lenient = opts.Lenient || req.Lenient

	out, err := asm.AssembleString(req.Source, opts)
	if err != nil {
		log.Debugf("assembly of %q failed: %s", req.FileName, err)
		return &AssembleResponse{Diagnostics: Diagnose(err)}, nil
	}
	return &AssembleResponse{
		ClassName: out.ClassName,
		Major:     out.Major,
		Minor:     out.Minor,
		Class:     out.Bytes,
	}, nil
}

func inspect(req *InspectRequest) (*InspectResponse, error) {
	if len(req.Class) == 0 {
		return nil, errors.New("class is empty")
	}
	info, err := disasm.Disassemble(req.Class)
	if err != nil {
		return nil, err
	}
	return &InspectResponse{Info: info, Listing: disasm.FormatString(info)}, nil
}
