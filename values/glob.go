package values

// Glob is a typeglob: the four-namespace slot bundle a fully-qualified
// package name resolves to in the global symbol table (spec §3.6).
type Glob struct {
	Name   string
	Scalar *Scalar
	Array  *Array
	Hash   *Hash
	Code   *Code
	IO     *FileHandle
}

// FileHandle is the I/O slot a glob carries when opened (spec §4.4's
// glob/file-handle scalar operand for print/say/readline/open). It
// wraps the narrow surface the delegate opcodes need; the real reader
// or writer lives in the host-supplied io.Reader/io.Writer.
type FileHandle struct {
	Name   string
	Reader interface{ Read([]byte) (int, error) }
	Writer interface{ Write([]byte) (int, error) }
	Closer interface{ Close() error }
	EOF    bool
}

func NewGlob(name string) *Glob {
	return &Glob{Name: name}
}

func (*Glob) Kind() Kind { return KindGlob }

func (g *Glob) ToScalar() *Scalar { return NewRef(g) }

func (g *Glob) ToList() []*Scalar { return []*Scalar{NewRef(g)} }

func (g *Glob) IsDefined() bool { return true }

func (g *Glob) ToBool() bool { return true }
