package ast

// --- Literals ---------------------------------------------------------

type IntLit struct {
	base
	Value int64
}

type FloatLit struct {
	base
	Value float64
}

type StringLit struct {
	base
	Value string
	// Interpolated holds embedded expressions for double-quoted strings;
	// nil for single-quoted literals.
	Interpolated []Node
}

type UndefLit struct{ base }

// ListLit is a literal list expression, e.g. (1, 2, 3) or a qw// list.
type ListLit struct {
	base
	Elems []Node
}

// RangeLit is the `..` range operator used as a list-producing literal.
type RangeLit struct {
	base
	Lo, Hi Node
}

// --- Identifiers & variable references ---------------------------------

// VarRef names a variable by sigil + bare name, e.g. $x, @a, %h, &f, *g.
type VarRef struct {
	base
	Sigil Sigil
	Name  string
}

// ElemRef indexes into an array or hash: $a[i] / $h{k} / @a[i,j] / @h{k1,k2}.
type ElemRef struct {
	base
	Sigil     Sigil // SigilScalar for single-element, SigilArray for slice
	Container Node  // VarRef, DerefExpr, or another ElemRef/MethodCall (autoviv chain)
	IsHash    bool
	Keys      []Node // index/key expressions; len>1 only for slices
}

// DerefExpr is ${expr}, @{expr}, %{expr}, &{expr}, or the arrow forms
// $ref->[..] / $ref->{..} are represented as ElemRef with Container set
// to a DerefExpr wrapping Target.
type DerefExpr struct {
	base
	Sigil  Sigil
	Target Node
	Arrow  bool // true for $ref->... forms (always strict)
}

// GlobRef is *name or *{expr}.
type GlobRef struct {
	base
	Name   string
	Target Node // set instead of Name for *{expr}
}

// --- Declarations --------------------------------------------------------

type DeclKind byte

const (
	DeclMy DeclKind = iota
	DeclOur
	DeclLocal
)

// VarDecl declares one or more lexical/dynamic/package variables,
// e.g. `my $x`, `my ($a, $b, @rest)`, `local $x`, `our @a`.
type VarDecl struct {
	base
	Kind    DeclKind
	Targets []Node // VarRef, ElemRef (for `local $h{k}`), or nested ListLit for destructuring
}

// --- Operators -----------------------------------------------------------

type BinaryExpr struct {
	base
	Op          string // "+","-","*","/","%","**",".","x","==","eq",... ,"&&","||","//","and","or","xor"
	Left, Right Node
}

type UnaryExpr struct {
	base
	Op      string // "-","+","!","not","~","\\" (ref-of)
	Operand Node
}

type IncDecExpr struct {
	base
	Op      string // "++" or "--"
	Prefix  bool
	Operand Node
}

type TernaryExpr struct {
	base
	Cond, Then, Else Node
}

// Assign covers every assignment shape in the §4.2 protocol matrix. Op is
// "=" for plain/list assignment or a compound operator ("+=", ".=", ...).
type Assign struct {
	base
	Op     string
	Target Node // VarRef, ElemRef, DerefExpr, ListLit (list-to-list), VarDecl, GlobRef, Call (lvalue sub)
	Value  Node
}

// --- Blocks & statement lists ----------------------------------------------

type Block struct {
	base
	Stmts []Node
}

// ExprStmt wraps an expression used as a statement (its value is discarded
// under void context).
type ExprStmt struct {
	base
	Expr Node
}

// --- Control flow ----------------------------------------------------------

type IfStmt struct {
	base
	Cond       Node
	Then       *Block
	ElseIf     []IfStmt
	Else       *Block
}

type WhileStmt struct {
	base
	Label   string
	Until   bool // `until` is `while` with negated condition
	Cond    Node
	Body    *Block
	Continue *Block // the `continue { ... }` block, if present
}

// ForStmt is the C-style three-clause for loop.
type ForStmt struct {
	base
	Label           string
	Init, Cond, Post Node
	Body            *Block
}

// ForeachStmt is `for`/`foreach` over a list, optionally binding a named
// lexical loop variable (nil Var means $_).
type ForeachStmt struct {
	base
	Label string
	Var   *VarRef
	IsMy  bool
	List  Node
	Body  *Block
}

type LoopCtlKind byte

const (
	CtlLast LoopCtlKind = iota
	CtlNext
	CtlRedo
	CtlGoto
)

type LoopCtl struct {
	base
	Kind  LoopCtlKind
	Label string // target loop label, or goto target label; "" = innermost
}

type LabelStmt struct {
	base
	Name string
	Stmt Node
}

type ReturnStmt struct {
	base
	Value Node // nil for bare `return`
}

// --- Subroutines & calls -----------------------------------------------

type Param struct {
	Name    string
	Sigil   Sigil
	Default Node
}

// SubDecl is a named `sub name { ... }` declaration.
type SubDecl struct {
	base
	Name string
	Body *Block
}

// AnonSub is an anonymous `sub { ... }`, which may close over outer
// lexicals and is compiled to a CREATE_CLOSURE emission.
type AnonSub struct {
	base
	Body *Block
}

type Call struct {
	base
	Name string // bareword callee name; empty when Callee is set
	Callee Node // for `&$coderef(...)` / `$closure->(...)`
	Args   []Node
	Context Context // context the caller expects results under; filled by compiler
}

type MethodCall struct {
	base
	Invocant Node
	Method   string // literal method name, or empty if MethodExpr is set
	MethodExpr Node  // dynamic method name expression
	Args     []Node
	IsSuper  bool // `SUPER::method(...)`
}

// --- References & OOP -----------------------------------------------------

type RefExpr struct {
	base
	Target Node
}

type BlessExpr struct {
	base
	Ref   Node
	Class Node
}

type IsaExpr struct {
	base
	Target Node
	Class  Node
}

// --- eval --------------------------------------------------------------

// EvalBlock is `eval { ... }`.
type EvalBlock struct {
	base
	Body *Block
}

// EvalString is `eval EXPR`, compiled via a nested child compilation at
// run time rather than lowered to eval-try/eval-catch.
type EvalString struct {
	base
	Source Node
}

// DieExpr is `die EXPR`.
type DieExpr struct {
	base
	Value Node // nil for bare `die` (re-raises $@)
}

// --- Regex matching & substitution ----------------------------------------

// RegexLit is a bare pattern literal, e.g. /foo/i or qr/foo/i. The
// parser (out of scope here) is responsible for any interpolation
// inside the pattern text; Source is handed to the runtime's regex
// cache verbatim.
type RegexLit struct {
	base
	Source string
	Flags  string
}

// MatchExpr is `EXPR =~ PATTERN` (or `EXPR !~ PATTERN` when Negate is
// set). Pattern is usually a RegexLit but may be any expression that
// yields a regex-object or plain-string scalar (spec §4.4).
type MatchExpr struct {
	base
	Subject Node
	Pattern Node
	Negate  bool
}

// SubstExpr is `EXPR =~ s/PATTERN/REPLACEMENT/FLAGS` (or the negated
// `!~` form). Subject must resolve to a persistent lvalue: a bare `s///`
// mutates it in place and yields the substitution count, matching real
// Perl's `($x = "a") =~ s/a/A/` reloaded-lvalue idiom.
type SubstExpr struct {
	base
	Subject     Node
	Pattern     Node
	Replacement string
	Flags       string
	Negate      bool
}

// --- Package/pragma ------------------------------------------------------

type PackageStmt struct {
	base
	Name string
}

// Program is the root node handed to Compile.
type Program struct {
	base
	Stmts []Node
}
