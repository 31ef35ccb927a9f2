package analyzer

// Category identifies which denylist an identifier is checked against.
type Category int

const (
	CategoryImport Category = iota
	CategoryFunction
	CategoryAttribute
)

func (c Category) String() string {
	switch c {
	case CategoryImport:
		return "import"
	case CategoryFunction:
		return "function"
	case CategoryAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}

// Denylist holds the sets of disallowed module, function, and attribute
// names. It is plain data behind a single lookup so the lists can be
// extended and tested independently of the AST traversal.
type Denylist struct {
	imports    map[string]struct{}
	functions  map[string]struct{}
	attributes map[string]struct{}
}

// DefaultDenylist returns the built-in denylist: modules that reach the
// operating system, processes, filesystem, network, serialization, or
// import machinery; builtins that evaluate or introspect at runtime; and
// dunder attributes that allow sandbox escape via object graph traversal.
func DefaultDenylist() *Denylist {
	return &Denylist{
		imports: toSet([]string{
			"os", "sys", "subprocess", "shutil", "socket", "urllib", "urllib2", "urllib3",
			"requests", "http", "ftplib", "smtplib", "telnetlib", "pathlib", "glob",
			"tempfile", "shlex", "pickle", "marshal", "shelve", "dbm", "sqlite3",
			"ctypes", "multiprocessing", "threading", "asyncio", "concurrent",
			"importlib", "__builtin__", "builtins", "imp", "pkgutil", "modulefinder",
		}),
		functions: toSet([]string{
			"eval", "exec", "compile", "__import__", "open", "file", "input", "raw_input",
			"execfile", "reload", "getattr", "setattr", "delattr", "hasattr", "callable",
			"vars", "dir", "globals", "locals", "help", "copyright", "credits", "license",
			"quit", "exit",
		}),
		attributes: toSet([]string{
			"__class__", "__bases__", "__subclasses__", "__mro__", "__globals__",
			"__dict__", "__code__", "__func__", "__self__", "__module__", "__qualname__",
			"__annotations__", "__closure__", "__defaults__", "__kwdefaults__",
		}),
	}
}

// Blocked reports whether name is denylisted in the given category.
func (d *Denylist) Blocked(cat Category, name string) bool {
	switch cat {
	case CategoryImport:
		_, ok := d.imports[name]
		return ok
	case CategoryFunction:
		_, ok := d.functions[name]
		return ok
	case CategoryAttribute:
		_, ok := d.attributes[name]
		return ok
	default:
		return false
	}
}

// Extend adds names to a category. Used by tests and deployments that
// need a stricter policy than the default.
func (d *Denylist) Extend(cat Category, names ...string) {
	var target map[string]struct{}
	switch cat {
	case CategoryImport:
		target = d.imports
	case CategoryFunction:
		target = d.functions
	case CategoryAttribute:
		target = d.attributes
	default:
		return
	}
	for _, n := range names {
		target[n] = struct{}{}
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
