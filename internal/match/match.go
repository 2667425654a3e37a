// Package match decides whether two lines count as the same line under a
// chosen criterion. Every criterion reduces a line to a canonical key; two
// lines are equivalent when both have a key and the keys are equal.
package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/sokinpui/ddup/internal/lines"
)

// Kind is the base matching rule of a Criterion.
type Kind int

const (
	Exact Kind = iota
	Regex
	CommonPrefix
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Regex:
		return "regex"
	case CommonPrefix:
		return "prefix"
	default:
		return "unknown"
	}
}

// Criterion describes one detection pass. FoldCase and IgnoreSpace are
// modifiers for Exact and CommonPrefix only.
type Criterion struct {
	Kind        Kind
	Pattern     string
	FoldCase    bool
	IgnoreSpace bool
}

func (c Criterion) String() string {
	var b strings.Builder
	b.WriteString(c.Kind.String())
	if c.Kind == Regex {
		fmt.Fprintf(&b, "(%s)", c.Pattern)
	}
	if c.FoldCase {
		b.WriteString("+ignore-case")
	}
	if c.IgnoreSpace {
		b.WriteString("+ignore-whitespace")
	}
	return b.String()
}

// ErrInvalidPattern is returned when a regex criterion fails to compile.
var ErrInvalidPattern = errors.New("invalid regex pattern")

// InvalidPatternError carries the offending pattern.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid regex pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

func (e *InvalidPatternError) Is(target error) bool { return target == ErrInvalidPattern }

// ParseKind maps a user-facing criterion name onto a Criterion. The
// "case-insensitive" and "ignore-whitespace" names are shorthands for Exact
// with the matching modifier set.
func ParseKind(name string) (Criterion, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "exact":
		return Criterion{Kind: Exact}, nil
	case "case-insensitive", "ignore-case":
		return Criterion{Kind: Exact, FoldCase: true}, nil
	case "ignore-whitespace", "whitespace":
		return Criterion{Kind: Exact, IgnoreSpace: true}, nil
	case "regex":
		return Criterion{Kind: Regex}, nil
	case "prefix", "common-prefix":
		return Criterion{Kind: CommonPrefix}, nil
	}
	return Criterion{}, fmt.Errorf("unknown criterion %q (want exact, case-insensitive, ignore-whitespace, regex or prefix)", name)
}

// Validate checks that the modifiers are compatible with the kind.
func (c Criterion) Validate() error {
	switch c.Kind {
	case Exact, CommonPrefix:
		return nil
	case Regex:
		if c.FoldCase || c.IgnoreSpace {
			return fmt.Errorf("ignore-case and ignore-whitespace cannot be combined with a regex criterion")
		}
		if c.Pattern == "" {
			return &InvalidPatternError{Pattern: c.Pattern, Err: errors.New("empty pattern")}
		}
		return nil
	}
	return fmt.Errorf("unknown criterion kind %d", c.Kind)
}

// Classifier is a compiled Criterion. It is not safe for concurrent use;
// compile one per goroutine.
type Classifier struct {
	criterion Criterion
	re        *regexp.Regexp
	folder    cases.Caser
}

// Compile validates c and prepares it for classification.
func Compile(c Criterion) (*Classifier, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cl := &Classifier{criterion: c}
	if c.Kind == Regex {
		re, err := CompilePattern(c.Pattern)
		if err != nil {
			return nil, err
		}
		cl.re = re
	}
	if c.FoldCase {
		cl.folder = cases.Fold()
	}
	return cl, nil
}

// CompilePattern compiles a regular expression, reporting failure as an
// *InvalidPatternError.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &InvalidPatternError{Pattern: pattern, Err: err}
	}
	return re, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(c Criterion) *Classifier {
	cl, err := Compile(c)
	if err != nil {
		panic(err)
	}
	return cl
}

// Criterion returns the criterion the classifier was compiled from.
func (cl *Classifier) Criterion() Criterion { return cl.criterion }

// Key derives the canonical key of a line value. The boolean is false when
// the line is not a duplicate candidate under this criterion at all.
func (cl *Classifier) Key(value string) (string, bool) {
	switch cl.criterion.Kind {
	case Regex:
		return cl.regexKey(value)
	case CommonPrefix:
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return "", false
		}
		return cl.normalize(fields[0]), true
	default:
		return cl.normalize(value), true
	}
}

// Equivalent reports whether a and b are the same line under the criterion.
func (cl *Classifier) Equivalent(a, b lines.Line) bool {
	ka, ok := cl.Key(a.Value)
	if !ok {
		return false
	}
	kb, ok := cl.Key(b.Value)
	return ok && ka == kb
}

// Equivalent compiles c and compares a and b. It is a convenience for one-off
// comparisons; detection passes should compile once.
func Equivalent(a, b lines.Line, c Criterion) (bool, error) {
	cl, err := Compile(c)
	if err != nil {
		return false, err
	}
	return cl.Equivalent(a, b), nil
}

func (cl *Classifier) normalize(s string) string {
	if cl.criterion.IgnoreSpace {
		s = stripSpace(s)
	}
	if cl.criterion.FoldCase {
		s = cl.folder.String(s)
	}
	return s
}

// regexKey joins the capture groups with NUL so that ("a","bc") and
// ("ab","c") stay distinct.
func (cl *Classifier) regexKey(value string) (string, bool) {
	m := cl.re.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	if len(m) == 1 {
		return m[0], true
	}
	return strings.Join(m[1:], "\x00"), true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
