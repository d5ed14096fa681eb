package locate

import (
	"fmt"
	"regexp"
	"strings"
)

// Class selects which annotation pattern a scan uses.
type Class int

const (
	// Primary matches the per-declaration guard annotation (e.g. @ExportMessage).
	Primary Class = iota
	// Secondary matches the annotations used inside a container
	// (e.g. @Specialization and @Fallback).
	Secondary
)

func (c Class) String() string {
	switch c {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// sharedThreshold is the number of matches one scan may produce before its
// leaves have to share a single guard field.
func (c Class) sharedThreshold() int {
	if c == Secondary {
		return 2
	}
	return 1
}

// PatternConfig names the annotations and tokens the Locator anchors on.
type PatternConfig struct {
	Primary        []string
	Secondary      []string
	Fallback       string
	ContainerToken string
}

// DefaultPatternConfig returns the annotation set of Truffle message exports.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		Primary:        []string{"ExportMessage"},
		Secondary:      []string{"Specialization", "Fallback"},
		Fallback:       "Fallback",
		ContainerToken: " class ",
	}
}

// Patterns holds the compiled, immutable matchers for one configuration.
// A Patterns value is safe for concurrent use.
type Patterns struct {
	primary        *regexp.Regexp
	secondary      *regexp.Regexp
	pkg            *regexp.Regexp
	fallbackToken  string
	containerToken string

	header, method, args, throws int
}

// declPattern is an annotation marker, a lazily matched header, the method
// identifier, a parameter list, an optional throws clause and the opening
// brace of the body.
const declPattern = `(?s)@(?:%s)(?P<header>.*?)(?P<method>\s[a-zA-Z][a-zA-Z0-9]*)\((?P<args>.*?)\)(?P<throws>\sthrows .*?)?\s\{`

const packagePattern = `(?s)package\s.*?;`

// NewPatterns compiles cfg into Patterns.
func NewPatterns(cfg PatternConfig) (*Patterns, error) {
	if len(cfg.Primary) == 0 {
		return nil, fmt.Errorf("locate: no primary annotations configured")
	}
	if len(cfg.Secondary) == 0 {
		return nil, fmt.Errorf("locate: no secondary annotations configured")
	}
	if cfg.ContainerToken == "" {
		return nil, fmt.Errorf("locate: empty container token")
	}

	primary, err := compileDecl(cfg.Primary)
	if err != nil {
		return nil, err
	}
	secondary, err := compileDecl(cfg.Secondary)
	if err != nil {
		return nil, err
	}

	p := &Patterns{
		primary:        primary,
		secondary:      secondary,
		pkg:            regexp.MustCompile(packagePattern),
		containerToken: cfg.ContainerToken,
		header:         primary.SubexpIndex("header"),
		method:         primary.SubexpIndex("method"),
		args:           primary.SubexpIndex("args"),
		throws:         primary.SubexpIndex("throws"),
	}
	if cfg.Fallback != "" {
		p.fallbackToken = "@" + strings.TrimPrefix(cfg.Fallback, "@")
	}
	return p, nil
}

// MustPatterns is like NewPatterns but panics on error.
func MustPatterns(cfg PatternConfig) *Patterns {
	p, err := NewPatterns(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

func compileDecl(annotations []string) (*regexp.Regexp, error) {
	quoted := make([]string, len(annotations))
	for i, a := range annotations {
		a = strings.TrimPrefix(strings.TrimSpace(a), "@")
		if a == "" {
			return nil, fmt.Errorf("locate: empty annotation name")
		}
		quoted[i] = regexp.QuoteMeta(a)
	}
	re, err := regexp.Compile(fmt.Sprintf(declPattern, strings.Join(quoted, "|")))
	if err != nil {
		return nil, fmt.Errorf("locate: compile pattern: %w", err)
	}
	return re, nil
}

// Package returns the matcher for the package clause.
func (p *Patterns) Package() *regexp.Regexp {
	return p.pkg
}

func (p *Patterns) forClass(c Class) *regexp.Regexp {
	if c == Secondary {
		return p.secondary
	}
	return p.primary
}

// declaration builds a Declaration (End not yet known) from a submatch index
// slice m taken over a window starting at bias.
func (p *Patterns) declaration(src string, m []int, bias int) Declaration {
	at := func(group int) (int, int) {
		s, e := m[2*group], m[2*group+1]
		if s < 0 {
			return -1, -1
		}
		return s + bias, e + bias
	}

	d := Declaration{Start: m[0] + bias, BodyStart: m[1] + bias}
	headerStart, headerEnd := at(p.header)
	methodStart, methodEnd := at(p.method)
	d.ArgsStart, d.ArgsEnd = at(p.args)
	d.ThrowsStart, d.ThrowsEnd = at(p.throws)
	if d.ThrowsStart < 0 {
		// Empty span directly after the closing parenthesis.
		d.ThrowsStart, d.ThrowsEnd = d.ArgsEnd+1, d.ArgsEnd+1
	}

	d.Name = strings.TrimSpace(src[methodStart:methodEnd])
	d.Container = strings.Contains(src[headerStart:headerEnd], p.containerToken)
	d.Fallback = p.fallbackToken != "" && strings.Contains(d.Header(src), p.fallbackToken)
	return d
}
