// Package location parses raw stay location codes into a closed set of
// variants: the configured home, a hierarchical place such as US/OH/DAYTON,
// or a flight segment such as FLIGHT/JFK-LHR.
package location

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedLocationCode is returned for empty or structurally invalid codes
var ErrMalformedLocationCode = errors.New("malformed location code")

const (
	// DefaultFlightPrefix marks a code as a day spent in transit
	DefaultFlightPrefix = "FLIGHT"

	// PathSeparator separates the segments of a hierarchical code
	PathSeparator = "/"

	// SegmentSeparator joins origin and destination in a flight code
	SegmentSeparator = "-"
)

// Kind identifies the variant of a Code
type Kind int

// Code variants
const (
	KindHome Kind = iota + 1
	KindPlace
	KindFlight
)

// String returns the variant name
func (k Kind) String() string {
	switch k {
	case KindHome:
		return "home"
	case KindPlace:
		return "place"
	case KindFlight:
		return "flight"
	default:
		return "unknown"
	}
}

// Code is a parsed location code. The zero value is not a valid code; use a
// Parser to create one. Codes are comparable and can be used as map keys.
type Code struct {
	kind        Kind
	raw         string
	lookup      string
	origin      string
	destination string
}

// Kind returns the variant of the code
func (c Code) Kind() Kind { return c.kind }

// String returns the normalized code
func (c Code) String() string { return c.raw }

// IsZero reports whether c was never parsed
func (c Code) IsZero() bool { return c.kind == 0 }

// LookupKey returns the coordinate table key for the code. Home and places
// use their full path; flights use the destination airport's layover code
// (e.g. FLIGHT/LHR for FLIGHT/JFK-LHR).
func (c Code) LookupKey() string { return c.lookup }

// Segments returns the path segments of the code
func (c Code) Segments() []string {
	if c.raw == "" {
		return nil
	}
	return strings.Split(c.raw, PathSeparator)
}

// Leaf returns the last path segment
func (c Code) Leaf() string {
	segs := c.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Origin returns the departure airport of a flight, or "" for other kinds
func (c Code) Origin() string { return c.origin }

// Destination returns the arrival airport of a flight, or "" for other kinds
func (c Code) Destination() string { return c.destination }

// IsLayover reports whether c is a single-point flight placeholder
// (FLIGHT/LHR) rather than a true segment between two airports
func (c Code) IsLayover() bool {
	return c.kind == KindFlight && c.origin == c.destination
}

// IsSegment reports whether c is a flight between two different airports
func (c Code) IsSegment() bool {
	return c.kind == KindFlight && c.origin != c.destination
}

// Parser converts raw strings into Codes relative to a configured home
type Parser struct {
	home   string
	prefix string
}

// Option configures a Parser
type Option func(*Parser)

// WithFlightPrefix overrides the reserved flight prefix
func WithFlightPrefix(prefix string) Option {
	return func(p *Parser) {
		p.prefix = normalize(prefix)
	}
}

// NewParser creates a parser for the given home code. The home code must be
// a well-formed place code.
func NewParser(home string, opts ...Option) (*Parser, error) {
	p := &Parser{prefix: DefaultFlightPrefix}
	for _, opt := range opts {
		opt(p)
	}
	if p.prefix == "" || strings.Contains(p.prefix, PathSeparator) {
		return nil, fmt.Errorf("%w: invalid flight prefix %q", ErrMalformedLocationCode, p.prefix)
	}

	code, err := p.parse(home)
	if err != nil {
		return nil, fmt.Errorf("invalid home location: %w", err)
	}
	if code.kind != KindPlace {
		return nil, fmt.Errorf("%w: home location %q must be a place", ErrMalformedLocationCode, home)
	}
	p.home = code.raw

	return p, nil
}

// Home returns the parsed home code
func (p *Parser) Home() Code {
	return Code{kind: KindHome, raw: p.home, lookup: p.home}
}

// FlightPrefix returns the reserved flight prefix
func (p *Parser) FlightPrefix() string { return p.prefix }

// Parse classifies a raw location code. Codes are case-insensitive and
// normalized to upper case.
func (p *Parser) Parse(raw string) (Code, error) {
	code, err := p.parse(raw)
	if err != nil {
		return Code{}, err
	}
	if code.kind == KindPlace && code.raw == p.home {
		return p.Home(), nil
	}
	return code, nil
}

func (p *Parser) parse(raw string) (Code, error) {
	s := normalize(raw)
	if s == "" {
		return Code{}, fmt.Errorf("%w: empty code", ErrMalformedLocationCode)
	}

	segs := strings.Split(s, PathSeparator)
	for _, seg := range segs {
		if seg == "" {
			return Code{}, fmt.Errorf("%w: empty segment in %q", ErrMalformedLocationCode, raw)
		}
	}

	if segs[0] != p.prefix {
		return Code{kind: KindPlace, raw: s, lookup: s}, nil
	}

	if len(segs) != 2 {
		return Code{}, fmt.Errorf("%w: flight code %q must be %s/<airport> or %s/<origin>-<destination>",
			ErrMalformedLocationCode, raw, p.prefix, p.prefix)
	}

	origin, destination := segs[1], segs[1]
	if strings.Contains(segs[1], SegmentSeparator) {
		ends := strings.Split(segs[1], SegmentSeparator)
		if len(ends) != 2 || ends[0] == "" || ends[1] == "" {
			return Code{}, fmt.Errorf("%w: invalid flight segment in %q", ErrMalformedLocationCode, raw)
		}
		origin, destination = ends[0], ends[1]
	}

	return Code{
		kind:        KindFlight,
		raw:         s,
		lookup:      p.prefix + PathSeparator + destination,
		origin:      origin,
		destination: destination,
	}, nil
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
