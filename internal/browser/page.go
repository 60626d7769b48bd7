// Package browser provides the page-driving capability used by the navigator
// and the extractor.
//
// Page is the whole surface the workflow needs from a browser. ChromePage
// drives a real Chrome through ChromeDP, FixturePage answers from recorded
// HTML so the workflow can be tested without the live portal.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Page drives one browser tab.
//
// Every blocking method is bounded by ctx. Implementations apply their own
// default timeout when ctx has no deadline, so no call waits forever.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, loc Locator) error
	// Fill clears the element and types value into it.
	Fill(ctx context.Context, loc Locator, value string) error
	Click(ctx context.Context, loc Locator) error
	PressEnter(ctx context.Context, loc Locator) error
	// WaitText waits until text appears anywhere in the rendered page.
	WaitText(ctx context.Context, text string) error
	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string, fullPage bool) error
	Close() error
}

// Locator finds an element by CSS query, optionally narrowed to elements
// whose text contains Text.
type Locator struct {
	Query string
	Text  string
}

// CSS returns a locator for a plain CSS query.
func CSS(query string) Locator {
	return Locator{Query: query}
}

// HasText returns a locator for elements matching query that contain text.
func HasText(query, text string) Locator {
	return Locator{Query: query, Text: text}
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.Query
	}
	return fmt.Sprintf("%s:has-text(%s)", l.Query, strconv.Quote(l.Text))
}

// ParseLocator is the inverse of Locator.String. It accepts a trailing
// :has-text("...") pseudo class on top of plain CSS.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	const pseudo = ":has-text("
	i := strings.Index(s, pseudo)
	if i < 0 {
		if s == "" {
			return Locator{}, fmt.Errorf("empty locator")
		}
		return CSS(s), nil
	}
	if !strings.HasSuffix(s, ")") {
		return Locator{}, fmt.Errorf("locator %q: unterminated :has-text", s)
	}
	arg := strings.TrimSpace(s[i+len(pseudo) : len(s)-1])
	text, err := strconv.Unquote(arg)
	if err != nil {
		if len(arg) >= 2 && arg[0] == '\'' && arg[len(arg)-1] == '\'' {
			text = arg[1 : len(arg)-1]
		} else {
			return Locator{}, fmt.Errorf("locator %q: bad :has-text argument: %w", s, err)
		}
	}
	query := strings.TrimSpace(s[:i])
	if query == "" {
		query = "*"
	}
	return HasText(query, text), nil
}

// ParseLocators parses every entry of list.
func ParseLocators(list []string) ([]Locator, error) {
	out := make([]Locator, 0, len(list))
	for _, s := range list {
		loc, err := ParseLocator(s)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// Strings renders locators for logs and error messages.
func Strings(locs []Locator) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.String()
	}
	return out
}

// ErrNoMatch is matched by every NoMatchError.
var ErrNoMatch = errors.New("no candidate matched")

// Probe tries one candidate. It returns nil when the candidate was found and
// its action (fill, click, ...) completed.
type Probe func(ctx context.Context, loc Locator) error

// Attempt records a candidate that did not match.
type Attempt struct {
	Locator Locator
	Err     error
}

// Match is the winning candidate and the misses before it.
type Match struct {
	Locator  Locator
	Index    int
	Attempts []Attempt
}

// NoMatchError lists every candidate tried.
type NoMatchError struct {
	Attempts []Attempt
	Err      error // set when the parent context ended the search early
}

func (e *NoMatchError) Error() string {
	msg := fmt.Sprintf("%v: tried %s", ErrNoMatch, strings.Join(e.Tried(), " | "))
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatch
}

func (e *NoMatchError) Unwrap() error {
	return e.Err
}

// Tried returns the candidates in the order they were probed.
func (e *NoMatchError) Tried() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Locator.String()
	}
	return out
}

// ResolveFirstMatch probes candidates in order, each under its own timeout,
// and returns the first one whose probe succeeds. Later candidates are never
// probed once one matches.
//
// When the parent context ends the remaining candidates are skipped and the
// returned NoMatchError wraps the context error.
func ResolveFirstMatch(ctx context.Context, candidates []Locator, timeoutEach time.Duration, probe Probe) (Match, error) {
	var attempts []Attempt
	for i, loc := range candidates {
		if err := ctx.Err(); err != nil {
			return Match{Attempts: attempts}, &NoMatchError{Attempts: attempts, Err: err}
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeoutEach)
		err := probe(probeCtx, loc)
		cancel()

		if err == nil {
			return Match{Locator: loc, Index: i, Attempts: attempts}, nil
		}
		attempts = append(attempts, Attempt{Locator: loc, Err: err})
	}
	return Match{Attempts: attempts}, &NoMatchError{Attempts: attempts}
}
