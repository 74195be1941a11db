// Package search implements the location autocomplete that drives the birth
// data form: it debounces keystrokes, issues searches, drops stale responses
// and commits a chosen place into the form.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

// DefaultDebounce is the pause after the last keystroke before a search runs.
const DefaultDebounce = 300 * time.Millisecond

const (
	noResultsNotice     = "No locations found."
	troubleshootingHint = "An error occurred. Please try again. If the problem persists, check your connection or contact the site administrator."
)

// State is the autocomplete's lifecycle state.
type State int

const (
	Idle State = iota
	Debouncing
	InFlight
	Displaying
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case InFlight:
		return "in_flight"
	case Displaying:
		return "displaying"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Key is a navigation key.
type Key int

const (
	KeyDown Key = iota
	KeyUp
	KeyEnter
	KeyEscape
)

// Searcher runs a location search. *client.Client satisfies it.
type Searcher interface {
	SearchLocations(ctx context.Context, query string) ([]natal.LocationRecord, error)
}

// Timer is a pending debounce.
type Timer interface {
	Stop() bool
}

// Clock schedules debounce callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// LocationFields are the form inputs filled in when a place is committed.
type LocationFields struct {
	Location      string
	Latitude      string
	Longitude     string
	Timezone      string
	Offset        string
	OffsetRounded string
}

// Form is the birth data form bound to the autocomplete.
type Form interface {
	SetLocation(fields LocationFields)
	ClearLocation()
	// SelectionChanged asks the form to re-evaluate whether it can be submitted.
	SelectionChanged(confirmed bool)
}

// View is a snapshot of what the autocomplete displays.
type View struct {
	State      State
	Input      string
	Results    []natal.LocationRecord
	Open       bool
	Pointer    int // -1 when nothing is highlighted
	Notice     string
	Hint       string
	FieldError string
	Selected   *natal.LocationRecord
}

// Options configures a Client.
type Options struct {
	Debounce time.Duration
	// Timeout bounds each search call. Zero means 30s.
	Timeout time.Duration
	Clock   Clock
	// OnChange is called, outside the client's lock, after every change.
	OnChange func(View)
	Logger   *zap.Logger
}

// Client is the debounced location autocomplete.
type Client struct {
	searcher Searcher
	form     Form
	debounce time.Duration
	timeout  time.Duration
	clock    Clock
	onChange func(View)
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	input    string
	results  []natal.LocationRecord
	open     bool
	pointer  int
	notice   string
	hint     string
	fieldErr string
	selected *natal.LocationRecord

	timer    Timer
	timerGen uint64
	// seq identifies the latest issued search; responses carrying an older
	// value are discarded.
	seq uint64
}

// New binds an autocomplete to its searcher and form. Both are required.
func New(searcher Searcher, form Form, opts Options) (*Client, error) {
	if searcher == nil {
		return nil, errors.New("search: searcher is required")
	}
	if form == nil {
		return nil, errors.New("search: form is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		searcher: searcher,
		form:     form,
		debounce: opts.Debounce,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		onChange: opts.OnChange,
		logger:   opts.Logger.Named("search"),
		pointer:  -1,
	}, nil
}

// View returns the current display state.
func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Type handles a change of the search input.
func (c *Client) Type(input string) {
	c.mu.Lock()

	c.stopTimerLocked()

	clearedSelection := false
	if c.selected != nil && input != c.input {
		c.selected = nil
		clearedSelection = true
	}
	c.input = input
	c.fieldErr = ""

	if utf8.RuneCountInString(strings.TrimSpace(input)) < natal.MinQueryLength {
		c.resetResultsLocked()
		// Anything still in flight is now irrelevant.
		c.seq++
		c.state = Idle
	} else {
		gen := c.timerGen
		c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(gen) })
		c.state = Debouncing
	}

	view := c.viewLocked()
	c.mu.Unlock()

	if clearedSelection {
		c.form.ClearLocation()
		c.form.SelectionChanged(false)
	}
	c.notify(view)
}

// KeyDown handles navigation keys while the list is open.
func (c *Client) KeyDown(k Key) {
	c.mu.Lock()
	if !c.open || len(c.results) == 0 {
		c.mu.Unlock()
		return
	}

	n := len(c.results)
	switch k {
	case KeyDown:
		c.pointer = (c.pointer + 1) % n
	case KeyUp:
		if c.pointer <= 0 {
			c.pointer = n - 1
		} else {
			c.pointer--
		}
	case KeyEnter:
		if c.pointer < 0 {
			c.mu.Unlock()
			return
		}
		c.commitLocked(c.pointer)
		return
	case KeyEscape:
		c.open = false
		c.pointer = -1
	}

	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

// Hover highlights result i without committing it.
func (c *Client) Hover(i int) {
	c.mu.Lock()
	if !c.open || i < 0 || i >= len(c.results) {
		c.mu.Unlock()
		return
	}
	c.pointer = i
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

// Click commits result i.
func (c *Client) Click(i int) {
	c.mu.Lock()
	if !c.open || i < 0 || i >= len(c.results) {
		c.mu.Unlock()
		return
	}
	c.commitLocked(i)
}

// Clear empties the input, the results and any confirmed selection.
func (c *Client) Clear() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.seq++
	hadSelection := c.selected != nil
	c.selected = nil
	c.input = ""
	c.fieldErr = ""
	c.resetResultsLocked()
	c.state = Idle
	view := c.viewLocked()
	c.mu.Unlock()

	if hadSelection {
		c.form.ClearLocation()
		c.form.SelectionChanged(false)
	}
	c.notify(view)
}

// fire runs when a debounce timer elapses. gen guards against timers that
// fired after being superseded.
func (c *Client) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil

	query := strings.TrimSpace(c.input)
	c.seq++
	token := c.seq
	c.state = InFlight
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	go c.run(token, query)
}

func (c *Client) run(token uint64, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	records, err := c.searcher.SearchLocations(ctx, query)

	c.mu.Lock()
	if token != c.seq {
		c.mu.Unlock()
		c.logger.Debug("discarding stale response", zap.String("query", query))
		return
	}

	c.resetResultsLocked()
	switch {
	case err != nil:
		c.applyErrorLocked(err)
	case len(records) == 0:
		c.state = Displaying
		c.open = true
		c.notice = noResultsNotice
	default:
		c.state = Displaying
		c.results = records
		c.open = true
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
}

func (c *Client) applyErrorLocked(err error) {
	c.state = Error

	var e *natal.Error
	if errors.As(err, &e) && e.Kind == natal.KindValidation {
		c.fieldErr = e.Message
		return
	}

	c.open = true
	c.notice = "An error occurred. Please try again."
	if e != nil && e.Message != "" {
		c.notice = e.Message
	}
	c.hint = troubleshootingHint
	c.logger.Warn("location search failed", zap.Error(err))
}

// commitLocked fills the form from result i. It releases the lock.
func (c *Client) commitLocked(i int) {
	rec := c.results[i]
	c.selected = &rec
	c.input = rec.Label
	c.open = false
	c.pointer = -1
	c.state = Idle
	c.fieldErr = ""

	// An unknown offset stays blank rather than posing as UTC.
	var offsetRounded string
	if rec.UTCOffsetRounded != nil {
		offsetRounded = natal.FormatOffset(*rec.UTCOffsetRounded)
	}

	fields := LocationFields{
		Location:      rec.Label,
		Latitude:      natal.FormatCoordinate(rec.Latitude),
		Longitude:     natal.FormatCoordinate(rec.Longitude),
		Timezone:      rec.Timezone,
		Offset:        rec.UTCOffset,
		OffsetRounded: offsetRounded,
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.form.SetLocation(fields)
	c.form.SelectionChanged(true)
	c.notify(view)
}

func (c *Client) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) resetResultsLocked() {
	c.results = nil
	c.open = false
	c.pointer = -1
	c.notice = ""
	c.hint = ""
}

func (c *Client) viewLocked() View {
	v := View{
		State:      c.state,
		Input:      c.input,
		Open:       c.open,
		Pointer:    c.pointer,
		Notice:     c.notice,
		Hint:       c.hint,
		FieldError: c.fieldErr,
	}
	if c.results != nil {
		v.Results = append([]natal.LocationRecord(nil), c.results...)
	}
	if c.selected != nil {
		sel := *c.selected
		v.Selected = &sel
	}
	return v
}

func (c *Client) notify(v View) {
	if c.onChange != nil {
		c.onChange(v)
	}
}
