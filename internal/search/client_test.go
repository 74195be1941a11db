package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

type reply struct {
	records []natal.LocationRecord
	err     error
}

type call struct {
	query string
	reply chan reply
}

// fakeSearcher hands every call to the test, which answers it explicitly.
type fakeSearcher struct {
	calls chan call
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{calls: make(chan call, 16)}
}

func (f *fakeSearcher) SearchLocations(ctx context.Context, query string) ([]natal.LocationRecord, error) {
	c := call{query: query, reply: make(chan reply, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.records, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSearcher) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a search call")
		return call{}
	}
}

func (f *fakeSearcher) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected search for %q", c.query)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeForm struct {
	mu        sync.Mutex
	fields    LocationFields
	cleared   int
	confirmed []bool
}

func (f *fakeForm) SetLocation(fields LocationFields) {
	f.mu.Lock()
	f.fields = fields
	f.mu.Unlock()
}

func (f *fakeForm) ClearLocation() {
	f.mu.Lock()
	f.fields = LocationFields{}
	f.cleared++
	f.mu.Unlock()
}

func (f *fakeForm) SelectionChanged(confirmed bool) {
	f.mu.Lock()
	f.confirmed = append(f.confirmed, confirmed)
	f.mu.Unlock()
}

func (f *fakeForm) snapshot() (LocationFields, int, []bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields, f.cleared, append([]bool(nil), f.confirmed...)
}

var london = []natal.LocationRecord{
	{ID: 1, Label: "London, England, United Kingdom", Latitude: 51.5074, Longitude: -0.1278, Timezone: "Europe/London", UTCOffset: "+00:00"},
	{ID: 2, Label: "London, Ontario, Canada", Latitude: 42.9849, Longitude: -81.2453, Timezone: "America/Toronto", UTCOffset: "-05:00", UTCOffsetRounded: natal.Float64(-5)},
	{ID: 3, Label: "London, Kentucky, United States", Latitude: 37.129, Longitude: -84.0833, Timezone: "America/New_York", UTCOffset: "-05:00", UTCOffsetRounded: natal.Float64(-5)},
}

type harness struct {
	client   *Client
	clock    *fakeClock
	searcher *fakeSearcher
	form     *fakeForm
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{}, searcher: newFakeSearcher(), form: &fakeForm{}}
	c, err := New(h.searcher, h.form, Options{Clock: h.clock})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.client = c
	return h
}

func (h *harness) waitFor(t *testing.T, what string, ok func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v := h.client.View()
		if ok(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; view=%+v", what, v)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// search types query, lets the debounce elapse and answers with records.
func (h *harness) search(t *testing.T, query string, records []natal.LocationRecord) View {
	t.Helper()
	h.client.Type(query)
	h.clock.Advance(DefaultDebounce)
	c := h.searcher.next(t)
	c.reply <- reply{records: records}
	return h.waitFor(t, "results", func(v View) bool { return v.State == Displaying })
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, &fakeForm{}, Options{}); err == nil {
		t.Fatalf("expected error without searcher")
	}
	if _, err := New(newFakeSearcher(), nil, Options{}); err == nil {
		t.Fatalf("expected error without form")
	}
}

func TestDebounceMinimumLength(t *testing.T) {
	h := newHarness(t)

	h.client.Type("N")
	if st := h.client.View().State; st != Idle {
		t.Fatalf("single character should stay idle, got %s", st)
	}
	h.clock.Advance(time.Second)
	h.searcher.none(t)

	h.client.Type("Ne")
	if st := h.client.View().State; st != Debouncing {
		t.Fatalf("expected debouncing, got %s", st)
	}
	h.clock.Advance(DefaultDebounce - time.Millisecond)
	h.searcher.none(t)

	h.clock.Advance(time.Millisecond)
	if c := h.searcher.next(t); c.query != "Ne" {
		t.Fatalf("expected search for Ne, got %q", c.query)
	}
}

func TestDebounceRestartsOnEachKeystroke(t *testing.T) {
	h := newHarness(t)

	h.client.Type("Lo")
	h.clock.Advance(200 * time.Millisecond)
	h.client.Type("Lon")
	h.clock.Advance(200 * time.Millisecond)
	h.client.Type("Lond")
	h.clock.Advance(200 * time.Millisecond)
	h.searcher.none(t)

	h.clock.Advance(100 * time.Millisecond)
	if c := h.searcher.next(t); c.query != "Lond" {
		t.Fatalf("expected only the last input to be searched, got %q", c.query)
	}
	h.searcher.none(t)
}

func TestKeyboardSelection(t *testing.T) {
	h := newHarness(t)
	v := h.search(t, "London", london)
	if !v.Open || len(v.Results) != 3 || v.Pointer != -1 {
		t.Fatalf("unexpected view %+v", v)
	}

	h.client.KeyDown(KeyDown)
	h.client.KeyDown(KeyDown)
	if p := h.client.View().Pointer; p != 1 {
		t.Fatalf("pointer = %d, want 1", p)
	}
	h.client.KeyDown(KeyEnter)

	v = h.client.View()
	if v.Selected == nil || v.Selected.ID != 2 {
		t.Fatalf("expected second record committed, got %+v", v.Selected)
	}
	if v.Open || v.State != Idle || v.Input != "London, Ontario, Canada" {
		t.Fatalf("unexpected view after commit %+v", v)
	}

	fields, _, confirmed := h.form.snapshot()
	want := LocationFields{
		Location:      "London, Ontario, Canada",
		Latitude:      "42.9849",
		Longitude:     "-81.2453",
		Timezone:      "America/Toronto",
		Offset:        "-05:00",
		OffsetRounded: "-5",
	}
	if fields != want {
		t.Fatalf("form fields = %+v, want %+v", fields, want)
	}
	if len(confirmed) != 1 || !confirmed[0] {
		t.Fatalf("form not notified of confirmed selection: %v", confirmed)
	}
}

func TestPointerWrapsAround(t *testing.T) {
	h := newHarness(t)
	h.search(t, "London", london)

	h.client.KeyDown(KeyUp)
	if p := h.client.View().Pointer; p != 2 {
		t.Fatalf("up from nothing should wrap to last, got %d", p)
	}
	h.client.KeyDown(KeyDown)
	if p := h.client.View().Pointer; p != 0 {
		t.Fatalf("down from last should wrap to first, got %d", p)
	}
	h.client.KeyDown(KeyUp)
	if p := h.client.View().Pointer; p != 2 {
		t.Fatalf("up from first should wrap to last, got %d", p)
	}
}

func TestEscapeAndHover(t *testing.T) {
	h := newHarness(t)
	h.search(t, "London", london)

	h.client.Hover(2)
	v := h.client.View()
	if v.Pointer != 2 || v.Selected != nil {
		t.Fatalf("hover must move the pointer without committing: %+v", v)
	}

	h.client.KeyDown(KeyEscape)
	v = h.client.View()
	if v.Open || v.Selected != nil {
		t.Fatalf("escape must close without selecting: %+v", v)
	}

	// Keys are ignored while closed.
	h.client.KeyDown(KeyEnter)
	if h.client.View().Selected != nil {
		t.Fatalf("enter on a closed list must not commit")
	}
}

func TestClickCommits(t *testing.T) {
	h := newHarness(t)
	h.search(t, "London", london)

	h.client.Click(0)
	v := h.client.View()
	if v.Selected == nil || v.Selected.ID != 1 {
		t.Fatalf("expected first record committed, got %+v", v.Selected)
	}
}

func TestOffsetPrecision(t *testing.T) {
	cases := []struct {
		offset float64
		want   string
	}{
		{5.5, "5.5"},
		{-9.75, "-9.75"},
		{5.75, "5.75"},
		{0, "0"},
		{-3.5, "-3.5"},
	}
	for _, tc := range cases {
		h := newHarness(t)
		h.search(t, "Somewhere", []natal.LocationRecord{
			{ID: 9, Label: "Somewhere", Latitude: 1.25, Longitude: -2.5, Timezone: "Etc/Test", UTCOffsetRounded: natal.Float64(tc.offset)},
		})
		h.client.Click(0)

		fields, _, _ := h.form.snapshot()
		if fields.OffsetRounded != tc.want {
			t.Fatalf("offset %v rendered as %q, want %q", tc.offset, fields.OffsetRounded, tc.want)
		}
	}
}

func TestUnknownOffsetLeftBlank(t *testing.T) {
	h := newHarness(t)
	h.search(t, "Accra", []natal.LocationRecord{
		{ID: 4, Label: "Accra, Ghana", Latitude: 5.6037, Longitude: -0.187, Timezone: "Africa/Accra", UTCOffset: "+00:00"},
	})
	h.client.Click(0)

	fields, _, _ := h.form.snapshot()
	if fields.OffsetRounded != "" || fields.Timezone != "Africa/Accra" {
		t.Fatalf("unexpected form fields %+v", fields)
	}
}

func TestEditingAfterCommitClearsSelection(t *testing.T) {
	h := newHarness(t)
	h.search(t, "London", london)
	h.client.Click(1)

	h.client.Type("London, Ontario, Canad")

	v := h.client.View()
	if v.Selected != nil {
		t.Fatalf("selection should be cleared after editing")
	}
	fields, cleared, confirmed := h.form.snapshot()
	if cleared != 1 || fields != (LocationFields{}) {
		t.Fatalf("form location not cleared: %d %+v", cleared, fields)
	}
	if len(confirmed) != 2 || confirmed[1] {
		t.Fatalf("form not told the selection is gone: %v", confirmed)
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	h := newHarness(t)

	h.client.Type("Lon")
	h.clock.Advance(DefaultDebounce)
	first := h.searcher.next(t)

	h.client.Type("Paris")
	h.clock.Advance(DefaultDebounce)
	second := h.searcher.next(t)

	second.reply <- reply{records: []natal.LocationRecord{{ID: 7, Label: "Paris, France", Timezone: "Europe/Paris"}}}
	h.waitFor(t, "paris results", func(v View) bool { return v.State == Displaying })

	first.reply <- reply{records: london}
	// Give the stale response time to arrive.
	time.Sleep(50 * time.Millisecond)

	v := h.client.View()
	if len(v.Results) != 1 || v.Results[0].ID != 7 {
		t.Fatalf("stale response overwrote newer results: %+v", v.Results)
	}
}

func TestShortInputInvalidatesInFlightSearch(t *testing.T) {
	h := newHarness(t)

	h.client.Type("Lon")
	h.clock.Advance(DefaultDebounce)
	pending := h.searcher.next(t)

	h.client.Type("L")
	pending.reply <- reply{records: london}
	time.Sleep(50 * time.Millisecond)

	v := h.client.View()
	if v.State != Idle || v.Open || len(v.Results) != 0 {
		t.Fatalf("response for abandoned input must be ignored: %+v", v)
	}
}

func TestEmptyResultsNotice(t *testing.T) {
	h := newHarness(t)
	v := h.search(t, "Atlantis", nil)

	if v.Notice != "No locations found." || len(v.Results) != 0 {
		t.Fatalf("unexpected view %+v", v)
	}
	h.client.KeyDown(KeyDown)
	if h.client.View().Pointer != -1 {
		t.Fatalf("nothing to navigate")
	}
}

func TestErrorDisplay(t *testing.T) {
	h := newHarness(t)
	h.client.Type("London")
	h.clock.Advance(DefaultDebounce)
	h.searcher.next(t).reply <- reply{err: natal.NewUpstreamError(503, "Service Unavailable - API service temporarily unavailable.")}

	v := h.waitFor(t, "error", func(v View) bool { return v.State == Error })
	if v.Notice != "Service Unavailable - API service temporarily unavailable." || v.Hint == "" {
		t.Fatalf("expected notice and hint, got %+v", v)
	}
	if v.FieldError != "" {
		t.Fatalf("upstream errors are not field errors")
	}

	h.client.Type("Lo")
	h.clock.Advance(DefaultDebounce)
	h.searcher.next(t).reply <- reply{err: natal.ErrQueryTooShort()}

	v = h.waitFor(t, "validation error", func(v View) bool { return v.State == Error })
	if v.FieldError == "" || v.Notice != "" || v.Hint != "" {
		t.Fatalf("validation errors belong to the location field: %+v", v)
	}
}

func TestClear(t *testing.T) {
	h := newHarness(t)
	h.search(t, "London", london)
	h.client.Click(0)

	h.client.Clear()
	v := h.client.View()
	if v.Input != "" || v.Selected != nil || v.State != Idle {
		t.Fatalf("unexpected view after clear %+v", v)
	}
	if _, cleared, _ := h.form.snapshot(); cleared != 1 {
		t.Fatalf("form location not cleared")
	}
}

func TestOnChangeCalledOutsideLock(t *testing.T) {
	clock := &fakeClock{}
	var c *Client
	var views []View
	var mu sync.Mutex

	c, err := New(newFakeSearcher(), &fakeForm{}, Options{
		Clock: clock,
		OnChange: func(v View) {
			// Reading the view here would deadlock if the lock were held.
			_ = c.View()
			mu.Lock()
			views = append(views, v)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Type("Be")
	mu.Lock()
	defer mu.Unlock()
	if len(views) != 1 || views[0].State != Debouncing {
		t.Fatalf("unexpected notifications %+v", views)
	}
}
