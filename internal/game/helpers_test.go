package game

import (
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"topthat/internal/cards"
	"topthat/internal/history"
)

type sentMsg struct {
	conn    string
	event   string
	payload any
}

// outbox records everything a session sends.
type outbox struct {
	mu   sync.Mutex
	msgs []sentMsg
}

func (o *outbox) Send(connID, event string, payload any) {
	o.mu.Lock()
	o.msgs = append(o.msgs, sentMsg{conn: connID, event: event, payload: payload})
	o.mu.Unlock()
}

func (o *outbox) to(conn, event string) []any {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []any
	for _, m := range o.msgs {
		if m.conn == conn && m.event == event {
			out = append(out, m.payload)
		}
	}
	return out
}

func (o *outbox) reset() {
	o.mu.Lock()
	o.msgs = nil
	o.mu.Unlock()
}

// manualScheduler only moves when the test advances it.
type manualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	s       *manualScheduler
	at      time.Time
	seq     int
	f       func()
	stopped bool
	done    bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{s: m, at: m.now.Add(d), seq: m.seq, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

func (m *manualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance runs every task due within d, in due order, including tasks the
// callbacks schedule along the way.
func (m *manualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		var next *manualTask
		for _, t := range m.tasks {
			if t.done || t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.done = true
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()
		next.f()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *manualScheduler) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.done && !t.stopped {
			n++
		}
	}
	return n
}

type fixture struct {
	s         *Session
	out       *outbox
	sched     *manualScheduler
	rec       *history.Memory
	destroyed []string
}

func testTiming() Timing {
	return Timing{
		ComputerDelay:        2 * time.Second,
		ComputerSpecialDelay: 3 * time.Second,
		RejoinResumeDelay:    250 * time.Millisecond,
		ShutdownGrace:        3 * time.Minute,
	}
}

func newFixture(t *testing.T, timing Timing) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	f := &fixture{out: &outbox{}, sched: newManualScheduler(), rec: &history.Memory{}}
	f.s = NewSession(Options{
		Code:        "ROOM01",
		Timing:      timing,
		Outbox:      f.out,
		Scheduler:   f.sched,
		Rand:        rand.New(rand.NewSource(42)),
		Recorder:    f.rec,
		Log:         logrus.NewEntry(log),
		OnDestroyed: func(code string) { f.destroyed = append(f.destroyed, code) },
	})
	return f
}

func (f *fixture) join(t *testing.T, id, humans, cpus int) JoinResult {
	t.Helper()
	pid := []string{"h", "g", "x", "y"}[id]
	f.s.newID = func() string { return pid }
	defer func() { f.s.newID = uuid.NewString }()
	res, err := f.s.Join("c-"+pid, JoinRequest{Name: "P " + pid, HumanCount: humans, ComputerCount: cpus})
	require.NoError(t, err)
	return res
}

// pair returns a started two-human game with h to move.
func pair(t *testing.T, timing Timing) *fixture {
	t.Helper()
	f := newFixture(t, timing)
	f.join(t, 0, 2, 0)
	f.join(t, 1, 2, 0)
	require.Equal(t, StateInProgress, f.s.state)
	require.Equal(t, "h", f.s.table.CurrentID())
	return f
}

// rig lets a test set up exact card positions.
func (f *fixture) rig(fn func(t *Table, p map[string]*Player)) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	fn(f.s.table, f.s.players)
}

func hand(vs ...string) []cards.Card {
	out := make([]cards.Card, len(vs))
	for i, v := range vs {
		out[i] = cards.Card{Value: v, Suit: cards.Clubs}
	}
	cards.SortByRank(out)
	return out
}

func up(vs ...string) []*cards.Card {
	out := make([]*cards.Card, len(vs))
	for i, v := range vs {
		if v != "" {
			out[i] = &cards.Card{Value: v, Suit: cards.Hearts}
		}
	}
	return out
}

func sortedValues(cs []cards.Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = cards.Normalize(c.Value)
	}
	sort.Strings(out)
	return out
}
