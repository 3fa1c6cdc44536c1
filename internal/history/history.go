// Package history keeps a log of accepted game actions.
package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Action types.
const (
	Join       = "join"
	Rejoin     = "rejoin"
	Leave      = "leave"
	Disconnect = "disconnect"
	Start      = "start"
	Play       = "play"
	PickUp     = "pickUp"
	GameOver   = "gameOver"
)

type Action struct {
	Room     string    `json:"room"`
	Type     string    `json:"type"`
	PlayerID string    `json:"playerId,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}

// Recorder must not block the caller.
type Recorder interface {
	Record(a Action)
}

type Nop struct{}

func (Nop) Record(Action) {}

// Memory keeps actions in process.
type Memory struct {
	mu      sync.Mutex
	actions []Action
}

func (m *Memory) Record(a Action) {
	m.mu.Lock()
	m.actions = append(m.actions, a)
	m.mu.Unlock()
}

func (m *Memory) Actions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Action(nil), m.actions...)
}

// Types lists the recorded action types in order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.actions))
	for i, a := range m.actions {
		out[i] = a.Type
	}
	return out
}

// RedisRecorder pushes JSON actions onto a redis list.
type RedisRecorder struct {
	rdb     *redis.Client
	key     string
	timeout time.Duration
	log     *logrus.Logger
	wg      sync.WaitGroup
}

// NewRedisRecorder connects and pings the server at url.
func NewRedisRecorder(ctx context.Context, url, key string, log *logrus.Logger) (*RedisRecorder, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisRecorder{rdb: rdb, key: key, timeout: 2 * time.Second, log: log}, nil
}

func (r *RedisRecorder) Record(a Action) {
	if r == nil || r.rdb == nil {
		return
	}
	b, err := json.Marshal(a)
	if err != nil {
		r.log.WithError(err).WithField("type", a.Type).Warn("history: marshal action")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.rdb.RPush(ctx, r.key, b).Err(); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"room": a.Room, "type": a.Type}).Warn("history: push action")
		}
	}()
}

// Close waits for in-flight writes and closes the client.
func (r *RedisRecorder) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	r.wg.Wait()
	return r.rdb.Close()
}
