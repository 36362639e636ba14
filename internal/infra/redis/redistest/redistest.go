// Package redistest serves go-redis commands from memory through a client
// hook, so code taking a *redis.Client can be tested without a server.
package redistest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store answers GET, SET, INCR, EXPIRE and the MULTI/EXEC wrapper of
// transactional pipelines. Unknown commands fail.
type Store struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	calls  map[string]int
	err    error
}

// NewClient returns a client whose commands never leave the process,
// together with the store backing it.
func NewClient() (*redis.Client, *Store) {
	s := &Store{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(s)
	return rdb, s
}

// FailWith makes every following command return err. nil restores service.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Value returns the raw string stored at key.
func (s *Store) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// TTL returns the expiry last set on key.
func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Calls counts commands by lowercase name.
func (s *Store) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *Store) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("redistest: dial %s refused", addr)
	}
}

func (s *Store) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.apply(cmd)
	}
}

func (s *Store) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var first error
		for _, cmd := range cmds {
			if err := s.apply(cmd); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

func (s *Store) apply(cmd redis.Cmder) error {
	name := cmd.Name()
	s.calls[name]++
	if s.err != nil {
		cmd.SetErr(s.err)
		return s.err
	}

	args := cmd.Args()
	switch c := cmd.(type) {
	case *redis.StringCmd:
		if name == "get" {
			v, ok := s.values[key(args)]
			if !ok {
				c.SetErr(redis.Nil)
				return redis.Nil
			}
			c.SetVal(v)
			return nil
		}
	case *redis.StatusCmd:
		switch name {
		case "multi":
			c.SetVal("OK")
			return nil
		case "set":
			k := key(args)
			s.values[k] = fmt.Sprint(args[2])
			delete(s.ttls, k)
			if len(args) == 5 {
				s.ttls[k] = expiry(args[3], args[4])
			}
			c.SetVal("OK")
			return nil
		}
	case *redis.IntCmd:
		if name == "incr" {
			k := key(args)
			n, _ := strconv.ParseInt(s.values[k], 10, 64)
			n++
			s.values[k] = strconv.FormatInt(n, 10)
			c.SetVal(n)
			return nil
		}
	case *redis.BoolCmd:
		if name == "expire" {
			k := key(args)
			if _, ok := s.values[k]; !ok {
				c.SetVal(false)
				return nil
			}
			nx := len(args) > 3 && strings.EqualFold(fmt.Sprint(args[3]), "nx")
			if _, has := s.ttls[k]; has && nx {
				c.SetVal(false)
				return nil
			}
			s.ttls[k] = expiry("ex", args[2])
			c.SetVal(true)
			return nil
		}
	case *redis.SliceCmd:
		if name == "exec" {
			return nil
		}
	}

	err := fmt.Errorf("redistest: unsupported command %q", name)
	cmd.SetErr(err)
	return err
}

func key(args []interface{}) string {
	return fmt.Sprint(args[1])
}

func expiry(unit, amount interface{}) time.Duration {
	n, _ := strconv.ParseInt(fmt.Sprint(amount), 10, 64)
	if strings.EqualFold(fmt.Sprint(unit), "px") {
		return time.Duration(n) * time.Millisecond
	}
	return time.Duration(n) * time.Second
}
