package httpmw

import (
	"context"
	"sync"

	"github.com/aastar/faucet/internal/log"
)

// spyLogger records Info and Error calls together with fields added via With.
type spyLogger struct {
	log.Logger
	mu     *sync.Mutex
	fields []any
	infos  *[]spyEntry
	errors *[]spyEntry
}

type spyEntry struct {
	msg    string
	err    error
	fields []any
	kv     []any
}

func newSpyLogger() *spyLogger {
	return &spyLogger{
		Logger: log.Nop(),
		mu:     &sync.Mutex{},
		infos:  &[]spyEntry{},
		errors: &[]spyEntry{},
	}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	next := *s
	next.fields = append(append([]any{}, s.fields...), kv...)
	return &next
}

func (s *spyLogger) Info(_ context.Context, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.infos = append(*s.infos, spyEntry{msg: msg, fields: s.fields, kv: kv})
}

func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.errors = append(*s.errors, spyEntry{msg: msg, err: err, fields: s.fields, kv: kv})
}

func (s *spyLogger) lastInfo() (spyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(*s.infos) == 0 {
		return spyEntry{}, false
	}
	return (*s.infos)[len(*s.infos)-1], true
}

func (s *spyLogger) lastError() (spyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(*s.errors) == 0 {
		return spyEntry{}, false
	}
	return (*s.errors)[len(*s.errors)-1], true
}

// field returns the value for key in a flat kv slice.
func field(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1], true
		}
	}
	return nil, false
}
