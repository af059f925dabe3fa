package system

import (
	"context"
	"errors"
	"testing"
)

type recordedService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (s *recordedService) Name() string { return s.name }

func (s *recordedService) Start(context.Context) error {
	*s.log = append(*s.log, "start:"+s.name)
	return s.startErr
}

func (s *recordedService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop:"+s.name)
	return s.stopErr
}

func TestManagerStartStopOrder(t *testing.T) {
	var log []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordedService{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var log []string
	m := NewManager()
	_ = m.Register(&recordedService{name: "a", log: &log})
	_ = m.Register(&recordedService{name: "b", log: &log, startErr: errors.New("boom")})
	_ = m.Register(&recordedService{name: "c", log: &log})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("start should propagate the failure")
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %s, want %s", i, log[i], want[i])
		}
	}
}

func TestManagerRegisterGuards(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "dup"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "dup"}); err == nil {
		t.Fatal("duplicate name should be rejected")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "late"}); err == nil {
		t.Fatal("registration after start should be rejected")
	}
}

func TestManagerStopReturnsFirstError(t *testing.T) {
	var log []string
	m := NewManager()
	_ = m.Register(&recordedService{name: "a", log: &log, stopErr: errors.New("a failed")})
	_ = m.Register(&recordedService{name: "b", log: &log, stopErr: errors.New("b failed")})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := m.Stop(context.Background())
	if err == nil {
		t.Fatal("stop should report an error")
	}
	// Reverse order: b stops first, so its error is reported.
	if got := err.Error(); got != "stop b: b failed" {
		t.Fatalf("err = %q", got)
	}
	if len(log) != 4 {
		t.Fatalf("all services must be stopped, log = %v", log)
	}
}
