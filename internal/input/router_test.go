package input

import (
	"errors"
	"testing"

	"github.com/panebridge/panebridge/internal/registry"
)

type fakeSender struct {
	keys       []string
	interrupts int
	failOn     string
}

func (f *fakeSender) SendKeys(target, keys string, enter bool) error {
	if f.failOn != "" && keys == f.failOn {
		return errors.New("pane gone")
	}
	f.keys = append(f.keys, keys)
	return nil
}

func (f *fakeSender) SendInterrupt(target string) error {
	f.interrupts++
	return nil
}

func TestSendIdleDeliversImmediately(t *testing.T) {
	fs := &fakeSender{}
	r := NewRouter(fs)

	queued, err := r.Send("s1", "%1", registry.StatusIdle, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if queued {
		t.Error("idle send reported queued")
	}
	if len(fs.keys) != 1 || fs.keys[0] != "hello" {
		t.Errorf("delivered keys = %v", fs.keys)
	}
}

func TestSendWorkingEnqueues(t *testing.T) {
	fs := &fakeSender{}
	r := NewRouter(fs)

	queued, err := r.Send("s1", "%1", registry.StatusWorking, "later")
	if err != nil || !queued {
		t.Fatalf("Send = (%v, %v), want queued", queued, err)
	}
	if len(fs.keys) != 0 {
		t.Errorf("working send delivered immediately: %v", fs.keys)
	}
	if r.QueueLen("s1") != 1 {
		t.Errorf("queue length = %d, want 1", r.QueueLen("s1"))
	}
}

func TestSendOfflineRejected(t *testing.T) {
	r := NewRouter(&fakeSender{})

	if _, err := r.Send("s1", "%1", registry.StatusOffline, "x"); !errors.Is(err, ErrOffline) {
		t.Errorf("Send to offline session: err = %v, want ErrOffline", err)
	}
	if r.QueueLen("s1") != 0 {
		t.Error("offline send was queued")
	}
}

func TestFlushQueueDeliversInOrder(t *testing.T) {
	fs := &fakeSender{}
	r := NewRouter(fs)

	r.Send("s1", "%1", registry.StatusWorking, "first")
	r.Send("s1", "%1", registry.StatusWorking, "second")
	r.Send("s1", "%1", registry.StatusWorking, "third")

	if n := r.FlushQueue("s1", "%1"); n != 3 {
		t.Fatalf("FlushQueue delivered %d, want 3", n)
	}
	want := []string{"first", "second", "third"}
	for i, k := range want {
		if fs.keys[i] != k {
			t.Errorf("delivery[%d] = %q, want %q", i, fs.keys[i], k)
		}
	}
	if r.QueueLen("s1") != 0 {
		t.Error("queue not empty after full flush")
	}
}

func TestFlushQueueStopsAtFirstFailure(t *testing.T) {
	fs := &fakeSender{failOn: "bad"}
	r := NewRouter(fs)

	r.Send("s1", "%1", registry.StatusWorking, "ok")
	r.Send("s1", "%1", registry.StatusWorking, "bad")
	r.Send("s1", "%1", registry.StatusWorking, "after")

	if n := r.FlushQueue("s1", "%1"); n != 1 {
		t.Fatalf("FlushQueue delivered %d, want 1", n)
	}
	if len(fs.keys) != 1 || fs.keys[0] != "ok" {
		t.Errorf("delivered = %v, want [ok]", fs.keys)
	}
	// The failed entry is dropped; later entries survive for the next flush.
	if r.QueueLen("s1") != 1 {
		t.Fatalf("queue length after failure = %d, want 1", r.QueueLen("s1"))
	}
	if n := r.FlushQueue("s1", "%1"); n != 1 {
		t.Errorf("second FlushQueue delivered %d, want 1", n)
	}
	if fs.keys[len(fs.keys)-1] != "after" {
		t.Errorf("last delivery = %q, want %q", fs.keys[len(fs.keys)-1], "after")
	}
}

func TestInterruptClearsQueue(t *testing.T) {
	fs := &fakeSender{}
	r := NewRouter(fs)

	r.Send("s1", "%1", registry.StatusWorking, "stale")
	r.Send("s1", "%1", registry.StatusWorking, "staler")

	if err := r.Interrupt("s1", "%1"); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if fs.interrupts != 1 {
		t.Errorf("interrupts sent = %d, want 1", fs.interrupts)
	}
	if r.QueueLen("s1") != 0 {
		t.Errorf("queue length after interrupt = %d, want 0", r.QueueLen("s1"))
	}
	if len(fs.keys) != 0 {
		t.Errorf("interrupt delivered queued input: %v", fs.keys)
	}
}

func TestQueuesAreIndependent(t *testing.T) {
	fs := &fakeSender{}
	r := NewRouter(fs)

	r.Send("s1", "%1", registry.StatusWorking, "a")
	r.Send("s2", "%2", registry.StatusWorking, "b")

	r.Interrupt("s1", "%1")
	if r.QueueLen("s2") != 1 {
		t.Error("interrupting s1 cleared s2's queue")
	}
}
