package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/classfile"
	"github.com/chazu/jasm/resolver"
)

// busy occupies w's goroutine until the returned func is called.
func busy(t *testing.T, w *Worker) func() {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	go w.Do(bg(), func(*resolver.Resolver) any {
		close(started)
		<-release
		return nil
	})
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the request")
	}
	return func() { close(release) }
}

func TestWorkerDoHonorsContext(t *testing.T) {
	w := NewWorker(nil)
	defer w.Stop()
	release := busy(t, w)
	defer release()

	ctx, cancel := context.WithTimeout(bg(), 50*time.Millisecond)
	defer cancel()
	_, err := w.Do(ctx, func(*resolver.Resolver) any { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestAssembleHonorsContextWhileWorkerBusy(t *testing.T) {
	w := NewWorker(nil)
	defer w.Stop()
	svc := NewAssemblerService(w, asm.DefaultOptions())
	release := busy(t, w)
	defer release()

	ctx, cancel := context.WithTimeout(bg(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Assemble(ctx, &AssembleRequest{Source: helloSource})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestWorkerResolverIsPrivate(t *testing.T) {
	w := NewWorker(nil)
	defer w.Stop()

	first, err := w.Resolver(bg())
	if err != nil {
		t.Fatal(err)
	}
	depth := first.Depth()
	first.Push(resolver.NewSnapshot(&resolver.ClassInfo{Name: "lib/Util", Super: classfile.ObjectClass}))

	second, err := w.Resolver(bg())
	if err != nil {
		t.Fatal(err)
	}
	if second.Depth() != depth {
		t.Errorf("Depth = %d, want %d", second.Depth(), depth)
	}
	if second.HasClass("lib/Util") {
		t.Error("scope pushed on one fork is visible in another")
	}
}

func TestWorkerStopTwice(t *testing.T) {
	w := NewWorker(nil)
	w.Stop()
	w.Stop()
	if _, err := w.Resolver(bg()); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

func TestServerStopWhileServing(t *testing.T) {
	s := New(nil, asm.DefaultOptions())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	s.Stop()
	s.Stop()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServeAfterStop(t *testing.T) {
	s := New(nil, asm.DefaultOptions())
	s.Stop()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Serve(ln); err != nil {
		t.Errorf("Serve = %v, want nil", err)
	}
}

func TestContextErrorCodes(t *testing.T) {
	if got := connect.CodeOf(connectError(context.Canceled)); got != connect.CodeCanceled {
		t.Errorf("connect code = %v, want %v", got, connect.CodeCanceled)
	}
	if got := connect.CodeOf(connectError(context.DeadlineExceeded)); got != connect.CodeDeadlineExceeded {
		t.Errorf("connect code = %v, want %v", got, connect.CodeDeadlineExceeded)
	}
	if got := status.Code(grpcError(context.DeadlineExceeded)); got != codes.DeadlineExceeded {
		t.Errorf("grpc code = %v, want %v", got, codes.DeadlineExceeded)
	}
	if got := status.Code(grpcError(errors.New("boom"))); got != codes.Internal {
		t.Errorf("grpc code = %v, want %v", got, codes.Internal)
	}
}
