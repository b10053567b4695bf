package server

import (
	"context"
	"os"
	"testing"

	"github.com/chazu/jasm/asm"
	"github.com/chazu/jasm/resolver"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// One worker over the base types serves every service test. Tests that
// swap the resolver create their own.
// ---------------------------------------------------------------------------

var (
	testWorker  *Worker
	testService *AssemblerService
)

func TestMain(m *testing.M) {
	testWorker = NewWorker(resolver.New())
	testService = NewAssemblerService(testWorker, asm.DefaultOptions())

	code := m.Run()

	testWorker.Stop()
	os.Exit(code)
}

func bg() context.Context {
	return context.Background()
}

const helloSource = `.package demo
.class Hello public
.method void main public static
  .parameter java.lang.String[] args
        getstatic java.lang.System.out
        ldc "hello"
        invokevirtual java.io.PrintStream.println(Ljava.lang.String;)V
        return
.end main
.end Hello
`

const brokenSource = `.class Bad
.method void f static
  .var int count
        iload cuont
        return
.end f
.end Bad
`
