package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	ioexec "github.com/fzft/go-ioexec"
	"github.com/fzft/go-ioexec/deps/linenoise"
	"github.com/fzft/go-ioexec/log"
)

const (
	ProbeHistFileEnv     = "IOPROBE_HISTFILE"
	ProbeHistFileDefault = ".ioprobe_history"
	ProbeOpTimeout       = 10 * time.Second
)

type probe struct {
	pool *ioexec.ExecutorServiceProvider
}

func main() {
	numExecutors := flag.Int("executors", 3, "number of pooled executors")
	debug := flag.Bool("debug", false, "enable debug logging")
	closeBudget := flag.Duration("close-budget", 3*time.Second, "total shutdown budget for the pool")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}

	p := &probe{pool: ioexec.NewExecutorServiceProvider(*numExecutors)}
	defer p.pool.Close(*closeBudget)

	if isatty.IsTerminal(os.Stdin.Fd()) {
		p.repl()
	} else {
		p.batch()
	}
}

func (p *probe) repl() {
	ln := linenoise.New()
	defer ln.Close()

	histFile := os.Getenv(ProbeHistFileEnv)
	if histFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			histFile = filepath.Join(home, ProbeHistFileDefault)
		}
	}
	if histFile != "" {
		ln.HistoryLoad(histFile)
		defer ln.HistorySave(histFile)
	}

	fmt.Println(ioexec.Version())
	for {
		line, err := ln.Prompt("ioprobe> ")
		if err != nil {
			if err != liner.ErrPromptAborted && err != io.EOF {
				fmt.Fprintln(os.Stderr, err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if !p.dispatch(line) {
			return
		}
	}
}

func (p *probe) batch() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !p.dispatch(line) {
			return
		}
	}
}

func (p *probe) dispatch(line string) bool {
	args := strings.Fields(line)
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "quit", "exit":
		return false
	case "resolve":
		p.resolve(args)
	case "connect":
		p.connect(args)
	case "tls":
		p.tlsProbe(args)
	case "timer":
		p.timer(args)
	case "post":
		p.post(args)
	case "stats":
		p.stats()
	case "help":
		fmt.Println("commands: resolve <host> [service] | connect <host:port> [payload] | tls <host:port> | timer <duration> | post <text> | stats | quit")
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}
	return true
}

func (p *probe) resolve(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: resolve <host> [service]")
		return
	}
	service := "http"
	if len(args) > 1 {
		service = args[1]
	}

	executor := p.pool.Get()
	resolver, err := executor.CreateTCPResolver()
	if err != nil {
		fmt.Printf("(error) %v\n", err)
		return
	}
	defer resolver.Close()

	done := make(chan struct{})
	resolver.AsyncResolve(args[0], service, func(addrs []*net.TCPAddr, err error) {
		if err != nil {
			fmt.Printf("(error) %v\n", err)
		} else {
			for _, addr := range addrs {
				fmt.Println(addr)
			}
		}
		close(done)
	})
	p.wait(done)
}

func (p *probe) connect(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: connect <host:port> [payload]")
		return
	}

	executor := p.pool.Get()
	socket, err := executor.CreateSocket()
	if err != nil {
		fmt.Printf("(error) %v\n", err)
		return
	}
	defer socket.Close()

	done := make(chan struct{})
	socket.AsyncConnect(args[0], func(err error) {
		if err != nil {
			fmt.Printf("(error) %v\n", err)
			close(done)
			return
		}
		fmt.Printf("connected to %s\n", socket.Conn().RemoteAddr())
		if len(args) < 2 {
			close(done)
			return
		}
		socket.AsyncWrite([]byte(args[1]+"\r\n"), func(n int, err error) {
			if err != nil {
				fmt.Printf("(error) %v\n", err)
				close(done)
				return
			}
			buf := make([]byte, 4096)
			socket.AsyncRead(buf, func(n int, err error) {
				if err != nil {
					fmt.Printf("(error) %v\n", err)
				} else {
					fmt.Print(string(buf[:n]))
				}
				close(done)
			})
		})
	})
	p.wait(done)
}

func (p *probe) tlsProbe(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: tls <host:port>")
		return
	}
	host, _, err := net.SplitHostPort(args[0])
	if err != nil {
		fmt.Printf("(error) %v\n", err)
		return
	}

	executor := p.pool.Get()
	socket, err := executor.CreateSocket()
	if err != nil {
		fmt.Printf("(error) %v\n", err)
		return
	}
	tlsSocket, err := executor.CreateTLSSocket(socket, &ioexec.SecurityContext{ServerName: host})
	if err != nil {
		socket.Close()
		fmt.Printf("(error) %v\n", err)
		return
	}
	defer tlsSocket.Close()

	done := make(chan struct{})
	socket.AsyncConnect(args[0], func(err error) {
		if err != nil {
			fmt.Printf("(error) %v\n", err)
			close(done)
			return
		}
		tlsSocket.AsyncHandshake(func(err error) {
			if err != nil {
				fmt.Printf("(error) handshake: %v\n", err)
			} else if state, ok := tlsSocket.ConnectionState(); ok {
				fmt.Printf("handshake ok: version=%x cipher=%x server=%s\n",
					state.Version, state.CipherSuite, state.ServerName)
			}
			close(done)
		})
	})
	p.wait(done)
}

func (p *probe) timer(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: timer <duration>")
		return
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		fmt.Printf("(error) %v\n", err)
		return
	}

	executor := p.pool.Get()
	timer, err := executor.CreateDeadlineTimer()
	if err != nil {
		fmt.Printf("(error) %v\n", err)
		return
	}
	timer.ExpiresFromNow(d)

	start := time.Now()
	done := make(chan struct{})
	timer.AsyncWait(func(err error) {
		if err != nil {
			fmt.Printf("(error) %v\n", err)
		} else {
			fmt.Printf("fired after %s\n", time.Since(start).Round(time.Millisecond))
		}
		close(done)
	})
	p.wait(done)
}

func (p *probe) post(args []string) {
	executor := p.pool.Get()
	done := make(chan struct{})
	executor.PostWork(func() {
		fmt.Println(strings.Join(args, " "))
		close(done)
	})
	p.wait(done)
}

func (p *probe) stats() {
	for i, slot := range p.pool.Stats() {
		if !slot.Populated {
			fmt.Printf("slot %d: empty\n", i)
			continue
		}
		fmt.Printf("slot %d: restarts=%d loop_finished=%v\n", i, slot.Restarts, slot.LoopFinished)
	}
}

func (p *probe) wait(done chan struct{}) {
	select {
	case <-done:
	case <-time.After(ProbeOpTimeout):
		log.Logger.Warn("operation timed out", zap.Duration("timeout", ProbeOpTimeout))
	}
}
