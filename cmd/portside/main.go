package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"portside/internal/app"
	"portside/internal/audit"
	"portside/internal/config"
	"portside/internal/console"
	"portside/internal/history"
	"portside/internal/hosts"
	"portside/internal/rpc"
	"portside/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	hostName := flag.String("host", "", "name of the saved host to connect to")
	replayPath := flag.String("replay", "", "replay a recorded .cast file and exit")
	flag.Parse()

	if *replayPath != "" {
		if err := replay(*replayPath); err != nil {
			log.Fatalf("[BOOT] Replay failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[BOOT] Failed to load config from %q: %v", *configPath, err)
	}

	store := hosts.NewStore(cfg.Hosts.Path)
	if *hostName == "" {
		listHosts(store)
		return
	}
	host, err := store.Find(*hostName)
	if err != nil {
		log.Fatalf("[BOOT] %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Worker.Spawn {
		if err := spawnWorker(ctx, cfg, *configPath); err != nil {
			log.Fatalf("[BOOT] Failed to spawn worker: %v", err)
		}
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			log.Fatalf("[BOOT] Failed to open history db: %v", err)
		}
		defer hist.Close()
	}

	client := rpc.NewClient(cfg.Worker.Addr, cfg.Worker.Key)
	ctrl := app.NewController(client, nil, historyOrNil(hist))
	if err := ctrl.ConnectHost(host); err != nil {
		log.Fatalf("[BOOT] Worker connect failed: %v", err)
	}
	defer ctrl.Disconnect()

	log.Printf("[BOOT] Portside connecting to %s as %s", host.IP, host.Username)
	if err := runTerminal(ctx, cfg, host); err != nil {
		log.Fatalf("[BOOT] Session error: %v", err)
	}

	log.Println("[BOOT] Portside stopped cleanly.")
}

// runTerminal owns the interactive shell: the SSH session, the receive
// queue, the render pump and the input editor, wired together until the
// remote side hangs up or ctx is cancelled.
func runTerminal(ctx context.Context, cfg *config.Config, host hosts.Host) error {
	sess, err := session.Dial(session.Config{
		Host:        host.IP,
		User:        host.Username,
		Password:    host.Password,
		Term:        cfg.Terminal.Term,
		Cols:        cfg.Terminal.Cols,
		Rows:        cfg.Terminal.Rows,
		DialTimeout: time.Duration(cfg.SSH.DialTimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	w := console.NewWriter()
	w.OnAppend(func(span console.Span) {
		fmt.Print(span.Text)
	})

	q := console.NewQueue()
	pump := console.NewPump(q, w)
	editor := console.NewEditor(w)
	editor.Attach(sess)

	if cfg.Audit.Enabled {
		rec, err := audit.NewRecorder(cfg.Audit.StoragePath, host.IP, cfg.Terminal.Cols, cfg.Terminal.Rows)
		if err != nil {
			return err
		}
		defer rec.Close()
		log.Printf("[AUDIT] Recording session to %s", rec.Path())
		pump.RecordTo(rec)
		editor.LogInputTo(rec.InputWriter())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The editor is owned by this goroutine; the exit callback only cancels.
	// The next keystroke's failed send moves the editor to Closed on its own.
	go console.Receive(sess, q, func(err error) {
		log.Printf("[SESSION] Remote closed: %v", err)
		cancel()
	})
	go pump.Run(ctx, time.Duration(cfg.Terminal.PumpIntervalMs)*time.Millisecond)

	// Line-oriented stdin fallback: each line is replayed as keystrokes so
	// the editor drives the shell exactly as a key-at-a-time UI would.
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		for _, r := range sc.Text() {
			editor.KeyPress(r)
		}
		editor.Enter()
		if editor.State() == console.StateClosed {
			return nil
		}
	}
	return sc.Err()
}

// spawnWorker starts the worker process and waits for its port to accept.
func spawnWorker(ctx context.Context, cfg *config.Config, configPath string) error {
	cmd := exec.CommandContext(ctx, cfg.Worker.Command, "-config", configPath)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cfg.Worker.Command, err)
	}
	log.Printf("[BOOT] Spawned worker pid %d", cmd.Process.Pid)

	probe := rpc.NewClient(cfg.Worker.Addr, cfg.Worker.Key)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := probe.Call(rpc.Request{Cmd: "ping"}); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("worker at %s never became reachable", cfg.Worker.Addr)
}

func listHosts(store *hosts.Store) {
	list, err := store.Load()
	if err != nil {
		log.Fatalf("[BOOT] Failed to load hosts: %v", err)
	}
	if len(list) == 0 {
		fmt.Printf("No saved hosts in %s — add one and re-run with -host <name>.\n", store.Path())
		return
	}
	fmt.Println("Saved hosts:")
	for _, h := range list {
		fmt.Printf("  %-20s %s@%s\n", h.Name, h.Username, h.IP)
	}
}

func replay(path string) error {
	p, err := audit.Open(path)
	if err != nil {
		return err
	}
	info := p.Info()
	log.Printf("[AUDIT] Replaying %s (%dx%d)", info.Title, info.Width, info.Height)
	return p.Replay(os.Stdout, 1)
}

// historyOrNil avoids handing the controller a typed-nil History.
func historyOrNil(hist *history.Store) app.History {
	if hist == nil {
		return nil
	}
	return hist
}
