// mousefwd - forwards relative mouse motion to a USB board over serial
// while the local pointer and selected buttons are blocked.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"mousefwd/internal/api"
	"mousefwd/internal/board"
	"mousefwd/internal/config"
	"mousefwd/internal/forwarder"
	"mousefwd/internal/input"
	"mousefwd/internal/link"
	"mousefwd/internal/osutils"
	"mousefwd/internal/security"
	"mousefwd/internal/session"
	"mousefwd/internal/tray"
)

var (
	version    = "0.3.0"
	showVer    = flag.Bool("version", false, "Show version")
	listPorts  = flag.Bool("list-ports", false, "List serial ports")
	listBoards = flag.Bool("boards", false, "List supported boards")
	hashPw     = flag.String("hash-password", "", "Print an argon2id hash for the given password and exit")
	configPath = flag.String("config", "", "Config file path (default: per-user config)")
	user       = flag.String("user", "", "Login username (default: config auth.username)")
	password   = flag.String("password", "", "Login password (default: $MF_PASSWORD)")
	portName   = flag.String("port", "", "Serial port to connect on startup")
	baud       = flag.Int("baud", 0, "Serial baud rate")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	noTray     = flag.Bool("no-tray", false, "Run without the tray icon; forwarding starts once connected")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("mousefwd version %s\n", version)
		return
	}

	if *hashPw != "" {
		hash, err := session.HashPassword(*hashPw, session.DefaultHashParams)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	if *listBoards {
		printBoards()
		return
	}

	if *listPorts {
		printPorts()
		return
	}

	// Tamper checks start before any input or link setup.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfgMgr, cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	if security.Disabled() {
		log.Warnf("Security: integrity checks disabled by %s", security.DisableEnv)
	} else {
		interval := time.Duration(cfg.Integrity.IntervalMs) * time.Millisecond
		security.Start(ctx, security.NewDetector(interval, security.DefaultProbes()...), security.Terminate)
	}

	inst, err := osutils.AcquireSingleInstance("mousefwd")
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer inst.Release()

	if msg := osutils.ElevationWarning(); msg != "" {
		log.Warn(msg)
	}

	runService(ctx, cfgMgr, cfg)
}

func loadConfig() (*config.Manager, config.Config) {
	var cfgMgr *config.Manager
	if *configPath != "" {
		cfgMgr = config.NewManagerAt(*configPath)
	} else {
		var err error
		cfgMgr, err = config.NewManager()
		if err != nil {
			log.Fatalf("Failed to initialize config: %v", err)
		}
	}
	if err := cfgMgr.Load(); err != nil {
		log.Warnf("Warning: failed to load config: %v", err)
	}

	var envErr error
	cfgMgr.Update(func(c *config.Config) {
		envErr = config.ApplyEnv(c, os.Getenv)
		if *portName != "" {
			c.Serial.Port = *portName
			c.Serial.AutoConnect = true
		}
		if *baud > 0 {
			c.Serial.Baud = *baud
		}
		if *logLevel != "" {
			c.LogLevel = *logLevel
		}
		if *user != "" {
			c.Auth.Username = *user
		}
	})
	if envErr != nil {
		log.Warnf("Warning: %v", envErr)
	}
	return cfgMgr, cfgMgr.Get()
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func printBoards() {
	fmt.Println("Supported Boards:")
	fmt.Println("-----------------")
	for _, name := range board.Names() {
		b, _ := board.Lookup(name)
		fmt.Printf("%-10s %s\n", name, b.Name)
		fmt.Printf("  FQBN:  %s\n", b.FQBN)
		fmt.Printf("  Flash: %s (%s)\n", b.Flash, b.Extension)
	}
}

func printPorts() {
	ports, err := link.ListPorts()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	fmt.Println("Serial Ports:")
	fmt.Println("-------------")
	for _, p := range ports {
		fmt.Printf("%-8s %s", p.Name, p.Description)
		if p.IsUSB {
			fmt.Printf(" [%s:%s]", p.VID, p.PID)
		}
		fmt.Println()
	}
}

// pickPort returns the configured port, or the first board-looking port.
func pickPort(cfg config.Config) (string, error) {
	if cfg.Serial.Port != "" {
		return cfg.Serial.Port, nil
	}
	ports, err := link.ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found")
	}
	return ports[0].Name, nil
}

func login(ctx context.Context, guard *session.Guard, cfg config.Config) {
	pw := *password
	if pw == "" {
		pw = os.Getenv("MF_PASSWORD")
	}

	sess, err := guard.Authenticate(ctx, session.Identity{Username: cfg.Auth.Username, Password: pw})
	if err != nil {
		log.WithError(err).Error("blocked: not authorized")
		return
	}
	log.WithFields(log.Fields{"session": sess.ID, "user": sess.Username}).Info("Logged in")
}

func runService(ctx context.Context, cfgMgr *config.Manager, cfg config.Config) {
	log.Printf("mousefwd %s starting...", version)

	guard, err := session.NewGuard(session.NewFixedChecker(cfg.Auth.Username, cfg.Auth.PasswordHash), session.LocalMachine{})
	if err != nil {
		log.Fatalf("Failed to create session guard: %v", err)
	}
	login(ctx, guard, cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	lnk := link.New(link.SerialOpener, link.NewMetrics(reg))
	ctrl := forwarder.New(guard, lnk)

	thread := input.NewThread()
	if err := thread.Start(); err != nil {
		log.Fatalf("Failed to start input thread: %v", err)
	}
	defer thread.Stop()

	escapeKey, err := input.KeyCode(cfg.Input.EscapeKey)
	if err != nil {
		log.Warnf("Invalid escape key %q, using Esc: %v", cfg.Input.EscapeKey, err)
		escapeKey = input.VK_ESCAPE
	}

	capture := input.NewCapture(guard, thread, ctrl.HandleDelta)
	blocker := input.NewBlocker(guard, thread)
	escape := input.NewEscape(guard, thread, escapeKey, ctrl.HandleEscape)
	ctrl.Attach(capture, blocker, escape)

	applyBlocked := func(names []string) {
		set, err := input.ParseChannels(names)
		if err != nil {
			log.Warnf("Blocked buttons: %v", err)
		}
		blocker.SetBlocked(set)
	}
	applyBlocked(cfg.Input.Blocked)
	cfgMgr.RegisterChangeCallback(func() {
		applyBlocked(cfgMgr.Get().Input.Blocked)
	})

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(ctrl, reg, cfg.API.Token)
		ctrl.OnChange(apiServer.BroadcastStatus)
		lnk.OnEvent(apiServer.BroadcastLink)
		go func() {
			if err := apiServer.Start(cfg.API.Addr); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	if cfg.Serial.AutoConnect || *noTray {
		connect(ctrl, cfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *noTray {
		if ctrl.Status().Link.Open {
			if err := ctrl.SetForwarding(true); err != nil {
				log.Errorf("Failed to start forwarding: %v", err)
			}
		}
		log.Println("Running headless. Press Ctrl+C to exit.")
		<-sigCh
		shutdown(ctrl)
	} else {
		t := buildTray(ctrl, cfgMgr)
		t.OnExit(func() { shutdown(ctrl) })
		go func() {
			<-sigCh
			t.Stop()
		}()
		t.Run()
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
	}
}

// shutdown stops forwarding and releases the port.
func shutdown(ctrl *forwarder.Controller) {
	log.Println("Shutting down...")
	if err := ctrl.Disconnect(); err != nil {
		log.Warnf("Disconnect: %v", err)
	}
}

func connect(ctrl *forwarder.Controller, cfg config.Config) {
	port, err := pickPort(cfg)
	if err != nil {
		log.Errorf("Connect: %v", err)
		return
	}
	if err := ctrl.Connect(port, cfg.Serial.Baud); err != nil {
		log.Errorf("Connect: %v", err)
	}
}

func buildTray(ctrl *forwarder.Controller, cfgMgr *config.Manager) *tray.Tray {
	t := tray.New("mousefwd", "mousefwd - idle")

	var connectID, forwardID int
	connectID = t.AddMenuItem("Connect", func() {
		if ctrl.Status().Link.Open {
			if err := ctrl.Disconnect(); err != nil {
				log.Warnf("Disconnect: %v", err)
			}
			return
		}
		connect(ctrl, cfgMgr.Get())
	})
	forwardID = t.AddMenuItem("Forwarding", func() {
		if err := ctrl.Toggle(); err != nil {
			log.Errorf("Forwarding: %v", err)
		}
	})
	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		t.Stop()
	})

	ctrl.OnChange(func(st forwarder.Status) {
		if st.Link.Open {
			t.SetItemTitle(connectID, "Disconnect "+st.Link.Port)
		} else {
			t.SetItemTitle(connectID, "Connect")
		}
		t.SetItemEnabled(forwardID, st.Authorized && st.Link.Open)
		t.SetItemChecked(forwardID, st.Forwarding)
		t.SetActive(st.Forwarding, trayTooltip(st))
	})

	st := ctrl.Status()
	t.SetItemEnabled(forwardID, st.Authorized && st.Link.Open)
	t.SetActive(st.Forwarding, trayTooltip(st))
	return t
}

func trayTooltip(st forwarder.Status) string {
	var parts []string
	switch {
	case !st.Authorized:
		parts = append(parts, "not authorized")
	case st.Forwarding:
		parts = append(parts, fmt.Sprintf("forwarding %.0f pkt/s", st.PacketsPerSecond))
	case st.Link.Open:
		parts = append(parts, "connected "+st.Link.Port)
	default:
		parts = append(parts, "idle")
	}
	if st.LastError != "" {
		parts = append(parts, st.LastError)
	}
	return "mousefwd - " + strings.Join(parts, " - ")
}
