package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/minichat/api"
	"github.com/mqy/minichat/firehose"
	"github.com/mqy/minichat/store"
	"github.com/mqy/minichat/ws"
)

var (
	flagAddr     = flag.String("addr", "127.0.0.1:8000", "server address, ip:port")
	flagPidFile  = flag.String("pid-file", "minichat.pid", "pid file")
	flagMysqlDsn = flag.String("mysql-dsn", "root:@tcp(127.0.0.1:3306)/minichat?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci", "mysql server dsn")

	flagEnableFirehose = flag.Bool("enable-firehose", false, "mirror stored messages to kafka, experimental")
	flagKafkaBrokers   = flag.String("kafka-brokers", "127.0.0.1:9092", "comma separated kafka brokers")
	flagKafkaTopic     = flag.String("kafka-topic", "minichat-messages", "kafka topic of the message mirror")

	flagPprofDir       = flag.String("pprof-dir", "pprof", "dir to save pprof data files")
	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")

	flagEnableDemo    = flag.Bool("enable-demo", false, "serve the demo web client")
	flagDemoStaticDir = flag.String("demo-static-dir", "dev/demo/static", "demo static dir")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	pid := os.Getpid()

	if err := savePid(*flagPidFile, pid); err != nil {
		return errorf("pid file: %v", err)
	}
	defer func() {
		_ = os.Remove(*flagPidFile)
	}()

	pprofDir := filepath.Join(*flagPprofDir, strconv.Itoa(pid))
	if err := os.MkdirAll(pprofDir, 0750); err != nil {
		return errorf("--pprof-dir: error create dir `%s`: %v", pprofDir, err)
	}
	defer func() {
		_ = os.RemoveAll(pprofDir)
	}()

	db, err := sql.Open("mysql", *flagMysqlDsn)
	if err != nil {
		return errorf("sql.Open error, dsn: %s, err: %v", *flagMysqlDsn, err)
	}

	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(1)

	glog.Info("minichat server is starting")

	chatStore := store.NewChatStore(db)
	hub := ws.NewHub()

	var publisher api.Publisher
	if *flagEnableFirehose {
		fh := firehose.New(strings.Split(*flagKafkaBrokers, ","), *flagKafkaTopic)
		defer func() {
			_ = fh.Close()
		}()
		publisher = fh
	}

	restServer := api.NewServer(chatStore, hub, publisher)

	mux := http.NewServeMux()
	if !*flagDisableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
	}
	mux.Handle("/ws", hub)
	restServer.RegisterRoutes(mux)
	if *flagEnableDemo {
		const demoRootPath = "/demo/"
		fs := http.FileServer(http.Dir(*flagDemoStaticDir))
		mux.Handle(demoRootPath, http.StripPrefix(demoRootPath, fs))
		mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(*flagDemoStaticDir, "favicon.ico"))
		})
	}

	lis, err := net.Listen("tcp", *flagAddr)
	if err != nil {
		return errorf("listen %s error: %v", *flagAddr, err)
	}

	httpServer := &http.Server{Handler: mux}
	go func() {
		glog.Infof("http server is listening %v", *flagAddr)
		if err := httpServer.Serve(lis); errors.Is(err, http.ErrServerClosed) {
			glog.Infof("http server closed")
		} else if err != nil {
			glog.Errorf("error serve http mux server: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubStopDoneC := make(chan struct{})
	go hub.Run(ctx, hubStopDoneC)

	glog.Infof("`kill -USR1 %d` to dump goroutines; `kill -USR2 %d` to start/stop profiler; `CTRL+c` or `kill %d` to graceful stop", pid, pid, pid)

	var stopping bool

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)

	var prof *Profiler

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			if prof != nil {
				prof.dumpGoroutines()
			}
		case syscall.SIGUSR2:
			if prof == nil {
				prof = StartProfiler(pprofDir)
			} else {
				prof.Stop()
				prof = nil
			}
		case syscall.SIGTERM, syscall.SIGINT:
			if stopping {
				glog.Infof("minichat server is already in stop")
				continue
			}
			stopping = true
			glog.Infof("received signal `%s` stopping", sig.String())
			go func() {
				if prof != nil {
					prof.Stop()
				}
				_ = httpServer.Shutdown(context.Background())
				glog.Infof("http server shutdown done")
				cancel()
				<-hubStopDoneC
				close(hubStopDoneC)
				_ = db.Close()
				signal.Stop(sigCh)
				close(sigCh)
			}()
		}
	}

	glog.Info("minichat server exited")
	return 0
}

func validateFlags() int {
	if *flagAddr == "" {
		return errorf("--addr is required")
	}
	if err := validateAddr(*flagAddr); err != nil {
		return errorf("--addr: %v", err)
	}
	if *flagPidFile == "" {
		return errorf("--pid-file is required")
	}
	if *flagPprofDir == "" {
		return errorf("--pprof-dir is required")
	}
	if *flagMysqlDsn == "" {
		return errorf("--mysql-dsn is required.")
	}

	if *flagEnableFirehose {
		if len(*flagKafkaBrokers) == 0 {
			return errorf("--kafka-brokers is required.")
		}
		if *flagKafkaTopic == "" {
			return errorf("--kafka-topic is required.")
		}
	}

	if *flagEnableDemo {
		if *flagDemoStaticDir == "" {
			return errorf("--demo-static-dir is required.")
		}
		if _, err := os.Stat(*flagDemoStaticDir); err != nil {
			return errorf("error stat demo static dir `%s`: %v", *flagDemoStaticDir, err)
		}
	}

	return 0
}

func validateAddr(s string) error {
	ips, _, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("error split host port from `%s`: %v", s, err)
	}
	ip := net.ParseIP(ips)
	if ip == nil {
		return fmt.Errorf("error parse IP from host `%s`", ips)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("`%s` is not loopback or private address", ips)
	}
	return nil
}

func errorf(fmt string, args ...interface{}) int {
	glog.Errorf(fmt, args...)
	return 1
}

func savePid(name string, pid int) error {
	if _, err := os.Stat(name); err == nil {
		// Ok, see, if we have a stale lockfile here
		content, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		if len(content) > 0 {
			oldPid, err := strconv.Atoi(string(content))
			if err != nil {
				return err
			}

			proc, err := os.FindProcess(oldPid)
			if err != nil {
				return err
			}
			defer proc.Release()

			if err := proc.Signal(syscall.Signal(0)); err == nil {
				return fmt.Errorf("pid file: exists with pid: %d, the process is running", oldPid)
			} else {
				glog.Infof("pid file exists with pid: %d, but is not running", oldPid)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pid file: stat error: %v", err)
	}

	if err := os.WriteFile(name, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("pid file: write error: %v", err)
	}
	glog.Infof("pid file: write pid done")
	return nil
}
