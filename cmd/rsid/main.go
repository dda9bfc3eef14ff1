// Command rsid runs the RSI host engine as a standalone process: it loads
// configuration, wires up the problem/update log files, starts the
// engine, and blocks until an interrupt or terminate signal asks it to
// shut down cleanly.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/kuka-rsi/rsihost"
	"github.com/kuka-rsi/rsihost/internal/asyncio"
)

var (
	githash   = "githash not computed"
	buildDate = "build date not computed"
)

// makeFileExist checks that dir/filename exists, creating the directory
// and file if either is missing, and returns the joined path.
func makeFileExist(dir, filename string) (string, error) {
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err := os.MkdirAll(dir, 0775); err != nil {
			return "", err
		}
	}

	fullname := filepath.Join(dir, filename)
	if _, err := os.Stat(fullname); os.IsNotExist(err) {
		f, err := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err != nil {
			return "", err
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper locates and reads the YAML config file, creating an empty one
// on first run, and turns on viper.WatchConfig so viper's values follow
// later edits of the file. main reads the values once, before the single
// Init call, so an edit takes effect only when the process is started again.
func setupViper() error {
	viper.SetDefault("LocalIP", rsihost.DefaultLocalIP)
	viper.SetDefault("LocalPort", rsihost.DefaultLocalPort)
	viper.SetDefault("TimeoutMs", rsihost.DefaultTimeoutMs)
	viper.SetDefault("Verbose", false)
	viper.SetDefault("BroadcastEndpoint", "")
	viper.SetDefault("TelemetryDSN", "")
	viper.SetDefault("TraceCapacity", 0)
	viper.SetDefault("RealtimePriority", 0)

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("error finding user home dir: %s\n", err)
	}
	configDir := filepath.Join(home, ".rsihost")
	const filename = "config"
	if _, err := makeFileExist(configDir, filename+".yaml"); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/rsihost"))
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	viper.WatchConfig()
	return nil
}

func configFromViper() rsihost.Config {
	return rsihost.Config{
		LocalIP:           viper.GetString("LocalIP"),
		LocalPort:         uint16(viper.GetUint32("LocalPort")),
		TimeoutMs:         viper.GetUint32("TimeoutMs"),
		Verbose:           viper.GetBool("Verbose"),
		BroadcastEndpoint: viper.GetString("BroadcastEndpoint"),
		TelemetryDSN:      viper.GetString("TelemetryDSN"),
		TraceCapacity:     viper.GetInt("TraceCapacity"),
		RealtimePriority:  viper.GetInt("RealtimePriority"),
	}
}

// startLogger opens filename for rotating writes through an asyncio.Writer
// and wraps it in a standard *log.Logger, so problem/update log lines never
// block the calling goroutine on disk I/O.
func startLogger(filename string) (*log.Logger, *asyncio.Writer) {
	probFile, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("could not open log file %q", filename))
	}
	probFile.Close()
	w := asyncio.New(asyncio.Options{
		Filename:   filename,
		MaxSizeMB:  10,
		MaxBackups: 4,
		MaxAgeDays: 180,
		Compress:   true,
	})
	return log.New(w, "", log.LstdFlags), w
}

func main() {
	printVersion := flag.Bool("version", false, "print version and quit")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to given file")
	memprofile := flag.String("memprofile", "", "write memory profile to given file")
	flag.Parse()

	if *printVersion {
		fmt.Printf("rsid, git commit %s, built %s\n", githash, buildDate)
		fmt.Printf("built on go version %s, running on %d CPUs\n", runtime.Version(), runtime.NumCPU())
		return
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(home, ".rsihost", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	updatename, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		panic(err)
	}
	problemLogger, problemWriter := startLogger(problemname)
	updateLogger, updateWriter := startLogger(updatename)
	log.SetOutput(problemLogger.Writer())
	fmt.Printf("logging problems to %s\n", problemname)
	fmt.Printf("logging updates  to %s\n", updatename)

	if err := setupViper(); err != nil {
		panic(err)
	}

	cfg := configFromViper()
	if err := rsihost.Init(cfg); err != nil {
		log.Fatalf("Init failed: %v", err)
	}

	_ = rsihost.SetCallbacks(rsihost.Callbacks{
		OnConnectionMade: func() {
			updateLogger.Printf("robot connected, instance %s", rsihost.InstanceID())
		},
		OnConnectionLost: func() {
			updateLogger.Printf("robot connection lost, instance %s", rsihost.InstanceID())
		},
		OnMalformedPacket: func(summary string) {
			problemLogger.Printf("malformed datagram:\n%s", summary)
		},
	})

	if err := rsihost.Start(); err != nil {
		log.Fatalf("Start failed: %v", err)
	}
	fmt.Printf("rsid listening on %s:%d (instance %s)\n", cfg.LocalIP, cfg.LocalPort, rsihost.InstanceID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down")
	if err := rsihost.Stop(); err != nil {
		log.Printf("Stop: %v", err)
	}
	if err := rsihost.Cleanup(); err != nil {
		log.Printf("Cleanup: %v", err)
	}

	if n := problemWriter.DroppedCount(); n > 0 {
		fmt.Printf("dropped %d problem log lines\n", n)
	}
	if n := updateWriter.DroppedCount(); n > 0 {
		fmt.Printf("dropped %d update log lines\n", n)
	}
	if err := problemWriter.Close(); err != nil {
		fmt.Printf("closing problem log: %v\n", err)
	}
	if err := updateWriter.Close(); err != nil {
		fmt.Printf("closing update log: %v\n", err)
	}

	if *memprofile != "" {
		writeMemoryProfile(*memprofile)
	}
}

func writeMemoryProfile(filename string) {
	f, err := os.Create(filename)
	if err != nil {
		log.Fatal("could not create memory profile: ", err)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Fatal("could not write memory profile: ", err)
	}
}
