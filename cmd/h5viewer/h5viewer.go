package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/usnistgov/h5viewer"
	"github.com/usnistgov/h5viewer/internal/viewerdb"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	// Create directory <path>, if needed
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		err2 := os.MkdirAll(dir, 0775)
		if err2 != nil {
			return "", err2
		}
	}

	// Create an empty file path/filename, if it doesn't exist.
	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setDefaults gives every configuration key its default value.
func setDefaults() {
	viper.SetDefault("Verbose", false)
	viper.SetDefault("viewer.dataroot", ".")
	viper.SetDefault("viewer.restricttoroot", true)
	viper.SetDefault("viewer.maxelements", h5viewer.DefaultMaxElements)
	viper.SetDefault("ports.api", 3000)
	viper.SetDefault("ports.rpc", 3001)
	viper.SetDefault("ports.status", 3002)
	viper.SetDefault("database.enable", false)
	viper.SetDefault("database.addr", viewerdb.DefaultOptions.Addr)
	viper.SetDefault("database.name", viewerdb.DefaultOptions.Database)
}

// setupViper sets up the viper configuration manager: says where to find config
// files and the filename and suffix. Sets some defaults.
func setupViper() error {
	setDefaults()

	HOME, err := os.UserHomeDir()
	if err != nil { // Handle errors reading the config file
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotViewer := filepath.Join(HOME, ".h5viewer")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotViewer, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/h5viewer"))
	viper.AddConfigPath(dotViewer)
	viper.AddConfigPath(".")
	err = viper.ReadInConfig() // Find and read the config file
	if err != nil {            // Handle errors reading the config file
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		msg := fmt.Sprintf("Could not open log file '%s'", pfname)
		panic(msg)
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

// startDatabase connects to ClickHouse if the config asks for it.
func startDatabase(abort <-chan struct{}) *viewerdb.ViewerDBConnection {
	if !viper.GetBool("database.enable") {
		return viewerdb.DummyDBConnection()
	}
	activity := &viewerdb.ViewerActivityMessage{
		ID:        ulid.Make().String(),
		Hostname:  h5viewer.Build.Host,
		Githash:   githash,
		Version:   h5viewer.Build.Version,
		GoVersion: runtime.Version(),
		CPUs:      runtime.NumCPU(),
		Start:     h5viewer.ViewerStartTime,
	}
	opt := viewerdb.Options{
		Addr:     viper.GetString("database.addr"),
		Database: viper.GetString("database.name"),
	}
	db := viewerdb.StartDBConnection(opt, activity, abort)
	if db.IsConnected() {
		fmt.Printf("Logging activity to ClickHouse at %s\n", opt.Addr)
	} else {
		h5viewer.ProblemLogger.Printf("activity database not available: %v", db.Err())
		fmt.Printf("Activity database at %s not available: %v\n", opt.Addr, db.Err())
	}
	return db
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	h5viewer.Build.Date = buildDate
	h5viewer.Build.Githash = githash
	h5viewer.Build.Gitdate = gitdate
	h5viewer.Build.Summary = fmt.Sprintf("h5viewer version %s (git commit %s of %s)", h5viewer.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		h5viewer.Build.Host = host
	} else {
		h5viewer.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	verbose := flag.Bool("verbose", false, "dump the configuration at startup")
	port := flag.Int("port", 0, "HTTP API port (RPC and status use the next two); 0 means use the config file")
	dataroot := flag.String("dataroot", "", "directory offered by the file picker; empty means use the config file")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to given file")
	memprofile := flag.String("memprofile", "", "write memory profile to given file")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is h5viewer version %s\n", h5viewer.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		fmt.Printf("Running on %d CPUs.\n", runtime.NumCPU())
		os.Exit(0)
	}

	banner := fmt.Sprintf("\nThis is h5viewer version %s (git commit %s)\n", h5viewer.Build.Version, githash)
	fmt.Print(banner)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Start logging problems and updates to 2 log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".h5viewer", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	logname, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		panic(err)
	}
	h5viewer.ProblemLogger = startLogger(problemname)
	h5viewer.UpdateLogger = startLogger(logname)
	fmt.Printf("Logging problems       to %s\n", problemname)
	fmt.Printf("Logging client updates to %s\n\n", logname)
	h5viewer.UpdateLogger.Printf("\n\n\n\n%s", banner)

	// Find config file, creating it if needed, and read it.
	if err := setupViper(); err != nil {
		panic(err)
	}
	h5viewer.Ports.API = viper.GetInt("ports.api")
	h5viewer.Ports.RPC = viper.GetInt("ports.rpc")
	h5viewer.Ports.Status = viper.GetInt("ports.status")
	if *port > 0 {
		h5viewer.SetPortnumbers(*port)
	}
	config, err := h5viewer.ConfigFromViper()
	if err != nil {
		panic(err)
	}
	if *dataroot != "" {
		config.DataRoot = *dataroot
	}
	if *verbose || viper.GetBool("Verbose") {
		fmt.Printf("Using config file %s\n", viper.ConfigFileUsed())
		spew.Dump(config, h5viewer.Ports)
	}

	browser, err := h5viewer.NewBrowser(config)
	if err != nil {
		log.Fatal(err)
	}
	h5viewer.UpdateLogger.Printf("Serving %s\n", browser)

	abort := make(chan struct{})
	updates := h5viewer.NewUpdateQueue()
	browser.SetUpdates(updates)
	db := startDatabase(abort)
	browser.SetDB(db)

	updaterDone := make(chan struct{})
	go func() {
		defer close(updaterDone)
		if err := h5viewer.RunClientUpdater(updates, h5viewer.Ports.Status); err != nil {
			h5viewer.ProblemLogger.Printf("client updater: %v", err)
			fmt.Printf("Client updater did not start: %v\n", err)
			for range updates.Out() {
			}
		}
	}()
	go h5viewer.RunHeartbeat(updates, 2*time.Second, abort)

	serverErr := make(chan error, 2)
	go func() { serverErr <- h5viewer.RunRPCServer(browser, h5viewer.Ports.RPC, abort) }()
	go func() { serverErr <- h5viewer.RunAPIServer(browser, h5viewer.Ports.API, abort) }()
	fmt.Printf("Viewer page at http://localhost:%d/\n", h5viewer.Ports.API)
	browser.BroadcastStatus()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-interrupt:
		fmt.Printf("\nReceived %v, shutting down\n", sig)
	case err := <-serverErr:
		if err != nil {
			h5viewer.ProblemLogger.Print(err)
			fmt.Println(err)
		}
	}
	close(abort)
	updates.Close()
	<-updaterDone
	db.Wait()
	writeMemoryProfile(memprofile)
}

// writeMemoryProfile writes the memory use profile to the indicated file.
// If `memprofile` points to an empty string, do not write.
func writeMemoryProfile(memprofile *string) {
	if *memprofile == "" {
		return
	}

	f, err := os.Create(*memprofile)
	if err != nil {
		log.Fatal("could not create memory profile: ", err)
	}
	defer f.Close()
	runtime.GC() // get up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Fatal("could not write memory profile: ", err)
	}
}
