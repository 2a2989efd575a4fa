package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	yml "gopkg.in/yaml.v2"

	"github.com/oplab/daclab/comm"
	"github.com/oplab/daclab/generichttp/dac"
	"github.com/oplab/daclab/i2c"
	"github.com/oplab/daclab/microchip/mcp47feb"
	"github.com/oplab/daclab/server/middleware/locker"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "dacsrv.yml"
	k              = koanf.New(".")
)

// DACSetup holds the setup parameters for one DAC endpoint
type DACSetup struct {
	// URL is the subtree the DAC's routes are served under, e.g. /omc/bias
	URL string `yaml:"endpoint" koanf:"endpoint"`

	// Type selects the transport: periph, d2r2, bridge-tcp, bridge-serial
	Type string `yaml:"type" koanf:"type"`

	// Bus is the transport address: a periph bus name ("" for the first),
	// a d2r2 bus number, a host:port, or a serial device path
	Bus string `yaml:"bus" koanf:"bus"`

	// DevAddr is the device's 7-bit bus address; zero means the factory default
	DevAddr uint8 `yaml:"addr" koanf:"addr"`
}

// Config holds the initialization parameters for the server
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"addr" koanf:"addr"`

	// DACs is a list of setup parameters that automap to MCP47FEB handles
	DACs []DACSetup `yaml:"dacs" koanf:"dacs"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr: ":8000",
		DACs: []DACSetup{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

// openBus builds the transport a DACSetup asks for
func openBus(s DACSetup) (i2c.Bus, error) {
	switch strings.ToLower(s.Type) {
	case "periph":
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		bus, err := i2creg.Open(s.Bus)
		if err != nil {
			return nil, err
		}
		return i2c.NewPeriph(bus), nil
	case "d2r2":
		busNo, err := strconv.Atoi(s.Bus)
		if err != nil {
			return nil, fmt.Errorf("d2r2 bus must be a number, got %q", s.Bus)
		}
		return newD2r2(busNo)
	case "bridge-tcp", "bridge-serial":
		b := comm.NewBridge(s.Bus, strings.HasSuffix(s.Type, "serial"))
		if err := b.Open(); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", s.Type)
	}
}

// BuildMux assembles the root router from the config
func BuildMux(c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	for _, setup := range c.DACs {
		bus, err := openBus(setup)
		if err != nil {
			log.Printf("error opening transport for %s, hardware may be missing; endpoint will not be configured: %v", setup.URL, err)
			continue
		}
		addr := setup.DevAddr
		if addr == 0 {
			addr = mcp47feb.DefaultAddr
		}
		d := mcp47feb.New(bus, addr)
		if err := d.Ready(); err != nil {
			log.Printf("no DAC acknowledged at %#02x for %s; serving the endpoint anyway: %v", addr, setup.URL, err)
		}
		httpD := dac.NewHTTPDAC(d)
		lock := locker.New()
		locker.Inject(httpD, lock)
		r := chi.NewRouter()
		r.Use(lock.Check)
		httpD.RouteTable.Bind(r)
		url := "/" + strings.Trim(setup.URL, "/")
		root.Mount(url, r)
		log.Println("DAC at", fmt.Sprintf("%#02x", addr), "available via HTTP at", url)
	}
	return root
}

func root() {
	str := `dacsrv exposes MCP47FEB bias DACs over HTTP
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	dacsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `dacsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration, the server will start with no endpoints.

Each entry under dacs names a transport type and bus:
- periph        bus is a periph.io bus name, empty for the first one
- d2r2          bus is a /dev/i2c-N number
- bridge-tcp    bus is a host:port of an I2C bridge
- bridge-serial bus is the serial device path of an I2C bridge

addr is the device's 7-bit bus address and may be omitted for the factory
default (0x60).`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("dacsrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux := BuildMux(c)
	log.Println("now listening for requests at", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
