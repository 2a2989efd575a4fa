// dacctl is a bench tool for exercising an MCP47FEB by hand: probe it,
// step the outputs, and commit the working settings to EEPROM.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/theckman/yacspin"

	"github.com/oplab/daclab/comm"
	"github.com/oplab/daclab/i2c"
	"github.com/oplab/daclab/microchip/mcp47feb"
)

var (
	bridgeAddr = flag.String("bridge", "localhost:9090", "host:port or serial path of the I2C bridge")
	serialMode = flag.Bool("serial", false, "bridge is attached via serial rather than TCP")
	devAddr    = flag.Uint("addr", mcp47feb.DefaultAddr, "7-bit device address")
	persist    = flag.Bool("persist", false, "commit the working settings to EEPROM before exiting")
)

func spinner(msg string) *yacspin.Spinner {
	s, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[14],
		Suffix:          " " + msg,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
		SuffixAutoColon: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	return s
}

func openBus() i2c.Bus {
	b := comm.NewBridge(*bridgeAddr, *serialMode)
	s := spinner("connecting to bridge " + *bridgeAddr)
	s.Start()
	err := b.Open()
	if err != nil {
		s.StopFail()
		log.Fatal(err)
	}
	s.Stop()
	return b
}

func main() {
	flag.Parse()
	bus := openBus()
	dac := mcp47feb.New(bus, uint8(*devAddr))

	s := spinner(fmt.Sprintf("probing device at %#02x", dac.Addr()))
	s.Start()
	if err := dac.Ready(); err != nil {
		s.StopFail()
		log.Fatal("no device acknowledged: ", err)
	}
	s.Stop()

	for channel := 0; channel < 2; channel++ {
		v, err := dac.Value(channel)
		if err != nil {
			log.Fatal(err)
		}
		g, err := dac.Gain(channel)
		if err != nil {
			log.Fatal(err)
		}
		p, err := dac.PowerDown(channel)
		if err != nil {
			log.Fatal(err)
		}
		r, err := dac.Vref(channel)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("channel %d: value=%d gain=%d power-down=%d vref=%d", channel, v, g, p, r)
	}

	reader := bufio.NewReader(os.Stdin)
	log.Println("enter a pair of output values (0-4095) per line to step the outputs, blank line to finish")
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		var v0, v1 uint64
		n, _ := fmt.Sscan(line, &v0, &v1)
		if n == 0 {
			break
		}
		if n == 1 {
			v1 = v0
		}
		if err := dac.SetOutputs(uint16(v0), uint16(v1)); err != nil {
			log.Fatal(err)
		}
		got0, err := dac.Value(0)
		if err != nil {
			log.Fatal(err)
		}
		got1, err := dac.Value(1)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("outputs now %d, %d", got0, got1)
	}

	if *persist {
		s = spinner("committing working settings to EEPROM")
		s.Start()
		if err := dac.Persist(); err != nil {
			s.StopFail()
			log.Fatal(err)
		}
		s.Stop()
	}
}
