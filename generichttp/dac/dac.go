// Package dac provides a generic HTTP interface to dual channel DAC devices
//
// This is not the last word in speed, due to HTTP having reasonable latency
// in most client languages, but it is the last word in ease of use.
package dac

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/oplab/daclab/generichttp"
)

// DualDAC is a model for a simple two channel digital to analog converter
type DualDAC interface {
	// SetOutputs writes both channel output values in one call
	SetOutputs(uint16, uint16) error

	// Value returns the output value of one channel
	Value(int) (uint16, error)
}

// ConfigurableDAC adds the per-channel analog configuration registers
type ConfigurableDAC interface {
	DualDAC

	// SetGain writes the gain of both channels
	SetGain(uint8, uint8) error

	// Gain returns the gain of one channel
	Gain(int) (uint8, error)

	// SetVref writes the reference source of both channels
	SetVref(uint8, uint8) error

	// Vref returns the reference source of one channel
	Vref(int) (uint8, error)

	// SetPowerDown writes the power-down mode of both channels
	SetPowerDown(uint8, uint8) error

	// PowerDown returns the power-down mode of one channel
	PowerDown(int) (uint8, error)
}

// PersistentDAC adds the nonvolatile mirror of the working settings
type PersistentDAC interface {
	ConfigurableDAC

	// Persist copies the working settings into nonvolatile storage
	Persist() error

	// ValueEEPROM returns the mirrored output value of one channel
	ValueEEPROM(int) (uint16, error)

	// GainEEPROM returns the mirrored gain of one channel
	GainEEPROM(int) (uint8, error)

	// VrefEEPROM returns the mirrored reference source of one channel
	VrefEEPROM(int) (uint8, error)

	// PowerDownEEPROM returns the mirrored power-down mode of one channel
	PowerDownEEPROM(int) (uint8, error)
}

// Prober reports whether the device answers at its bus address
type Prober interface {
	Ready() error
}

type outputs struct {
	V0 uint16 `json:"v0"`

	V1 uint16 `json:"v1"`
}

type channelPair struct {
	Ch0 uint8 `json:"ch0"`

	Ch1 uint8 `json:"ch1"`
}

type channelT struct {
	Channel int `json:"channel"`
}

// SetOutputs returns an HTTP handlerfunc that writes both channel values
func SetOutputs(d DualDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input outputs
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = d.SetOutputs(input.V0, input.V1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// getChannelUint16 wraps a per-channel uint16 getter
func getChannelUint16(fcn func(int) (uint16, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelT
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		v, err := fcn(input.Channel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := generichttp.HumanPayload{T: types.Uint16, Uint16: v}
		hp.EncodeAndRespond(w, r)
	}
}

// getChannelField wraps a per-channel narrow field getter
func getChannelField(fcn func(int) (uint8, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelT
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		v, err := fcn(input.Channel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := generichttp.HumanPayload{T: types.Int, Int: int(v)}
		hp.EncodeAndRespond(w, r)
	}
}

// setChannelPair wraps a both-channels narrow field setter
func setChannelPair(fcn func(uint8, uint8) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelPair
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(input.Ch0, input.Ch1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Persist returns an HTTP handlerfunc that commits the working settings
func Persist(d PersistentDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := d.Persist()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Ready returns an HTTP handlerfunc that reports device presence
func Ready(p Prober) http.HandlerFunc {
	return generichttp.GetBool(func() (bool, error) {
		return p.Ready() == nil, nil
	})
}

// HTTPBasic adds routes for output writing and readback to a table
func HTTPBasic(iface DualDAC, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/output"}] = SetOutputs(iface)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/output"}] = getChannelUint16(iface.Value)
}

// HTTPConfigurable adds routes for the analog configuration registers
func HTTPConfigurable(iface ConfigurableDAC, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/gain"}] = setChannelPair(iface.SetGain)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/gain"}] = getChannelField(iface.Gain)

	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/vref"}] = setChannelPair(iface.SetVref)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/vref"}] = getChannelField(iface.Vref)

	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/power-down"}] = setChannelPair(iface.SetPowerDown)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/power-down"}] = getChannelField(iface.PowerDown)
}

// HTTPPersistent adds routes for the nonvolatile mirror
func HTTPPersistent(iface PersistentDAC, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/persist"}] = Persist(iface)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/eeprom/output"}] = getChannelUint16(iface.ValueEEPROM)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/eeprom/gain"}] = getChannelField(iface.GainEEPROM)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/eeprom/vref"}] = getChannelField(iface.VrefEEPROM)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/eeprom/power-down"}] = getChannelField(iface.PowerDownEEPROM)
}

// HTTPDAC is a type that allows setting up a DAC satisfying any combination
// of the interfaces in this package to an HTTP interface
type HTTPDAC struct {
	d DualDAC

	RouteTable generichttp.RouteTable
}

// NewHTTPDAC sets up an HTTP interface to a DAC
func NewHTTPDAC(d DualDAC) HTTPDAC {
	w := HTTPDAC{d: d}
	rt := generichttp.RouteTable{}
	HTTPBasic(d, rt)
	if cd, ok := d.(ConfigurableDAC); ok {
		HTTPConfigurable(cd, rt)
	}
	if pd, ok := d.(PersistentDAC); ok {
		HTTPPersistent(pd, rt)
	}
	if p, ok := d.(Prober); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/ready"}] = Ready(p)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPDAC) RT() generichttp.RouteTable {
	return h.RouteTable
}
