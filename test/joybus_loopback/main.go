//go:build rp2040 || rp2350

package main

// Joybus loopback self-test.
// Wire GP2 to GP3 with a 1k pull-up to 3V3. Port A plays the host and port B
// the device; both share one copy of the program on PIO0.

import (
	"joybus/core"
	"joybus/targets/pio"
	"machine"
	"time"
)

const (
	hostPin   = machine.GPIO2
	devicePin = machine.GPIO3

	byteTimeout = 200 * time.Microsecond
)

var (
	probe = []byte{0x00}
	reply = []byte{0x05, 0x00, 0x02}
)

func main() {
	time.Sleep(3 * time.Second)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	println("=== Joybus Loopback Test ===")
	println("Host: GP2, Device: GP3")

	core.SetDebugWriter(func(s string) { println(s) })
	core.SetDebugEnabled(true)

	engine, err := pio.NewEngine(0)
	if err != nil {
		fail(led, "engine: "+err.Error())
	}

	host, err := core.NewPort(engine, core.Pin(hostPin))
	if err != nil {
		fail(led, "host port: "+err.Error())
	}

	// Second port reuses the loaded program and a state machine claimed here
	sm, err := engine.ClaimStateMachine()
	if err != nil {
		fail(led, "claim: "+err.Error())
	}
	device, err := core.NewPort(engine, core.Pin(devicePin),
		core.WithStateMachine(sm),
		core.WithProgramOffset(host.Offset()))
	if err != nil {
		fail(led, "device port: "+err.Error())
	}

	println("host sm:", host.StateMachineIndex(), "device sm:", device.StateMachineIndex(),
		"offset:", host.Offset())

	var received [4]byte
	var response [4]byte
	pass, short := 0, 0

	for round := 1; ; round++ {
		host.SendBytes(probe)

		n := device.ReceiveBytes(received[:len(probe)], byteTimeout)
		if n != len(probe) || received[0] != probe[0] {
			println("round", round, "device got", n, "bytes")
			short++
			device.ResetReceive()
			host.ResetReceive()
			time.Sleep(100 * time.Millisecond)
			continue
		}

		// The program falls through to receive after the stop bit
		device.SendBytes(reply)

		m := host.ReceiveBytes(response[:len(reply)], byteTimeout)
		if m != len(reply) {
			println("round", round, "short response:", m, "of", len(reply))
			short++
		} else {
			pass++
		}

		if round%100 == 0 {
			println("rounds:", round, "pass:", pass, "short:", short)
			core.DumpEvents()
			core.ClearEvents()
		}

		led.Set(!led.Get())
		time.Sleep(10 * time.Millisecond)
	}
}

func fail(led machine.Pin, msg string) {
	println("FAIL:", msg)
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
