//go:build rp2040

package main

import (
	"joybus/bridge"
	"joybus/core"
	"joybus/protocol"
	"joybus/targets/pio"
	"machine"
	"time"
)

const (
	joybusPin = machine.GPIO28
	joybusPIO = 0
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	server       *bridge.Server

	// Debug counters
	msgerrors                uint32
	consecutiveWriteFailures uint32

	usbByte [1]byte
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(debugEnabled)
	core.InitAsyncDebug()

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	engine, err := pio.NewEngine(joybusPIO)
	if err != nil {
		halt(led, "Joybus engine init failed: "+err.Error())
	}
	port, err := core.NewPort(engine, core.Pin(joybusPin), core.WithClock(pio.HardwareClock{}))
	if err != nil {
		halt(led, "Joybus port init failed: "+err.Error())
	}
	DebugPrintln("Joybus port ready: pin=" + utoa(uint32(port.Pin())) +
		" pio=" + utoa(uint32(port.EngineIndex())) +
		" sm=" + utoa(uint32(port.StateMachineIndex())))

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	server = bridge.NewServer(port)

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
					server.Reset()
					port.ResetReceive()
					core.DumpEvents()
				}
			}()

			readUSB()

			if !inputBuffer.IsEmpty() {
				// Transactions block until the first response byte arrives
				if server.Process(inputBuffer, outputBuffer) > 0 {
					led.Set(!led.Get())
				}
			}

			writeUSB()
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// halt reports a fatal init error and blinks the LED forever
func halt(led machine.Pin, msg string) {
	DebugPrintln(msg)
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

// readUSB moves pending USB bytes into the input buffer
func readUSB() {
	for USBAvailable() > 0 && inputBuffer.Free() > 0 {
		b, err := USBRead()
		if err != nil {
			msgerrors++
			return
		}
		usbByte[0] = b
		inputBuffer.Write(usbByte[:])
	}
}

// writeUSB writes pending replies from the output buffer to USB
func writeUSB() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}

	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Likely disconnect; drop stale data after repeated failures
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
				server.Reset()
			}
			return
		}
		written += n
	}

	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
