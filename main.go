package main

import (
	"fmt"
	"log"
	"os"
)

// main wires every component together: device discovery, GPU bring-up,
// preference store load, compositor session setup, then the capture
// loop until the quit flag fires or a permanent failure ends it.
func main() {
	os.Exit(run())
}

func run() int {
	logger := log.New(os.Stderr, "wluma: ", log.LstdFlags)

	bl, err := openBacklight()
	if err != nil {
		logger.Printf("fatal: %v", err)
		return 1
	}
	defer bl.Close()

	als, err := openIlluminanceSensor()
	if err != nil {
		logger.Printf("fatal: %v", err)
		return 1
	}

	gpu, closeGPU, err := newGPUDevice()
	if err != nil {
		logger.Printf("fatal: GPU bring-up: %v", err)
		return 1
	}
	defer closeGPU()
	reducer := newFrameReducer(gpu)
	defer reducer.close()

	path, err := dataFilePath()
	if err != nil {
		logger.Printf("fatal: %v", err)
		return 1
	}
	if err := ensureDataDir(path); err != nil {
		logger.Printf("fatal: %v", err)
		return 1
	}
	st := newStore(path)
	if err := st.load(); err != nil {
		logger.Printf("preference store failed to load, starting empty: %v", err)
	}

	backend, err := newCompositorBackend()
	if err != nil {
		logger.Printf("fatal: %v", err)
		return 1
	}
	defer backend.Close()

	ctl := newController(st, bl, realSleeper{}, st.save)
	sig := newSignalBridge()

	for !sig.shouldQuit() {
		session := newCompositorSession(releasePlaneHandle)
		if err := backend.captureOnce(session); err != nil {
			logger.Printf("capture failed: %v", err)
			continue
		}

		f, reason, cancelled, err := session.result()
		if err != nil {
			logger.Printf("frame assembly failed: %v", err)
			continue
		}
		if cancelled {
			if reason == cancelPermanent {
				logger.Printf("%v", errCapturePermanent)
				return 1
			}
			continue
		}

		lumaPct, rerr := reducer.reduce(f)
		f.free()
		if rerr != nil {
			logger.Printf("frame reduction failed: %v", rerr)
			continue
		}
		if sig.shouldQuit() {
			break
		}

		lux := als.sense()
		backlight, cerr := bl.current()
		if cerr != nil {
			logger.Printf("reading backlight failed: %v", cerr)
			continue
		}

		if err := ctl.tick(lux, lumaPct, backlight); err != nil {
			logger.Printf("tick action failed: %v", err)
		}
	}

	if err := st.save(); err != nil {
		logger.Printf("final save failed: %v", err)
		return 1
	}
	return 0
}

// releasePlaneHandle returns one captured dmabuf fd to the kernel once
// the Frame Reducer (or a cancelled assembly) no longer needs it.
func releasePlaneHandle(handle uintptr) {
	if err := closeDMABUF(handle); err != nil {
		fmt.Fprintf(os.Stderr, "wluma: closing dmabuf fd %d: %v\n", handle, err)
	}
}
