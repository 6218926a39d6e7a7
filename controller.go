package main

// quietPeriod is the number of ticks a user-initiated backlight change
// must hold steady before it is committed as a data point.
const quietPeriod = 15

// controller is the adaptation state machine. It owns the sensor
// smoother and the preference store, and drives the transition and
// persistence side effects.
type controller struct {
	window luxWindow
	st     *store

	pendingCountdown                          int
	pendingLux, pendingLuma, pendingBacklight int

	dev     backlightWriter
	sl      sleeper
	persist func() error
}

func newController(st *store, dev backlightWriter, sl sleeper, persist func() error) *controller {
	return &controller{st: st, dev: dev, sl: sl, persist: persist}
}

// tick runs one iteration of the control loop given this frame's raw
// illuminance reading, computed luma, and the backlight percent read
// back from the driver. It returns an error only when a side effect (a
// transition write, or a persistence save) failed; such an error never
// escapes the tick it was produced in — the caller logs it and
// continues the loop.
func (c *controller) tick(rawLux, luma, backlight int) error {
	wasInitialized := c.window.initialized
	c.window.push(rawLux)

	if !wasInitialized {
		// S0 Uninitialized: bookkeeping only, no backlight change, even on
		// the tick where the window's capacity is first filled — S1
		// begins on the following tick.
		c.window.recordBacklight(backlight)
		return nil
	}

	lux := c.window.smoothed()

	inForce := backlight
	observing := c.window.backlightLast == backlight && (!c.st.empty() || c.pendingCountdown > 0)
	if observing {
		newBacklight, err := c.observe(lux, luma, backlight)
		inForce = newBacklight
		if err != nil {
			c.window.recordBacklight(inForce)
			return err
		}
	} else {
		// S2 User-change detected.
		c.pendingLux, c.pendingLuma, c.pendingBacklight = lux, luma, backlight
		c.pendingCountdown = quietPeriod
	}

	c.window.recordBacklight(inForce)
	return nil
}

// observe implements the S1 Observing branch: either predict-and-drive, or
// tick the pending-change countdown toward commit. It returns the
// backlight value in force once the branch's action has completed.
func (c *controller) observe(lux, luma, backlight int) (int, error) {
	if c.pendingCountdown == 0 {
		// Store is guaranteed non-empty here: observing requires
		// (store non-empty || pendingCountdown > 0), and this branch is
		// only reached when pendingCountdown == 0.
		target := predict(c.st, lux, luma)
		if target != backlight {
			if err := driveTransition(c.dev, c.sl, backlight, target); err != nil {
				return backlight, err
			}
			return target, nil
		}
		return backlight, nil
	}

	if c.pendingCountdown > 1 {
		c.pendingCountdown--
		return backlight, nil
	}

	// pendingCountdown == 1: commit.
	c.pendingCountdown = 0
	c.st.add(c.pendingLux, c.pendingLuma, c.pendingBacklight)
	return backlight, c.persist()
}
