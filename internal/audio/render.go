package audio

// Render implements Renderer. It fills dst from the installed voice, feeds
// channel 0 to the analyzer block by block, and posts an end-of-track
// notification once the voice runs dry. It never takes the engine lock.
func (e *Engine) Render(dst [][2]float64) {
	v := e.voice.Load()
	if v == nil || !e.running.Load() {
		silence(dst)
		return
	}

	n := 0
	if !v.ended.Load() {
		for n < len(dst) {
			k, ok := v.stream.Stream(dst[n:])
			n += k
			if !ok {
				v.ended.Store(true)
				break
			}
			if k == 0 {
				break
			}
		}
	}
	silence(dst[n:])

	if n > 0 {
		v.rendered.Add(int64(n))
		e.analyze(v, dst[:n])
	}

	if v.ended.Load() {
		e.postEnd(v)
	}
}

// postEnd hands the end of v to the transport side exactly once.
func (e *Engine) postEnd(v *voice) {
	if !v.notified.CompareAndSwap(false, true) {
		return
	}
	gen := v.gen
	e.sched.AfterFunc(0, func() { e.trackEnded(gen) })
}

// analyze accumulates channel 0 of frames into the current block and
// publishes a spectral frame whenever the block fills.
func (e *Engine) analyze(v *voice, frames [][2]float64) {
	if e.analyzer == nil {
		return
	}
	if v.gen != e.blockGen {
		e.blockGen = v.gen
		e.blockLen = 0
	}

	rendered := int(v.rendered.Load()) - len(frames)
	for i, f := range frames {
		e.block[e.blockLen] = f[0]
		e.blockLen++
		if e.blockLen < len(e.block) {
			continue
		}
		e.blockLen = 0

		e.analyzer.AnalyzeInto(e.mags, e.block)
		e.seq++
		elapsed := v.start + e.outRate.D(rendered+i+1)
		frame := NewFrame(e.seq, e.mags, e.maxMag, elapsed)
		if e.voice.Load() != v {
			continue
		}
		e.latest.Store(&frame)
		// A halt or a new voice may have landed between the check and the
		// store; never leave this voice's frame behind it.
		if e.voice.Load() != v {
			e.latest.CompareAndSwap(&frame, nil)
		}
	}
}

func silence(dst [][2]float64) {
	for i := range dst {
		dst[i] = [2]float64{}
	}
}
