package app

import (
	"time"

	"github.com/ayusman/camgestures/internal/lifecycle"
	"github.com/ayusman/camgestures/internal/metrics"
)

// runPipeline is the only goroutine that touches the camera, the model and
// the controller's tick and frame callbacks, so OnTick and OnFrame never
// overlap.
func (a *App) runPipeline(ctrl *lifecycle.Controller, stopCh <-chan struct{}, resetCh <-chan struct{}) {
	defer a.done.Done()

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = a.settings.Camera.FPS
	}
	frames := time.NewTicker(time.Second / time.Duration(fps))
	defer frames.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-resetCh:
			ctrl.Reset()
		case <-a.scheduler.C():
			ctrl.OnTick()
		case <-frames.C:
			a.processFrame(ctrl)
		}
	}
}

// processFrame captures one frame, publishes it to the preview and hands its
// embedding to the controller when the controller wants it. The frame and
// embedding are released on every path.
func (a *App) processFrame(ctrl *lifecycle.Controller) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.fail(metrics.FailureCamera, err)
		return
	}
	defer frame.Close()
	a.metrics.FramesCaptured.Add(1)

	if err := a.preview.Encode(frame); err != nil {
		a.logger.Debug().Err(err).Msg("preview encode failed")
	}

	if !ctrl.WantsFrame() {
		a.metrics.FramesSkipped.Add(1)
		return
	}

	start := time.Now()
	emb, err := a.extractor.Infer(frame)
	if err != nil {
		a.fail(metrics.FailureModel, err)
		return
	}
	a.metrics.ObserveInference(time.Since(start))

	if err := ctrl.OnFrame(emb); err != nil {
		a.fail(metrics.FailureClassification, err)
	}
}
