package camera

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// fourccMJPEG requests MJPEG-encoded frames from the V4L2 driver, matching
// the USB camera modules this controller targets.
const fourccMJPEG = "MJPG"

// GocvBackend drives one USB camera through gocv's V4L2 VideoCapture,
// following the same open/configure/warm-up shape as a standard
// OpenCV-backed webcam wrapper: explicit FOURCC selection, a discarded
// warm-up frame after any reconfiguration, and JPEG re-encoding of the
// captured gocv.Mat before handing bytes to the caller.
type GocvBackend struct {
	deviceID int
	webcam   *gocv.VideoCapture
	jpegQ    int
}

// NewGocvBackend targets a V4L2 device index (e.g. /dev/video0 -> 0).
func NewGocvBackend(deviceID, jpegQuality int) *GocvBackend {
	return &GocvBackend{deviceID: deviceID, jpegQ: jpegQuality}
}

func (g *GocvBackend) Open(res Resolution) error {
	if g.webcam != nil {
		g.webcam.Close()
	}
	webcam, err := gocv.OpenVideoCaptureWithAPI(g.deviceID, gocv.VideoCaptureV4L2)
	if err != nil {
		return fmt.Errorf("open video capture %d: %w", g.deviceID, err)
	}
	webcam.Set(gocv.VideoCaptureFOURCC, gocv.VideoWriterFourcc(fourccMJPEG[0], fourccMJPEG[1], fourccMJPEG[2], fourccMJPEG[3]))
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))
	g.webcam = webcam

	// discard a warm-up frame: the first frame after opening a V4L2 device
	// is frequently stale or partially black.
	warm := gocv.NewMat()
	defer warm.Close()
	g.webcam.Read(&warm)
	return nil
}

func (g *GocvBackend) Close() error {
	if g.webcam == nil {
		return nil
	}
	err := g.webcam.Close()
	g.webcam = nil
	return err
}

func (g *GocvBackend) Start() error {
	// gocv's VideoCapture has no separate start/stop primitive; Open/Close
	// double as the stream lifecycle. Start is a no-op once Open succeeds.
	return nil
}

func (g *GocvBackend) Stop() error {
	return nil
}

func (g *GocvBackend) SetFocus(raw int) error {
	if g.webcam == nil {
		return fmt.Errorf("camera not open")
	}
	g.webcam.Set(gocv.VideoCaptureFocus, float64(raw))
	return nil
}

func (g *GocvBackend) GetFocus() (int, error) {
	if g.webcam == nil {
		return 0, fmt.Errorf("camera not open")
	}
	return int(g.webcam.Get(gocv.VideoCaptureFocus)), nil
}

func (g *GocvBackend) Autofocus() (int, error) {
	if g.webcam == nil {
		return 0, fmt.Errorf("camera not open")
	}
	g.webcam.Set(gocv.VideoCaptureAutofocus, 1)
	// allow the driver's autofocus sweep to settle before reading back the
	// lens position it converged on.
	raw, err := g.GetFocus()
	if err != nil {
		return 0, err
	}
	return raw, nil
}

func (g *GocvBackend) SetAutoExposure(on bool) error {
	if g.webcam == nil {
		return fmt.Errorf("camera not open")
	}
	if on {
		g.webcam.Set(gocv.VideoCaptureAutoExposure, 1)
	} else {
		g.webcam.Set(gocv.VideoCaptureAutoExposure, 0)
	}
	return nil
}

func (g *GocvBackend) ReadFrame(ctx context.Context) ([]byte, error) {
	if g.webcam == nil {
		return nil, fmt.Errorf("camera not open")
	}
	type result struct {
		buf []byte
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		mat := gocv.NewMat()
		defer mat.Close()
		if ok := g.webcam.Read(&mat); !ok || mat.Empty() {
			resCh <- result{err: fmt.Errorf("timeout: failed to queue buffer")}
			return
		}
		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, g.jpegQ})
		if err != nil {
			resCh <- result{err: err}
			return
		}
		resCh <- result{buf: buf.GetBytes()}
	}()
	select {
	case r := <-resCh:
		return r.buf, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
