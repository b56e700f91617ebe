package handlers

import (
	"context"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/service"
	"tollbooth/backend/services/toll-controller/internal/tollproto"
	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
)

// ImageCapturer takes a picture of the approaching vehicle and returns the image path.
type ImageCapturer interface {
	Capture(ctx context.Context) (string, error)
}

// NewCaptureHandler runs the capture side effect and then closes the barrier, whether or not
// the capture succeeded.
func NewCaptureHandler(capturer ImageCapturer, state *service.StatusState, logger *zap.Logger) tollproto.HandlerFunc {
	return func(ctx context.Context, _ protocol.Event) error {
		state.VehicleDetected()

		// A capture already started finishes even if shutdown begins meanwhile.
		path, err := capturer.Capture(context.WithoutCancel(ctx))
		if err != nil {
			logger.Warn("vehicle capture failed", zap.String("path", path), zap.Error(err))
		}
		if ctx.Err() != nil {
			logger.Warn("capture completed during shutdown", zap.String("path", path))
		}

		state.CaptureCompleted(path, err)
		return nil
	}
}
