package progress

import (
	"testing"

	"go.uber.org/zap"
)

func TestLoggingViewUpdateDoesNotPanic(t *testing.T) {
	v := NewLoggingView(zap.NewNop().Sugar())
	v.Update(Snapshot{PiecesComplete: 3, PiecesTotal: 10, DownloadRate: 1024, UploadRate: 512})
}
