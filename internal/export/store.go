package export

import (
	"context"
	"fmt"

	"github.com/chifamba/dzinza-sub004/internal/infra/blob"
	"github.com/chifamba/dzinza-sub004/internal/infra/blob/fs"
	"github.com/chifamba/dzinza-sub004/internal/infra/blob/memory"
	"github.com/chifamba/dzinza-sub004/internal/infra/blob/s3"
	"github.com/chifamba/dzinza-sub004/internal/platform/config"
)

// OpenStore builds the blob store selected by cfg.
func OpenStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch blob.Driver(cfg.Driver) {
	case blob.DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case blob.DriverMemory:
		return memory.New(), nil
	case blob.DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
