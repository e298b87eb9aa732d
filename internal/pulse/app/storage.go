package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/pulse/internal/pulse/blob"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/internal/pulse/store/drivers/postgres"
	"github.com/aussiebroadwan/pulse/internal/pulse/store/drivers/sqlite"
)

// LocalMediaPrefix is where the local avatar driver's files are served.
const LocalMediaPrefix = "/media"

// OpenStore picks the driver from the URL scheme and, when asked, brings the
// schema up to date.
func OpenStore(ctx context.Context, cfg DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	var (
		st     store.Store
		driver string
		err    error
	)

	if cfg.Postgres() {
		driver = "postgres"
		st, err = postgres.NewStore(ctx, cfg.URL)
	} else {
		driver = "sqlite"
		st, err = sqlite.NewStore(cfg.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if cfg.AutoMigrate {
		status, err := st.ApplyMigrations(ctx)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		logger.Info("database migrations applied", "driver", driver, "status", status)
	}

	return st, nil
}

// OpenAvatarStore builds the configured blob driver. For the local driver it
// also returns the handler serving the files, mounted under LocalMediaPrefix.
func OpenAvatarStore(ctx context.Context, cfg AvatarConfig) (blob.Store, http.Handler, error) {
	switch cfg.Driver {
	case AvatarDriverLocal:
		base := cfg.PublicBaseURL
		if base == "" {
			base = LocalMediaPrefix
		}
		s, err := blob.NewLocalStore(cfg.Dir, base)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Handler(), nil

	case AvatarDriverMinio:
		s, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:      cfg.Endpoint,
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			PublicBaseURL: cfg.PublicBaseURL,
			CreateBucket:  true,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil

	case AvatarDriverS3:
		s, err := blob.NewS3Store(ctx, blob.S3Config{
			Region:        cfg.Region,
			Bucket:        cfg.Bucket,
			Endpoint:      cfg.Endpoint,
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}

	return nil, nil, fmt.Errorf("unknown avatar driver %q", cfg.Driver)
}
