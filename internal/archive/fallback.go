package archive

import (
	"context"
	"fmt"
	"log/slog"
)

type fallbackPacker struct {
	primary  Packer
	fallback Packer
	logger   *slog.Logger
}

// WithFallback tries primary first and fallback when it fails. A nil
// primary means fallback only. When both fail the error wraps ErrArchiving.
func WithFallback(primary, fallback Packer, logger *slog.Logger) Packer {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackPacker{primary: primary, fallback: fallback, logger: logger}
}

func (p *fallbackPacker) Pack(ctx context.Context, sourceDir, destPath, rootName string) (string, error) {
	if p.primary != nil {
		out, err := p.primary.Pack(ctx, sourceDir, destPath, rootName)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrArchiving, ctx.Err())
		}
		p.logger.Warn("primary packer failed, packing locally", "error", err)
	}

	out, err := p.fallback.Pack(ctx, sourceDir, destPath, rootName)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrArchiving, err)
	}
	return out, nil
}
