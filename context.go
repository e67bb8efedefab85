package authcore

import (
	"context"

	"github.com/candidsky/authcore/session"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceInfoContextKey struct{}
type networkMetadataContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it
// for per-IP rate limiting, audit events and session metadata.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceInfo attaches client device fields to ctx. They are persisted
// verbatim on sessions the engine creates.
func WithDeviceInfo(ctx context.Context, info session.DeviceInfo) context.Context {
	return context.WithValue(ctx, deviceInfoContextKey{}, info)
}

// WithNetworkMetadata attaches reported client-location fields to ctx. They
// are persisted verbatim on sessions the engine creates.
func WithNetworkMetadata(ctx context.Context, meta session.NetworkMetadata) context.Context {
	return context.WithValue(ctx, networkMetadataContextKey{}, meta)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func deviceInfoFromContext(ctx context.Context) session.DeviceInfo {
	if ctx == nil {
		return session.DeviceInfo{}
	}

	info, _ := ctx.Value(deviceInfoContextKey{}).(session.DeviceInfo)
	return info
}

func networkMetadataFromContext(ctx context.Context) session.NetworkMetadata {
	if ctx == nil {
		return session.NetworkMetadata{}
	}

	meta, _ := ctx.Value(networkMetadataContextKey{}).(session.NetworkMetadata)
	return meta
}
