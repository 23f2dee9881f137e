package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/fireflycore/payload-proxy/codec"
	"github.com/fireflycore/payload-proxy/descriptor"
	"github.com/fireflycore/payload-proxy/internal/config"
	"github.com/fireflycore/payload-proxy/internal/filestore"
	"github.com/fireflycore/payload-proxy/payloadindex"
	"github.com/fireflycore/payload-proxy/proxy"
	"github.com/fireflycore/payload-proxy/wire"
)

const (
	payloadTypeSuffix         = "Payload"
	payloadsWrapperTypeSuffix = "Payloads"
)

var externalStoreDir string

func newServeCommand() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the interception pipeline in front of a gRPC upstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}

	cfg.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&externalStoreDir, "external-store-dir", "",
		"directory for the file-backed external store (codec-strategy=batched-external-store only)")
	cmd.MarkFlagRequired("descriptor-file-path")
	cmd.MarkFlagRequired("upstream-address")

	return cmd
}

func runServe(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	data, err := os.ReadFile(cfg.DescriptorFilePath)
	if err != nil {
		return fmt.Errorf("read descriptor set: %w", err)
	}
	store, err := descriptor.Load(data)
	if err != nil {
		return fmt.Errorf("load descriptor set: %w", err)
	}

	sentinels := wire.Sentinels{
		PayloadTypeName:         cfg.ScanPackagePrefix + payloadTypeSuffix,
		PayloadsWrapperTypeName: cfg.ScanPackagePrefix + payloadsWrapperTypeSuffix,
	}

	index := payloadindex.Build(store, store.AllMessages(), payloadindex.Options{
		ScanPackagePrefix:           cfg.ScanPackagePrefix,
		PayloadTypeName:             sentinels.PayloadTypeName,
		PayloadsWrapperTypeName:     sentinels.PayloadsWrapperTypeName,
		AttributesContainerTypeName: cfg.ScanPackagePrefix + payloadindex.DefaultAttributesContainerSuffix,
		ExcludeAttributesContainer:  cfg.ExcludeIndexedAttributesContainer,
	})

	newCodec, err := codecFactory(cfg)
	if err != nil {
		return err
	}

	pipeline := &proxy.Pipeline{
		Store:     store,
		Index:     index,
		Sentinels: sentinels,
		NewCodec:  newCodec,
		Logger:    logger,
		Upstream:  cfg.UpstreamAddress,
	}

	logger.Info("starting payload-proxy",
		zap.String("listen", cfg.ListenAddress),
		zap.String("upstream", cfg.UpstreamAddress),
		zap.String("codec-strategy", string(cfg.CodecStrategy)))

	h2s := &http2.Server{}
	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: h2c.NewHandler(pipeline.Handler(), h2s),
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	return server.Serve(listener)
}

// codecFactory builds the NewCodec constructor spec §6's codec-strategy
// selects. Every call gets a fresh instance (spec §5: no shared mutable
// codec state across calls).
func codecFactory(cfg *config.Config) (proxy.NewCodec, error) {
	switch cfg.CodecStrategy {
	case config.CodecDefaultInlineTransform:
		return func() codec.Transformer { return codec.InlineCodec{} }, nil
	case config.CodecBatchedExternalStore:
		if externalStoreDir == "" {
			return nil, fmt.Errorf("config: --external-store-dir is required for codec-strategy=%s", config.CodecBatchedExternalStore)
		}
		store := &filestore.Store{Dir: externalStoreDir}
		return func() codec.Transformer { return &codec.BatchingCodec{Store: store} }, nil
	default:
		return nil, fmt.Errorf("config: unknown codec-strategy %q", cfg.CodecStrategy)
	}
}
