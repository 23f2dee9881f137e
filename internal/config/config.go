// Package config defines the process-wide configuration surface (spec §6)
// and binds it to command-line flags via github.com/spf13/pflag, the way
// bureau-foundation-bureau's cmd/bureau/cli package binds its own command
// structs.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// CodecStrategy selects which reference implementation of C4 the process
// installs.
type CodecStrategy string

const (
	CodecDefaultInlineTransform CodecStrategy = "default-inline-transform"
	CodecBatchedExternalStore   CodecStrategy = "batched-external-store"
)

// Config is the complete configuration surface enumerated in spec §6.
// Codec-specific options are intentionally left opaque to this struct —
// the batching codec's external store endpoint is its own concern, bound
// separately by whichever command needs it.
type Config struct {
	DescriptorFilePath                string
	ScanPackagePrefix                 string
	ExcludeIndexedAttributesContainer bool
	CodecStrategy                     CodecStrategy

	ListenAddress   string
	UpstreamAddress string
}

// BindFlags registers Config's fields on flagSet with the long flag names
// spec §6 enumerates verbatim.
func (c *Config) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.DescriptorFilePath, "descriptor-file-path", "", "path to a serialized FileDescriptorSet (required)")
	flagSet.StringVar(&c.ScanPackagePrefix, "scan-package-prefix", "", "package prefix scanned for payload-bearing types")
	flagSet.BoolVar(&c.ExcludeIndexedAttributesContainer, "exclude-indexed-attributes-container", false, "suppress the SA sentinel type from indexing")
	flagSet.StringVar((*string)(&c.CodecStrategy), "codec-strategy", string(CodecDefaultInlineTransform), "default-inline-transform or batched-external-store")
	flagSet.StringVar(&c.ListenAddress, "listen-address", ":8443", "address the interception pipeline listens on")
	flagSet.StringVar(&c.UpstreamAddress, "upstream-address", "", "gRPC upstream host:port (required)")
}

// Validate checks the invariants spec §6 states outright: the descriptor
// file must exist at startup, and the codec strategy must name one of the
// two reference implementations.
func (c *Config) Validate() error {
	if c.DescriptorFilePath == "" {
		return fmt.Errorf("config: descriptor-file-path is required")
	}
	if _, err := os.Stat(c.DescriptorFilePath); err != nil {
		return fmt.Errorf("config: descriptor-file-path %q: %w", c.DescriptorFilePath, err)
	}
	switch c.CodecStrategy {
	case CodecDefaultInlineTransform, CodecBatchedExternalStore:
	default:
		return fmt.Errorf("config: unknown codec-strategy %q", c.CodecStrategy)
	}
	if c.UpstreamAddress == "" {
		return fmt.Errorf("config: upstream-address is required")
	}
	return nil
}
