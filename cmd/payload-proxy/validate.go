package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fireflycore/payload-proxy/descriptor"
	"github.com/fireflycore/payload-proxy/payloadindex"
)

// newValidateDescriptorsCommand reports the types-with-payloads set a
// descriptor set and scan prefix would produce, without starting the
// proxy — operational tooling implied by, but not spelled out in,
// §4.1/§4.2, carried over in the style of
// original_source/commands/operations/operations.go's focused,
// single-purpose subcommands.
func newValidateDescriptorsCommand() *cobra.Command {
	var descriptorFilePath string
	var scanPackagePrefix string
	var excludeAttributesContainer bool

	cmd := &cobra.Command{
		Use:   "validate-descriptors",
		Short: "Load a descriptor set and report which types carry payload fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateDescriptors(descriptorFilePath, scanPackagePrefix, excludeAttributesContainer)
		},
	}

	cmd.Flags().StringVar(&descriptorFilePath, "descriptor-file-path", "", "path to a serialized FileDescriptorSet")
	cmd.Flags().StringVar(&scanPackagePrefix, "scan-package-prefix", "", "package prefix scanned for payload-bearing types")
	cmd.Flags().BoolVar(&excludeAttributesContainer, "exclude-indexed-attributes-container", false, "suppress the SA sentinel type from indexing")
	cmd.MarkFlagRequired("descriptor-file-path")

	return cmd
}

func runValidateDescriptors(descriptorFilePath, scanPackagePrefix string, excludeAttributesContainer bool) error {
	data, err := os.ReadFile(descriptorFilePath)
	if err != nil {
		return fmt.Errorf("read descriptor set: %w", err)
	}
	store, err := descriptor.Load(data)
	if err != nil {
		return fmt.Errorf("load descriptor set: %w", err)
	}

	index := payloadindex.Build(store, store.AllMessages(), payloadindex.Options{
		ScanPackagePrefix:           scanPackagePrefix,
		PayloadTypeName:             scanPackagePrefix + payloadTypeSuffix,
		PayloadsWrapperTypeName:     scanPackagePrefix + payloadsWrapperTypeSuffix,
		AttributesContainerTypeName: scanPackagePrefix + payloadindex.DefaultAttributesContainerSuffix,
		ExcludeAttributesContainer:  excludeAttributesContainer,
	})

	types := index.TypesWithPayloads()
	sort.Strings(types)
	if len(types) == 0 {
		fmt.Println("no payload-bearing types found")
		return nil
	}
	fmt.Println("types with payloads:")
	for _, name := range types {
		fmt.Println(" ", name)
	}
	return nil
}
