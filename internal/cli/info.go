package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fwbundle/fwbundle/pkg/bundle"
	"github.com/fwbundle/fwbundle/pkg/manifest"
)

func newInfoCommand(a *app) *cobra.Command {
	var (
		output   string
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "info <bundle-dir>",
		Short: "Print the manifest of a bundle",
		Long: `Print the manifest of a bundle directory after verifying it like the
verify command does. --no-verify prints the manifest as found on disk; its
content is then untrusted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			var (
				mf  *manifest.Manifest
				err error
			)
			if noVerify {
				mf, err = manifest.Load(filepath.Join(dir, bundle.ManifestFilename))
			} else {
				if err := requireCompatible(a.cfg); err != nil {
					return err
				}
				mf, err = bundle.NewManager(a.cfg, a.logger).VerifyManifest(dir, true)
			}
			if err != nil {
				return err
			}

			return printManifest(cmd.OutOrStdout(), mf, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, yaml, json)")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "print without verifying the bundle")

	return cmd
}

func printManifest(w io.Writer, mf *manifest.Manifest, format string) error {
	switch format {
	case "text":
		printManifestText(w, mf)
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode manifest: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode manifest: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}
}

func printManifestText(w io.Writer, mf *manifest.Manifest) {
	fmt.Fprintf(w, "Compatible: %s\n", mf.UpdateCompatible)
	if mf.UpdateVersion != "" {
		fmt.Fprintf(w, "Version:    %s\n", mf.UpdateVersion)
	}
	if mf.Keyring != "" {
		fmt.Fprintf(w, "Keyring:    %s\n", mf.Keyring)
	}
	if mf.HandlerName != "" || mf.HandlerArgs != "" {
		fmt.Fprintf(w, "Handler:    %s %s\n", mf.HandlerName, mf.HandlerArgs)
	}

	fmt.Fprintf(w, "Images:     %d\n", len(mf.Images))
	for _, image := range mf.Images {
		fmt.Fprintf(w, "  [%s] %s %s\n", image.SlotClass, image.Filename, image.Checksum)
	}

	if len(mf.Files) > 0 {
		fmt.Fprintf(w, "Files:      %d\n", len(mf.Files))
		for _, file := range mf.Files {
			fmt.Fprintf(w, "  [%s/%s] %s %s\n", file.SlotClass, file.DestName, file.Filename, file.Checksum)
		}
	}
}
