package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fwbundle/fwbundle/pkg/bundle"
	"github.com/fwbundle/fwbundle/pkg/checksum"
)

func newUpdateCommand(a *app) *cobra.Command {
	var (
		sign     bool
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "update <bundle-dir>",
		Short: "Recompute checksums and rewrite the manifest",
		Long: `Recompute the checksum of every image and file listed in the manifest
of a bundle directory, append the configured handler arguments and write the
manifest back. With --sign the written manifest is signed and the detached
signature stored as ` + bundle.SignatureFilename + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			if sign && !a.cfg.SigningConfigured() {
				return errors.New("--sign requires --cert and --key (or signing.cert_path and signing.key_path)")
			}

			hasher := checksum.NewFileHasher()
			if progress {
				hasher.Wrap = progressWrapper(cmd.ErrOrStderr())
			}

			mgr := bundle.NewManager(a.cfg, a.logger, bundle.WithHasher(hasher))
			if err := mgr.UpdateManifest(dir, sign); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Updated %s\n", filepath.Join(dir, bundle.ManifestFilename))
			if sign {
				fmt.Fprintf(out, "Signed  %s\n", filepath.Join(dir, bundle.SignatureFilename))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&sign, "sign", false, "sign the updated manifest")
	flags.String("cert", "", "certificate (verifier key) matching the signing key")
	flags.String("key", "", "signing key")
	flags.String("handler-extra", "", "arguments appended to handler.args")
	flags.BoolVar(&progress, "progress", false, "show hashing progress")

	a.bind("signing.cert_path", flags.Lookup("cert"))
	a.bind("signing.key_path", flags.Lookup("key"))
	a.bind("handler.extra", flags.Lookup("handler-extra"))

	return cmd
}
