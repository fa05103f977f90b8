package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fwbundle/fwbundle/pkg/signature"
)

func newKeygenCommand() *cobra.Command {
	var (
		name   string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a manifest signing key",
		Long: `Generate an Ed25519 signing key and its certificate.

The key is written to <out>/<name>.key (mode 0600) and the certificate to
<out>/<name>.pub. Add the certificate line to the keyring of the devices
that should accept bundles signed with the key.`,
		Args: cobra.NoArgs,
		// Keys can be generated without any configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := signature.GenerateKey(name)
			if err != nil {
				return err
			}

			keyPath, certPath, err := signature.WriteKeyPair(outDir, kp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signing key: %s\n", keyPath)
			fmt.Fprintf(out, "Certificate: %s\n", certPath)
			fmt.Fprintf(out, "Keyring line:\n%s\n", kp.Public)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "key name embedded in signatures")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the key files to")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
