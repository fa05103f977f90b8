package cli

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fwbundle/fwbundle/pkg/bundle"
	"github.com/fwbundle/fwbundle/pkg/config"
)

func newVerifyCommand(a *app) *cobra.Command {
	var (
		noSignature bool
		parallel    int
	)

	cmd := &cobra.Command{
		Use:   "verify <bundle-dir>...",
		Short: "Verify signature, checksums and compatibility of bundles",
		Long: `Verify one or more bundle directories. For each bundle the detached
manifest signature is checked against the keyring first, then every payload
checksum, then the manifest's compatible string against this system's.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCompatible(a.cfg); err != nil {
				return err
			}

			mgr := bundle.NewManager(a.cfg, a.logger, bundle.WithParallelism(parallel))
			manifests, err := mgr.VerifyBundles(cmd.Context(), args, !noSignature)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, mf := range manifests {
				version := mf.UpdateVersion
				if version == "" {
					version = "-"
				}
				fmt.Fprintf(out, "OK %s (%s %s)\n", args[i], mf.UpdateCompatible, version)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&noSignature, "no-signature", false, "skip the signature check")
	flags.String("keyring", "", "file with trusted verifier keys, one per line")
	flags.String("keyring-mode", "", "required signers: any or all")
	flags.IntVar(&parallel, "parallel", runtime.NumCPU(), "bundles verified at once")

	a.bind("keyring.path", flags.Lookup("keyring"))
	a.bind("keyring.mode", flags.Lookup("keyring-mode"))

	return cmd
}

func requireCompatible(cfg *config.Config) error {
	if cfg.System.Compatible == "" {
		return errors.New("no compatible configured for this system (use --compatible or system.compatible)")
	}
	return nil
}
