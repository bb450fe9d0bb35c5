package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/archive"
	"github.com/grapheneos/appstore/pkg/fsutil"
	"github.com/grapheneos/appstore/pkg/repository"
	"github.com/grapheneos/appstore/pkg/signature"
)

// NewRepoCmd creates the repo command with subcommands. They publish a
// repository; none of them touches the local client state.
func NewRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Publish a package repository",
		Long:  "Generate signing keys, pack apks and sign repository metadata",
	}

	cmd.AddCommand(
		newRepoKeygenCmd(),
		newRepoSignCmd(),
		newRepoPackCmd(),
	)

	return cmd
}

func newRepoKeygenCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Long: `Generate an Ed25519 signing key. The public key is printed; the
private key is written to --out, or printed when --out is not set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepoKeygen(cmd, out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "File to write the private key to")

	return cmd
}

func runRepoKeygen(cmd *cobra.Command, out string) error {
	signer, err := signature.GenerateSigner()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if out == "" {
		_, _ = fmt.Fprintf(w, "public key:  %s\nprivate key: %s\n", signer.PublicKey(), signer.PrivateKey())
		return nil
	}
	if err := fsutil.WriteFileAtomic(out, []byte(signer.PrivateKey()+"\n"), fsutil.FileModePrivate); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	_, _ = fmt.Fprintf(w, "public key: %s\n", signer.PublicKey())
	logger.Debug("Wrote private key", logger.Fields{"path": out})
	return nil
}

func readSigner(path string) (*signature.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return signature.NewSigner(strings.TrimSpace(string(data)))
}

func newRepoSignCmd() *cobra.Command {
	var (
		keyPath    string
		outDir     string
		keyVersion int
	)

	cmd := &cobra.Command{
		Use:   "sign METADATA.json",
		Short: "Sign repository metadata",
		Long: `Canonicalize a metadata document and write the signed form to
<out>/metadata.<format>.<key-version>.sjson.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoSign(cmd, args[0], keyPath, outDir, keyVersion)
		},
	}

	cmd.Flags().StringVar(&keyPath, "key", "", "Private key file")
	cmd.Flags().StringVar(&outDir, "out", ".", "Repository root directory")
	cmd.Flags().IntVar(&keyVersion, "key-version", 0, "Key version in the metadata file name")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runRepoSign(cmd *cobra.Command, src, keyPath, outDir string, keyVersion int) error {
	signer, err := readSigner(keyPath)
	if err != nil {
		return err
	}
	doc, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	body, err := repository.SignMetadata(signer, doc)
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(outDir); err != nil {
		return err
	}
	dst := filepath.Join(outDir, repository.MetadataFileName(keyVersion))
	if err := fsutil.WriteFileAtomic(dst, body, fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to write signed metadata: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), dst)
	return nil
}

func newRepoPackCmd() *cobra.Command {
	var (
		outDir      string
		pkgName     string
		versionCode int64
	)

	cmd := &cobra.Command{
		Use:   "pack APK...",
		Short: "Compress apks into the repository layout",
		Long: `Compress the apks of one package version to
<out>/packages/<package>/<version>/<apk>.gz and print the variant entry
for the metadata document. The package name and version code are read
from base.apk unless given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packed, err := repository.PackVariant(cmd.Context(), archive.NewManager(), outDir, args, repository.PackOptions{
				ManifestName: pkgName,
				VersionCode:  versionCode,
				ReadManifest: ReadManifest,
			})
			if err != nil {
				return err
			}
			logger.Debug("Packed variant", logger.Fields{"package": packed.ManifestName, "version_code": packed.VersionCode})
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				packed.ManifestName: map[string]interface{}{
					"variants": map[string]*repository.PackedVariant{
						fmt.Sprint(packed.VersionCode): packed,
					},
				},
			})
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "Repository root directory")
	cmd.Flags().StringVar(&pkgName, "package", "", "Package name (default: from base.apk)")
	cmd.Flags().Int64Var(&versionCode, "version-code", 0, "Version code (default: from base.apk)")

	return cmd
}
