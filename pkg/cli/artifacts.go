package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mchmarny/loanrisk/pkg/artifact"
	"github.com/mchmarny/loanrisk/pkg/net"
	"github.com/urfave/cli/v2"
)

const (
	artifactsDirName = "artifacts"
	dirMode          = 0700
)

var (
	registryURLFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "Base URL of the model registry holding the artifact pair (default: registryURL from config)",
	}

	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "Download even when the local version matches the remote one",
	}

	artifactsCmd = &cli.Command{
		Name:            "artifacts",
		Aliases:         []string{"a"},
		Usage:           "Model artifact operations",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Resolve the model artifacts and print their metadata",
				Action: cmdArtifactsShow,
			},
			{
				Name:  "pull",
				Usage: "Download the artifact pair from the model registry",
				UsageText: `loanrisk artifacts pull --url https://models.example.com/loan-default/2025.08.1
   loanrisk --root /srv/loanrisk artifacts pull --force`,
				Action: cmdArtifactsPull,
				Flags: []cli.Flag{
					registryURLFlag,
					forceFlag,
				},
			},
		},
	}
)

func cmdArtifactsShow(c *cli.Context) error {
	cfg := getConfig(c)
	m, b, err := cfg.model()
	if err != nil {
		return err
	}
	return encode(c.App.Writer, cfg.Format, &metadataResponse{
		Metadata:     m.Metadata(),
		PipelinePath: b.PipelinePath,
		MetadataPath: b.MetadataPath,
	})
}

func cmdArtifactsPull(c *cli.Context) error {
	cfg := getConfig(c)

	base := c.String(registryURLFlag.Name)
	if base == "" {
		base = cfg.Conf.RegistryURL
	}
	if base == "" {
		return errors.New("registry URL required (--url or registryURL in config)")
	}

	pipelineURL, err := url.JoinPath(base, artifact.PipelineFileName)
	if err != nil {
		return fmt.Errorf("invalid registry URL: %s: %w", base, err)
	}
	metadataURL, err := url.JoinPath(base, artifact.MetadataFileName)
	if err != nil {
		return fmt.Errorf("invalid registry URL: %s: %w", base, err)
	}

	token, err := getRegistryToken(cfg.HomeDir)
	if err != nil {
		slog.Debug("no registry token, pulling anonymously", "error", err)
	}
	client, err := net.GetClient(c.Context, token)
	if err != nil {
		return fmt.Errorf("creating HTTP client: %w", err)
	}

	var remote artifact.Metadata
	if err := net.GetJSON(c.Context, client, metadataURL, &remote); err != nil {
		return fmt.Errorf("fetching remote metadata: %w", err)
	}
	slog.Info("remote model", "version", remote.Version, "trained_at", remote.TrainedAt)

	dir := filepath.Join(cfg.Conf.ArtifactRoot, artifactsDirName)
	if !c.Bool(forceFlag.Name) && remote.Version != "" {
		local, err := artifact.ReadMetadata(filepath.Join(dir, artifact.MetadataFileName))
		if err == nil && local.Version == remote.Version {
			slog.Info("artifacts up to date", "version", local.Version, "dir", dir)
			return nil
		}
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create dir: %s: %w", dir, err)
	}
	staging, err := os.MkdirTemp(dir, ".pull-")
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for src, name := range map[string]string{
		pipelineURL: artifact.PipelineFileName,
		metadataURL: artifact.MetadataFileName,
	} {
		if err := net.Download(c.Context, client, src, filepath.Join(staging, name)); err != nil {
			return fmt.Errorf("downloading %s: %w", name, err)
		}
	}

	// the pair has to load cleanly before it replaces the current one
	b, err := artifact.Load(staging, []artifact.Candidate{{
		Dir:      ".",
		Pipeline: artifact.PipelineFileName,
		Metadata: artifact.MetadataFileName,
	}})
	if err != nil {
		return fmt.Errorf("downloaded artifacts are invalid: %w", err)
	}

	for _, name := range []string{artifact.PipelineFileName, artifact.MetadataFileName} {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
	}

	slog.Info("artifacts installed", "dir", dir, "version", b.Metadata.Version)
	return nil
}
