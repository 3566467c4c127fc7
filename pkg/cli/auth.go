package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "registry_token"
	keyringService = "loanrisk"
	keyringUser    = "registry_token"
)

var (
	tokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "Model registry access token (read from stdin when omitted)",
	}

	clearTokenFlag = &cli.BoolFlag{
		Name:  "clear",
		Usage: "Remove the saved token",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Save the model registry access token used by artifacts pull",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			tokenFlag,
			clearTokenFlag,
		},
	}
)

func cmdAuth(c *cli.Context) error {
	cfg := getConfig(c)

	if c.Bool(clearTokenFlag.Name) {
		if err := clearRegistryToken(cfg.HomeDir); err != nil {
			return fmt.Errorf("clearing token: %w", err)
		}
		fmt.Fprintln(c.App.Writer, "Token removed")
		return nil
	}

	token := c.String(tokenFlag.Name)
	if token == "" {
		fmt.Fprint(c.App.Writer, "Paste the registry token and hit enter:\n>")
		line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading user input: %w", err)
		}
		token = line
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token cannot be empty")
	}

	if err := saveRegistryToken(cfg.HomeDir, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(c.App.Writer, "Token saved")
	return nil
}

func saveRegistryToken(homeDir, token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveRegistryTokenFile(homeDir, token)
	}

	// Clean up legacy file if it exists
	os.Remove(filepath.Join(homeDir, tokenFileName))

	return nil
}

func getRegistryToken(homeDir string) (string, error) {
	// Try keychain first
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	// Fall back to file
	token, err = getRegistryTokenFile(homeDir)
	if err != nil {
		return "", err
	}

	// Migrate to keychain
	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		os.Remove(filepath.Join(homeDir, tokenFileName))
	}

	return token, nil
}

func clearRegistryToken(homeDir string) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain delete failed", "error", err)
	}
	if err := os.Remove(filepath.Join(homeDir, tokenFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func saveRegistryTokenFile(homeDir, token string) error {
	return os.WriteFile(filepath.Join(homeDir, tokenFileName), []byte(token), fileMode)
}

func getRegistryTokenFile(homeDir string) (string, error) {
	tokenPath := filepath.Join(homeDir, tokenFileName)
	b, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", tokenPath, err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", tokenPath)
	}
	return token, nil
}
