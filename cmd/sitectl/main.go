package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	apiclient "github.com/splax/sitepress/pkg/api/client"
	"golang.org/x/term"
)

type cliConfig struct {
	APIBaseURL string            `json:"api_base_url"`
	EditTokens map[string]string `json:"edit_tokens,omitempty"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "submit":
		err = commandSubmit(args)
	case "resubmit":
		err = commandResubmit(args)
	case "status":
		err = commandStatus(args)
	case "modify":
		err = commandModify(args)
	case "artifact":
		err = commandArtifact(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		var apiErr apiclient.APIError
		if errors.As(err, &apiErr) && len(apiErr.FieldErrors) > 0 {
			fmt.Fprintf(os.Stderr, "error: %s\n", apiErr.Message)
			for field, msg := range apiErr.FieldErrors {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	file := fs.String("file", "", "Path to the business JSON document")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	wait := fs.Bool("wait", false, "Wait until the site is live or failed")
	timeout := fs.Duration("timeout", 5*time.Minute, "Maximum time to wait with --wait")
	fs.Parse(args)

	body, err := readBusiness(*file)
	if err != nil {
		return err
	}
	cfg, client, err := clientFromConfig(*apiBase)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	sub, err := client.Submit(ctx, body)
	cancel()
	if err != nil {
		return err
	}
	if sub.EditToken != "" {
		if cfg.EditTokens == nil {
			cfg.EditTokens = map[string]string{}
		}
		cfg.EditTokens[sub.BusinessID] = sub.EditToken
		if err := saveConfig(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: edit token not saved: %v\n", err)
		}
	}
	fmt.Printf("business:  %s\n", sub.BusinessID)
	fmt.Printf("subdomain: %s\n", sub.Subdomain)
	fmt.Printf("status:    %s\n", sub.Status)
	if sub.EditToken != "" {
		fmt.Printf("edit token: %s\n", sub.EditToken)
	}
	if !*wait {
		return nil
	}
	return waitAndReport(client, sub.BusinessID, *timeout)
}

func commandResubmit(args []string) error {
	fs := flag.NewFlagSet("resubmit", flag.ExitOnError)
	id := fs.String("id", "", "Business id")
	file := fs.String("file", "", "Path to the business JSON document")
	token := fs.String("token", "", "Edit token (defaults to the saved token)")
	apiBase := fs.String("api", "", "API base URL")
	wait := fs.Bool("wait", false, "Wait until the site is live or failed")
	timeout := fs.Duration("timeout", 5*time.Minute, "Maximum time to wait with --wait")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	body, err := readBusiness(*file)
	if err != nil {
		return err
	}
	cfg, client, err := clientFromConfig(*apiBase)
	if err != nil {
		return err
	}
	secret, err := editToken(cfg, *id, *token)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	sub, err := client.Resubmit(ctx, secret, *id, body)
	cancel()
	if err != nil {
		return err
	}
	fmt.Printf("resubmitted %s (%s)\n", sub.BusinessID, sub.Status)
	if !*wait {
		return nil
	}
	return waitAndReport(client, sub.BusinessID, *timeout)
}

func commandStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	id := fs.String("id", "", "Business id")
	subdomain := fs.String("subdomain", "", "Subdomain to look up instead of an id")
	apiBase := fs.String("api", "", "API base URL")
	asJSON := fs.Bool("json", false, "Print the raw status document")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" && strings.TrimSpace(*subdomain) == "" {
		return errors.New("--id or --subdomain is required")
	}
	_, client, err := clientFromConfig(*apiBase)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var st apiclient.Status
	if *id != "" {
		st, err = client.Status(ctx, *id)
	} else {
		st, err = client.StatusBySubdomain(ctx, *subdomain)
	}
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(st)
	return nil
}

func commandModify(args []string) error {
	fs := flag.NewFlagSet("modify", flag.ExitOnError)
	id := fs.String("id", "", "Business id")
	request := fs.String("request", "", "Change request, e.g. \"make it blue\"")
	token := fs.String("token", "", "Edit token (defaults to the saved token)")
	apiBase := fs.String("api", "", "API base URL")
	wait := fs.Bool("wait", false, "Wait for the redeploy to finish")
	timeout := fs.Duration("timeout", 5*time.Minute, "Maximum time to wait with --wait")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	if strings.TrimSpace(*request) == "" {
		return errors.New("--request is required")
	}
	cfg, client, err := clientFromConfig(*apiBase)
	if err != nil {
		return err
	}
	secret, err := editToken(cfg, *id, *token)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	mod, err := client.Modify(ctx, secret, *id, *request)
	cancel()
	if err != nil {
		return err
	}
	fmt.Printf("version %d via %s: %s\n", mod.Version, mod.Source, strings.Join(mod.Applied, ", "))
	if !*wait {
		return nil
	}
	return waitAndReport(client, *id, *timeout)
}

func commandArtifact(args []string) error {
	fs := flag.NewFlagSet("artifact", flag.ExitOnError)
	id := fs.String("id", "", "Business id")
	out := fs.String("out", "", "Write the HTML to this file instead of stdout")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	_, client, err := clientFromConfig(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	html, err := client.Artifact(ctx, *id)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = fmt.Print(html)
		return err
	}
	return os.WriteFile(*out, []byte(html), 0o644)
}

func waitAndReport(client *apiclient.Client, businessID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	last := ""
	st, err := client.WaitForTerminal(ctx, businessID, 2*time.Second, func(s apiclient.Status) {
		line := fmt.Sprintf("%s %s %s", s.Status, s.Progress, s.Message)
		if line == last {
			return
		}
		last = line
		if interactive {
			fmt.Printf("\r\033[K%s", line)
		} else {
			fmt.Println(line)
		}
	})
	if interactive {
		fmt.Println()
	}
	if err != nil {
		return err
	}
	if st.Status == "error" {
		return fmt.Errorf("site failed: %s", st.Error)
	}
	fmt.Printf("live at %s\n", st.URL)
	return nil
}

func printStatus(st apiclient.Status) {
	fmt.Printf("business:  %s\n", st.BusinessID)
	if st.BusinessName != "" {
		fmt.Printf("name:      %s\n", st.BusinessName)
	}
	fmt.Printf("subdomain: %s\n", st.Subdomain)
	fmt.Printf("status:    %s (%s)\n", st.Status, st.Progress)
	fmt.Printf("message:   %s\n", st.Message)
	if st.URL != "" {
		fmt.Printf("url:       %s\n", st.URL)
	}
	if st.DeploymentMethod != "" {
		fmt.Printf("method:    %s\n", st.DeploymentMethod)
	}
	if st.ProcessingTimeMs != nil {
		fmt.Printf("took:      %s\n", (time.Duration(*st.ProcessingTimeMs) * time.Millisecond).String())
	}
	if st.Error != "" {
		fmt.Printf("error:     %s\n", st.Error)
	}
}

func readBusiness(path string) (json.RawMessage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--file is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read business file: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

// editToken resolves the token from the flag, the saved config, or an
// interactive prompt in that order.
func editToken(cfg cliConfig, businessID, flagValue string) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(cfg.EditTokens[businessID]); v != "" {
		return v, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("--token is required")
	}
	fmt.Print("Edit token: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read edit token: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func clientFromConfig(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: "http://localhost:4000"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:4000"
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "sitepress", "config.json"), nil
}

func printUsage() {
	fmt.Printf("sitectl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	sitectl submit --file business.json [--wait] [--api http://localhost:4000]
	sitectl resubmit --id <business-id> --file business.json [--token t] [--wait]
	sitectl status --id <business-id> | --subdomain <name> [--json]
	sitectl modify --id <business-id> --request "make it blue" [--token t] [--wait]
	sitectl artifact --id <business-id> [--out site.html]
	sitectl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
