/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chainguard.dev/buildvcs/vcs"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
)

type config struct {
	Type        vcs.Type `env:"VCS_TYPE,default=none"`
	ProjectRoot string   `env:"PROJECT_ROOT,default=temp"`
	ArtifactDir string   `env:"ARTIFACT_DIR,default=artifacts"`
	ForceClean  bool     `env:"FORCE_CLEAN,default=false"`
	Revert      bool     `env:"REVERT,default=true"`
	MetricsFile string   `env:"METRICS_FILE"`
	LogLevel    string   `env:"LOG_LEVEL,default=info"`
	LogFormat   string   `env:"LOG_FORMAT,default=text"`

	P4     p4Config
	Git    gitConfig
	Local  localConfig
	Review reviewConfig
	Submit submitConfig
	Poll   pollConfig

	// env is the lookuper the configuration was resolved from.
	env envconfig.Lookuper
}

type p4Config struct {
	Port      string `env:"P4PORT"`
	User      string `env:"P4USER"`
	Password  string `env:"P4PASSWD"`
	Client    string `env:"P4CLIENT"`
	Path      string `env:"P4_PATH"`
	Mappings  string `env:"P4_MAPPINGS"`
	SyncCLs   string `env:"SYNC_CHANGELIST"`
	Shelves   string `env:"SHELVE_CHANGELIST"`
	Binary    string `env:"P4_BINARY,default=p4"`
	SwarmHost string `env:"SWARM_SERVER"`
}

type gitConfig struct {
	Repo        string `env:"GIT_REPO"`
	Refspec     string `env:"GIT_REFSPEC"`
	CheckoutID  string `env:"GIT_CHECKOUT_ID"`
	CherryPicks string `env:"GIT_CHERRYPICK_ID"`
	User        string `env:"GIT_USER"`
	Email       string `env:"GIT_EMAIL"`
	Token       string `env:"GITHUB_TOKEN"`
}

type localConfig struct {
	Source string `env:"SOURCE_DIR"`
}

type reviewConfig struct {
	// System is swarm, github or empty for none.
	System string `env:"REVIEW_SYSTEM"`
	// ID is the Swarm review id, or the pull request number on GitHub.
	ID string `env:"REVIEW"`
	// Change is the Swarm shelve under test.
	Change string `env:"SWARM_CHANGELIST"`

	Repository     string `env:"GITHUB_REPOSITORY"`
	APIURL         string `env:"GITHUB_API_URL"`
	AppID          int64  `env:"GITHUB_APP_ID"`
	InstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	PrivateKeyFile string `env:"GITHUB_PRIVATE_KEY_FILE"`
}

type submitConfig struct {
	Message      string `env:"COMMIT_MESSAGE"`
	Files        string `env:"FILE_LIST"`
	EditOnly     bool   `env:"EDIT_ONLY,default=false"`
	CreateReview bool   `env:"CREATE_REVIEW,default=false"`
}

type pollConfig struct {
	StateFile string `env:"POLL_STATE_FILE,default=polled.yaml"`
	Max       int    `env:"POLL_MAX_CHANGES,default=10"`
}

// binding binds a command-line flag to the environment variable it overrides.
type binding struct {
	name, env, usage string
	boolean          bool
}

var bindings = []binding{
	{name: "vcs-type", env: "VCS_TYPE", usage: "repository kind: none, p4 or git"},
	{name: "project-root", env: "PROJECT_ROOT", usage: "directory the workspace is prepared in"},
	{name: "artifact-dir", env: "ARTIFACT_DIR", usage: "directory for REPOSITORY_* reports"},
	{name: "force-clean", env: "FORCE_CLEAN", usage: "replace leftover workspaces and remove the workspace at the end", boolean: true},
	{name: "revert", env: "REVERT", usage: "revert the workspace after the build", boolean: true},
	{name: "metrics-file", env: "METRICS_FILE", usage: "write Prometheus metrics to this file on exit"},
	{name: "log-level", env: "LOG_LEVEL", usage: "debug, info, warn or error"},
	{name: "log-format", env: "LOG_FORMAT", usage: "text, or gcp for structured Cloud Logging output"},

	{name: "p4-port", env: "P4PORT", usage: "Perforce server"},
	{name: "p4-user", env: "P4USER", usage: "Perforce user"},
	{name: "p4-password", env: "P4PASSWD", usage: "Perforce password or ticket"},
	{name: "p4-client", env: "P4CLIENT", usage: "Perforce workspace name"},
	{name: "p4-path", env: "P4_PATH", usage: "depot path of the project"},
	{name: "p4-mappings", env: "P4_MAPPINGS", usage: "comma separated '<depot> <local>' mappings"},
	{name: "sync-cls", env: "SYNC_CHANGELIST", usage: "changelist to sync, or comma separated path@changelist"},
	{name: "shelve-cls", env: "SHELVE_CHANGELIST", usage: "comma separated shelved changelists to apply"},
	{name: "p4-binary", env: "P4_BINARY", usage: "p4 executable"},
	{name: "swarm-server", env: "SWARM_SERVER", usage: "Swarm URL"},

	{name: "git-repo", env: "GIT_REPO", usage: "git remote URL"},
	{name: "git-refspec", env: "GIT_REFSPEC", usage: "branch to clone or push"},
	{name: "git-checkout-id", env: "GIT_CHECKOUT_ID", usage: "commit to check out"},
	{name: "git-cherry-pick-id", env: "GIT_CHERRYPICK_ID", usage: "commits to cherry-pick"},
	{name: "git-user", env: "GIT_USER", usage: "author of submitted commits"},
	{name: "git-email", env: "GIT_EMAIL", usage: "author email of submitted commits"},

	{name: "source-dir", env: "SOURCE_DIR", usage: "local source directory"},

	{name: "review-system", env: "REVIEW_SYSTEM", usage: "code review to consult: swarm or github"},
	{name: "review", env: "REVIEW", usage: "Swarm review id or pull request number"},
	{name: "swarm-cl", env: "SWARM_CHANGELIST", usage: "shelved changelist under review"},
	{name: "github-repository", env: "GITHUB_REPOSITORY", usage: "owner/repo of the pull request"},
	{name: "github-api-url", env: "GITHUB_API_URL", usage: "GitHub Enterprise API URL"},
	{name: "github-app-id", env: "GITHUB_APP_ID", usage: "GitHub App id"},
	{name: "github-installation-id", env: "GITHUB_INSTALLATION_ID", usage: "GitHub App installation id"},
	{name: "github-private-key-file", env: "GITHUB_PRIVATE_KEY_FILE", usage: "GitHub App private key"},

	{name: "commit-message", env: "COMMIT_MESSAGE", usage: "description of the submitted change"},
	{name: "file-list", env: "FILE_LIST", usage: "comma separated paths to submit"},
	{name: "edit-only", env: "EDIT_ONLY", usage: "only submit files that already exist", boolean: true},
	{name: "create-review", env: "CREATE_REVIEW", usage: "create a review instead of submitting", boolean: true},

	{name: "poll-state-file", env: "POLL_STATE_FILE", usage: "YAML file remembering the last polled changes"},
	{name: "poll-max", env: "POLL_MAX_CHANGES", usage: "maximum changes reported per location"},
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	for _, f := range bindings {
		fs.String(f.name, "", f.usage+" (env "+f.env+")")
		if f.boolean {
			fs.Lookup(f.name).NoOptDefVal = "true"
		}
	}
	return fs
}

// loadConfig resolves the configuration from the changed flags of fs,
// falling back to env.
func loadConfig(ctx context.Context, fs *pflag.FlagSet, env envconfig.Lookuper) (*config, error) {
	overrides := map[string]string{}
	for _, f := range bindings {
		if fl := fs.Lookup(f.name); fl != nil && fl.Changed {
			overrides[f.env] = fl.Value.String()
		}
	}

	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MultiLookuper(envconfig.MapLookuper(overrides), env),
	}); err != nil {
		return nil, &vcs.ConfigurationError{Msg: "processing configuration", Err: err}
	}
	cfg.env = env
	return &cfg, nil
}

func (c *reviewConfig) githubNumber() (int, error) {
	n, err := strconv.Atoi(c.ID)
	if err != nil {
		return 0, vcs.Configurationf("REVIEW '%s' is not a pull request number", c.ID)
	}
	return n, nil
}

func (c *reviewConfig) ownerRepo() (string, string) {
	owner, repo, _ := strings.Cut(c.Repository, "/")
	return owner, repo
}

func (c *reviewConfig) privateKey() ([]byte, error) {
	if c.PrivateKeyFile == "" {
		return nil, nil
	}
	key, err := os.ReadFile(c.PrivateKeyFile)
	if err != nil {
		return nil, &vcs.ConfigurationError{Msg: fmt.Sprintf("reading GITHUB_PRIVATE_KEY_FILE '%s'", c.PrivateKeyFile), Err: err}
	}
	return key, nil
}
