package replicator

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/wrouesnel/sheets-replicator/assets"
	"github.com/wrouesnel/sheets-replicator/pkg/certutils"
	"github.com/wrouesnel/sheets-replicator/pkg/lock"
	"github.com/wrouesnel/sheets-replicator/pkg/server"
	"github.com/wrouesnel/sheets-replicator/pkg/sheets"
	"github.com/wrouesnel/sheets-replicator/version"
	"go.uber.org/zap"
)

// ReplicatorCommand implements the command line interface for running the replicator.
type ReplicatorCommand struct {
	ID   string `help:"Sheet ID of the configuration sheet"`
	Auth string `help:"Path to authorization/client secrets json file"`

	Config string `help:"Optional YAML defaults file"`

	ConfigurationRange string `help:"Range holding the task table"`
	LockFile           string `help:"Single-instance lock file"`

	TLSNoVerify bool     `help:"disable TLS verification"`
	TLSCACerts  []string `name:"tls-ca-certs" help:"additional TLS CA certificates as file path, literal or base64 PEM"`

	APIBaseURL *url.URL `help:"Google Sheets API base URL" default:"https://sheets.googleapis.com"`

	TokenSource struct {
		Name        string                   `help:"source of the API access token" default:"oauth" enum:"oauth,file,k8s"`
		OAuthSource *sheets.OAuthSource      `embed:"" prefix:"oauth." help:"Configuration for OAuth token refresh"`
		FileSource  *sheets.FileSource       `embed:"" prefix:"file." help:"Configuration for file token source"`
		K8SSource   *sheets.KubernetesSource `embed:"" prefix:"k8s." help:"Configuration for kubernetes token source"`
	} `embed:"" prefix:"token-source."`

	Watch         bool          `help:"keep running and replicate on an interval"`
	PollFrequency time.Duration `help:"frequency of replication passes in watch mode" default:"1h"`

	Monitor       bool                       `help:"serve monitoring endpoints in watch mode"`
	MonitorConfig server.MonitorServerConfig `embed:"" prefix:"monitor."`
	Web           assets.Config              `embed:"" prefix:"web."`
}

// applyFileConfig folds defaults from an optional YAML file under any values
// not already set by flags.
func (rc *ReplicatorCommand) applyFileConfig() error {
	if rc.Config == "" {
		return nil
	}

	fileConfig, err := LoadFileConfig(rc.Config)
	if err != nil {
		return err
	}

	if rc.LockFile == "" {
		rc.LockFile = fileConfig.LockFile
	}
	if rc.ConfigurationRange == "" {
		rc.ConfigurationRange = fileConfig.ConfigurationRange
	}
	if rc.TokenSource.OAuthSource != nil {
		if rc.TokenSource.OAuthSource.TokenFile == "" {
			rc.TokenSource.OAuthSource.TokenFile = fileConfig.TokenFile
		}
		if rc.TokenSource.OAuthSource.ClientSecretsFile == "" {
			rc.TokenSource.OAuthSource.ClientSecretsFile = fileConfig.ClientSecretsFile
		}
	}

	return nil
}

//nolint:funlen,gocognit,cyclop
func ReplicatorEntrypoint(ctx context.Context, rc *ReplicatorCommand) error {
	logger := zap.L()

	if err := rc.applyFileConfig(); err != nil {
		return err
	}

	// The sheet id is mandatory. Reject before taking the instance lock so a
	// bad invocation can't block a real one.
	if rc.ID == "" {
		return &ReplicatorConfigError{msg: "no configuration sheet id provided (--id)"}
	}

	lockFile := rc.LockFile
	if lockFile == "" {
		lockFile = filepath.Join(os.TempDir(), fmt.Sprintf("%s.lock", version.Name))
	}

	instanceLock, err := lock.Acquire(lockFile)
	if err != nil {
		alreadyLocked := &lock.AlreadyLockedError{}
		if errors.As(err, &alreadyLocked) {
			// Another instance is replicating. Matching the original, this is
			// a silent success.
			logger.Info("Another instance holds the lock - nothing to do",
				zap.String("lock_file", lockFile))
			return nil
		}
		return errors.Wrap(err, "ReplicatorEntrypoint")
	}
	defer func() { _ = instanceLock.Release() }()

	httpClient := resty.New()

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		return errors.Wrap(err, "ReplicatorEntrypoint")
	}

	for _, input := range rc.TLSCACerts {
		certs, err := certutils.ReadCertificate(input)
		if err != nil {
			return errors.Wrap(err, "ReplicatorEntrypoint: loading CA certificates")
		}

		for _, cert := range certs {
			logger.Debug("Adding certificate to trusted roots",
				zap.String("subject", cert.Subject.String()),
				zap.String("certificate", certutils.EncodeX509ToPem(cert)))
			rootCAs.AddCert(cert)
		}
	}

	httpClient.SetTLSClientConfig(&tls.Config{
		InsecureSkipVerify: rc.TLSNoVerify,
		RootCAs:            rootCAs,
	})
	httpClient.SetBaseURL(rc.APIBaseURL.String())

	var tokenSource sheets.TokenSource
	switch rc.TokenSource.Name {
	case sheets.TokenSourceOAuth:
		if rc.Auth != "" {
			rc.TokenSource.OAuthSource.ClientSecretsFile = rc.Auth
		}
		tokenSource = rc.TokenSource.OAuthSource
	case sheets.TokenSourceFile:
		tokenSource = rc.TokenSource.FileSource
	case sheets.TokenSourceKubernetes:
		tokenSource = rc.TokenSource.K8SSource
	default:
		panic(fmt.Sprintf("%s is not a recognized source name", rc.TokenSource.Name))
	}

	client, err := sheets.NewClient(sheets.ClientInitializationConfig{
		Logger:      logger,
		HTTPClient:  httpClient,
		TokenSource: tokenSource,
	})
	if err != nil {
		return errors.Wrap(err, "ReplicatorEntrypoint")
	}

	repl, err := NewReplicator(ReplicatorInitializationConfig{
		Logger: logger,
		Client: client,
	})
	if err != nil {
		return errors.Wrap(err, "NewReplicator")
	}

	replicatorConfig := ReplicatorConfig{
		ConfigurationSheetID: rc.ID,
		ConfigurationRange:   rc.ConfigurationRange,
		PollFrequency:        rc.PollFrequency,
	}

	if !rc.Watch {
		return repl.Run(replicatorConfig)
	}

	errCh := repl.Start(replicatorConfig)

	// A nil channel blocks forever, so without the monitor the select below
	// only waits on shutdown.
	var monitorDone <-chan struct{}
	if rc.Monitor {
		monitorConfig := rc.MonitorConfig
		monitorConfig.Ctx = ctx
		monitorConfig.Liveness = repl
		monitorCtx := server.MonitorServer(monitorConfig, rc.Web, pongo2.Context{
			"name":        version.Name,
			"description": version.Description,
			"version":     version.Version,
		})
		monitorDone = monitorCtx.Done()
	}

	logger.Info("Replicator started")

	var monitorErr error
	select {
	case <-ctx.Done():
	case <-monitorDone:
		// The monitor context is derived from ctx, so check which one fired.
		if ctx.Err() == nil {
			monitorErr = errors.New("monitor server exited unexpectedly")
			logger.Error("Monitor server exited unexpectedly - shutting down")
		}
	}

	repl.Stop()
	err = <-errCh
	logger.Info("Replicator finished", zap.Error(err))

	return monitorErr
}
