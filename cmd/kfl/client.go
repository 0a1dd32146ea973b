// client.go resolves flags, environment, and the config file into a fluent
// client plus the logger shared by all subcommands.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/example/kfl/internal/cliconfig"
	"github.com/example/kfl/internal/logging"
	"github.com/example/kfl/pkg/fluent"
)

func buildClient(flags *rootFlags) (*fluent.Client, logr.Logger, error) {
	log, err := logging.New(flags.logLevel)
	if err != nil {
		return nil, logr.Logger{}, err
	}
	logging.Install(log)

	cfg, err := cliconfig.Load(flags.configPath)
	if err != nil {
		return nil, logr.Logger{}, err
	}
	server := firstNonEmpty(flags.server, cfg.Server)
	if server == "" {
		return nil, logr.Logger{}, fmt.Errorf("no cluster server configured; pass --server, set KFL_SERVER, or add server: to %s", flags.configPath)
	}
	if flags.namespace == "" {
		flags.namespace = cfg.Namespace
	}

	opts := []fluent.Option{fluent.WithLogger(log.WithName("fluent"))}
	if token := firstNonEmpty(flags.token, cfg.Token); token != "" {
		opts = append(opts, fluent.WithCredentials(fluent.BearerToken(token)))
	}
	tlsConfig, err := buildTLSConfig(flags, cfg)
	if err != nil {
		return nil, logr.Logger{}, err
	}
	if tlsConfig != nil {
		opts = append(opts, fluent.WithTLSConfig(tlsConfig))
	}
	c, err := fluent.New(server, opts...)
	if err != nil {
		return nil, logr.Logger{}, err
	}
	return c, log, nil
}

func buildTLSConfig(flags *rootFlags, cfg cliconfig.Config) (*tls.Config, error) {
	caFile := firstNonEmpty(flags.caFile, cfg.CAFile)
	insecure := flags.insecure || cfg.InsecureSkipTLSVerify
	if caFile == "" && !insecure {
		return nil, nil
	}
	out := &tls.Config{InsecureSkipVerify: insecure}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", caFile)
		}
		out.RootCAs = pool
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
